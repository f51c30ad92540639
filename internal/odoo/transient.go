package odoo

import (
	"context"
	"errors"
	"net"
	"strings"
	"time"
)

// IsTransient classifies an RPC failure as retryable: network resets,
// timeouts, gateway errors, and the known response-corruption signature the
// endpoint's reverse proxy emits under load ("unknown XML-RPC tag 'title'",
// an HTML error page leaking into the XML stream).
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}
	msg := strings.ToLower(err.Error())
	for _, sig := range []string{
		"unknown xml-rpc tag 'title'",
		"connection reset",
		"connection refused",
		"broken pipe",
		"unexpected eof",
		"timeout",
		"timed out",
		"502", "503", "504",
	} {
		if strings.Contains(msg, sig) {
			return true
		}
	}
	return false
}

// IsMarshalNone reports the benign Odoo 18 quirk where a server action
// returns Python None, which the XML-RPC layer cannot marshal. Callers of
// action_apply_inventory treat this as success.
func IsMarshalNone(err error) bool {
	return err != nil && strings.Contains(strings.ToLower(err.Error()), "cannot marshal none")
}

// Retry runs fn up to attempts times with linear backoff (attempt * delay),
// retrying only transient failures. The last error is returned as-is.
func Retry(ctx context.Context, attempts int, delay time.Duration, fn func() error) error {
	if attempts < 1 {
		attempts = 1
	}
	var err error
	for attempt := 1; attempt <= attempts; attempt++ {
		err = fn()
		if err == nil {
			return nil
		}
		if attempt == attempts || !IsTransient(err) {
			return err
		}
		if serr := sleep(ctx, time.Duration(attempt)*delay); serr != nil {
			return err
		}
	}
	return err
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
