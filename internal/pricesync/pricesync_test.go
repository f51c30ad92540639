package pricesync

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/proconsa/erp-bridge/internal/odoo"
)

type writeCall struct {
	IDs  []int64
	Vals map[string]any
}

// fakeCaller serves a fixed template set and records writes.
type fakeCaller struct {
	mu        sync.Mutex
	templates []odoo.Record
	writes    []writeCall
	failNext  int
	failErr   error
}

func (f *fakeCaller) ExecuteKw(_ context.Context, model, method string, args []any, kwargs map[string]any) (any, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	switch method {
	case "search_read":
		offset, _ := kwargs["offset"].(int)
		limit, _ := kwargs["limit"].(int)
		if limit <= 0 {
			limit = len(f.templates)
		}
		var page []any
		for i := offset; i < len(f.templates) && i < offset+limit; i++ {
			page = append(page, map[string]any(f.templates[i]))
		}
		return page, nil
	case "write":
		if f.failNext > 0 {
			f.failNext--
			return nil, f.failErr
		}
		ids, _ := args[0].([]int64)
		vals, _ := args[1].(map[string]any)
		f.writes = append(f.writes, writeCall{IDs: ids, Vals: vals})
		return true, nil
	}
	return nil, fmt.Errorf("unexpected call %s.%s", model, method)
}

func template(id int64, sku string, price, cost float64) odoo.Record {
	return odoo.Record{"id": id, "default_code": sku, "list_price": price, "standard_price": cost}
}

type fakePrices struct {
	rows []PriceRow
	err  error
}

func (f *fakePrices) FetchPrices(context.Context) ([]PriceRow, error) {
	return f.rows, f.err
}

func newTestService(rpc odoo.Caller, erp PriceStore, opts Options) *Service {
	if opts.WriteRetries == 0 {
		opts.WriteRetries = 3
	}
	if opts.RetryDelay == 0 {
		opts.RetryDelay = time.Millisecond
	}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return NewService(rpc, erp, logger, opts)
}

func TestComputeUpdatesMinimalFields(t *testing.T) {
	remote := []odoo.Record{
		template(1, "A1", 10.00, 7.00),
		template(2, "A2", 20.00, 14.00),
		template(3, "A3", 30.00, 21.00),
	}
	rows := []PriceRow{
		{SKU: "A1", Price: 12.50, Cost: 7.00},  // price drifted
		{SKU: "A2", Price: 20.00, Cost: 15.25}, // cost drifted
		{SKU: "A3", Price: 30.00, Cost: 21.00}, // converged
		{SKU: "A9", Price: 5.00, Cost: 1.00},   // not in Odoo
	}

	updates := ComputeUpdates(rows, remote)
	require.Len(t, updates, 2)

	assert.Equal(t, int64(1), updates[0].TemplateID)
	assert.Equal(t, map[string]any{"list_price": 12.50}, updates[0].Values)
	assert.Equal(t, int64(2), updates[1].TemplateID)
	assert.Equal(t, map[string]any{"standard_price": 15.25}, updates[1].Values)
}

func TestComputeUpdatesEpsilonBoundary(t *testing.T) {
	remote := []odoo.Record{template(1, "A1", 10.00, 7.00)}

	// Exactly epsilon apart is noise, strictly greater is drift.
	assert.Empty(t, ComputeUpdates([]PriceRow{{SKU: "A1", Price: 10.01, Cost: 7.00}}, remote))
	assert.Len(t, ComputeUpdates([]PriceRow{{SKU: "A1", Price: 10.011, Cost: 7.00}}, remote), 1)
}

func TestComputeUpdatesZeroCostNeverWritten(t *testing.T) {
	// A missing branch cost surfaces as zero; overwriting the real cost with
	// it would poison margin reports.
	remote := []odoo.Record{template(1, "A1", 10.00, 7.00)}
	updates := ComputeUpdates([]PriceRow{{SKU: "A1", Price: 10.00, Cost: 0}}, remote)
	assert.Empty(t, updates)
}

func TestRunWritesDriftedPrices(t *testing.T) {
	rpc := &fakeCaller{templates: []odoo.Record{
		template(1, "A1", 10.00, 7.00),
		template(2, "A2", 20.00, 14.00),
	}}
	erp := &fakePrices{rows: []PriceRow{
		{SKU: "A1", Price: 11.00, Cost: 7.00},
		{SKU: "A2", Price: 20.00, Cost: 14.00},
	}}

	summary := newTestService(rpc, erp, Options{}).Run(context.Background())

	require.False(t, summary.Failed())
	assert.Equal(t, 1, summary.Counts.Updated)
	require.Len(t, rpc.writes, 1)
	assert.Equal(t, []int64{1}, rpc.writes[0].IDs)
	assert.Equal(t, map[string]any{"list_price": 11.00}, rpc.writes[0].Vals)
}

func TestRunRetriesTransientWriteFailure(t *testing.T) {
	rpc := &fakeCaller{
		templates: []odoo.Record{template(1, "A1", 10.00, 7.00)},
		failNext:  1,
		failErr:   errors.New("read tcp: connection reset by peer"),
	}
	erp := &fakePrices{rows: []PriceRow{{SKU: "A1", Price: 11.00, Cost: 7.00}}}

	summary := newTestService(rpc, erp, Options{}).Run(context.Background())

	assert.Equal(t, 1, summary.Counts.Updated)
	assert.Equal(t, 0, summary.Counts.Errors)
	assert.Len(t, rpc.writes, 1)
}

func TestRunCountsPersistentFailure(t *testing.T) {
	rpc := &fakeCaller{
		templates: []odoo.Record{template(1, "A1", 10.00, 7.00)},
		failNext:  10,
		failErr:   errors.New("odoo.exceptions.ValidationError: bad value"),
	}
	erp := &fakePrices{rows: []PriceRow{{SKU: "A1", Price: 11.00, Cost: 7.00}}}

	summary := newTestService(rpc, erp, Options{}).Run(context.Background())

	assert.Equal(t, 0, summary.Counts.Updated)
	assert.Equal(t, 1, summary.Counts.Errors)
	assert.Empty(t, rpc.writes)
	// ValidationError is not transient; one attempt only.
	assert.Equal(t, 9, rpc.failNext)
}

func TestRunExtractFailureAborts(t *testing.T) {
	rpc := &fakeCaller{}
	erp := &fakePrices{err: errors.New("mssql: login failed")}

	summary := newTestService(rpc, erp, Options{}).Run(context.Background())

	require.True(t, summary.Failed())
	require.Len(t, summary.Phases, 1)
	assert.Equal(t, "extract", summary.Phases[0].Name)
}

func TestRunDryRunWritesNothing(t *testing.T) {
	rpc := &fakeCaller{templates: []odoo.Record{template(1, "A1", 10.00, 7.00)}}
	erp := &fakePrices{rows: []PriceRow{{SKU: "A1", Price: 99.00, Cost: 7.00}}}

	summary := newTestService(rpc, erp, Options{DryRun: true}).Run(context.Background())

	assert.False(t, summary.Failed())
	assert.Empty(t, rpc.writes)
	assert.Equal(t, 0, summary.Counts.Updated)
}
