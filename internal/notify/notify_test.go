package notify

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	gomail "gopkg.in/gomail.v2"
)

func discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestMailerDisabledIsNoOp(t *testing.T) {
	m := NewMailer(SMTPConfig{}, discard())
	assert.False(t, m.Enabled())
	assert.NoError(t, m.Send(Email{Subject: "x", To: []string{"a@b.c"}}))
}

func TestMailerRejectsEmptyRecipients(t *testing.T) {
	m := NewMailer(SMTPConfig{Host: "smtp.local", Port: 587, From: "bridge@local"}, discard())
	m.send = func(*gomail.Message) error { return nil }
	assert.Error(t, m.Send(Email{Subject: "no one"}))
}

func TestMailerBuildsMessage(t *testing.T) {
	m := NewMailer(SMTPConfig{Host: "smtp.local", Port: 587, From: "bridge@local"}, discard())
	var sent *gomail.Message
	m.send = func(msg *gomail.Message) error {
		sent = msg
		return nil
	}

	err := m.Send(Email{
		To:      []string{"ops@example.com"},
		Subject: "Cambios de precios",
		Text:    "resumen",
		HTML:    "<b>resumen</b>",
		Attachments: []Attachment{
			{Filename: "cambios.csv", MIME: "text/csv", Data: []byte("sku,precio\n")},
		},
	})
	require.NoError(t, err)
	require.NotNil(t, sent)
	assert.Equal(t, []string{"ops@example.com"}, sent.GetHeader("To"))
	assert.Equal(t, []string{"Cambios de precios"}, sent.GetHeader("Subject"))
}

func TestTeamsPostsCard(t *testing.T) {
	var got map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	tn := NewTeams(srv.URL, discard())
	err := tn.Post(context.Background(), "Sync fallida", "detalle", true, []Fact{
		{Name: "task", Value: "inventory-sync"},
	})
	require.NoError(t, err)
	assert.Equal(t, "MessageCard", got["@type"])
	assert.Equal(t, "d63333", got["themeColor"])
	assert.Equal(t, "Sync fallida", got["title"])
}

func TestTeamsNonOKStatusIsError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
	}))
	defer srv.Close()

	tn := NewTeams(srv.URL, discard())
	assert.Error(t, tn.Post(context.Background(), "t", "", false, nil))
}

func TestTeamsDisabledIsNoOp(t *testing.T) {
	tn := NewTeams("", discard())
	assert.False(t, tn.Enabled())
	assert.NoError(t, tn.Post(context.Background(), "t", "", false, nil))
}
