package email_test

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	common "github.com/example/messenger/internal/adapters/common"
	"github.com/example/messenger/internal/models"
	emailprovider "github.com/example/messenger/internal/providers/email"
)

type captured struct {
	method string
	path   string
	header http.Header
	body   []byte
}

func captureServer(t *testing.T, status int, response string) (*httptest.Server, *captured) {
	t.Helper()
	c := &captured{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		c.method = r.Method
		c.path = r.URL.Path
		c.header = r.Header.Clone()
		c.body, _ = io.ReadAll(r.Body)
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_, _ = w.Write([]byte(response))
	}))
	t.Cleanup(srv.Close)
	return srv, c
}

func testEnvelope() *models.Envelope {
	return &models.Envelope{
		From:        "sender@example.com",
		To:          models.Recipients{"a@example.com", "b@example.com"},
		Subject:     "Hello",
		HTML:        "<p>Hi</p>",
		Text:        "Hi",
		Attachments: []models.Attachment{{Filename: "a.txt", Content: "hello", Type: "text/plain"}},
	}
}

func settingsWith(base string, auth map[string]string) models.Settings {
	return models.Settings{Auth: auth, Options: map[string]string{"base_url": base}}
}

func TestMailgunSend(t *testing.T) {
	srv, c := captureServer(t, http.StatusOK, `{"id":"<1@mg>","message":"Queued"}`)
	tr, err := emailprovider.NewMailgun(settingsWith(srv.URL, map[string]string{"apiKey": "key-1", "domain": "mg.example.com"}), zerolog.Nop())
	require.NoError(t, err)

	require.NoError(t, tr.Send(context.Background(), testEnvelope()))

	assert.Equal(t, http.MethodPost, c.method)
	assert.Equal(t, "/mg.example.com/messages", c.path)
	form, err := url.ParseQuery(string(c.body))
	require.NoError(t, err)
	assert.Equal(t, []string{"a@example.com", "b@example.com"}, form["to"])
	assert.Equal(t, "Hello", form.Get("subject"))
	assert.Equal(t, "<p>Hi</p>", form.Get("html"))
	user, pass, ok := (&http.Request{Header: c.header}).BasicAuth()
	assert.True(t, ok)
	assert.Equal(t, "api", user)
	assert.Equal(t, "key-1", pass)
}

func TestMailgunRequiresDomain(t *testing.T) {
	_, err := emailprovider.NewMailgun(models.Settings{Auth: map[string]string{"apiKey": "k"}}, zerolog.Nop())
	assert.ErrorIs(t, err, common.ErrConfiguration)
}

func TestSendgridSend(t *testing.T) {
	srv, c := captureServer(t, http.StatusAccepted, ``)
	tr, err := emailprovider.NewSendgrid(settingsWith(srv.URL, map[string]string{"apiKey": "SG.key"}), zerolog.Nop())
	require.NoError(t, err)

	require.NoError(t, tr.Send(context.Background(), testEnvelope()))

	assert.Equal(t, "/mail/send", c.path)
	assert.Equal(t, "Bearer SG.key", c.header.Get("Authorization"))

	var payload struct {
		Personalizations []struct {
			To []struct{ Email string } `json:"to"`
		} `json:"personalizations"`
		Content []struct {
			Type string `json:"type"`
		} `json:"content"`
		Attachments []struct {
			Content string `json:"content"`
		} `json:"attachments"`
	}
	require.NoError(t, json.Unmarshal(c.body, &payload))
	require.Len(t, payload.Personalizations, 1)
	assert.Len(t, payload.Personalizations[0].To, 2)
	require.Len(t, payload.Content, 2)
	assert.Equal(t, "text/plain", payload.Content[0].Type)
	assert.Equal(t, base64.StdEncoding.EncodeToString([]byte("hello")), payload.Attachments[0].Content)
}

func TestSendgridClientErrorCarriesStatus(t *testing.T) {
	srv, _ := captureServer(t, http.StatusBadRequest, `{"errors":[{"message":"bad from"}]}`)
	tr, err := emailprovider.NewSendgrid(settingsWith(srv.URL, map[string]string{"apiKey": "SG.key"}), zerolog.Nop())
	require.NoError(t, err)

	err = tr.Send(context.Background(), testEnvelope())

	var statusErr *common.HTTPStatusError
	require.ErrorAs(t, err, &statusErr)
	assert.Equal(t, http.StatusBadRequest, statusErr.StatusCode)
	e, ok := common.AsError(err)
	require.True(t, ok)
	assert.Equal(t, models.TransportSendgrid, e.Transport)
}

func TestMailchimpSend(t *testing.T) {
	srv, c := captureServer(t, http.StatusOK, `[{"email":"a@example.com","status":"sent"},{"email":"b@example.com","status":"queued"}]`)
	tr, err := emailprovider.NewMailchimp(settingsWith(srv.URL, map[string]string{"apiKey": "md-key"}), zerolog.Nop())
	require.NoError(t, err)

	require.NoError(t, tr.Send(context.Background(), testEnvelope()))
	assert.Equal(t, "/messages/send", c.path)
	assert.Contains(t, string(c.body), `"key":"md-key"`)
	assert.Contains(t, string(c.body), `"from_email":"sender@example.com"`)
}

func TestMailchimpRejectedRecipientFails(t *testing.T) {
	srv, _ := captureServer(t, http.StatusOK, `[{"email":"a@example.com","status":"rejected","reject_reason":"hard-bounce"}]`)
	tr, err := emailprovider.NewMailchimp(settingsWith(srv.URL, map[string]string{"apiKey": "md-key"}), zerolog.Nop())
	require.NoError(t, err)

	err = tr.Send(context.Background(), testEnvelope())
	require.ErrorIs(t, err, common.ErrTransport)
	assert.Contains(t, err.Error(), "hard-bounce")
}

func TestResendSend(t *testing.T) {
	srv, c := captureServer(t, http.StatusOK, `{"id":"re_123"}`)
	tr, err := emailprovider.NewResend(settingsWith(srv.URL+"/", map[string]string{"apiKey": "re_key"}), zerolog.Nop())
	require.NoError(t, err)

	require.NoError(t, tr.Send(context.Background(), testEnvelope()))
	assert.Equal(t, "/emails", c.path)
	assert.Equal(t, "Bearer re_key", c.header.Get("Authorization"))
	assert.True(t, strings.Contains(string(c.body), `"subject":"Hello"`))
}

func TestResendFailureIsTransportError(t *testing.T) {
	srv, _ := captureServer(t, http.StatusInternalServerError, `{"message":"boom"}`)
	tr, err := emailprovider.NewResend(settingsWith(srv.URL+"/", map[string]string{"apiKey": "re_key"}), zerolog.Nop())
	require.NoError(t, err)

	err = tr.Send(context.Background(), testEnvelope())
	var e *common.Error
	require.True(t, errors.As(err, &e))
	assert.Equal(t, common.KindTransport, e.Kind)
	assert.Equal(t, models.TransportResend, e.Transport)
}

func TestMailjetSend(t *testing.T) {
	srv, c := captureServer(t, http.StatusOK, `{"Messages":[{"Status":"success"}]}`)
	tr, err := emailprovider.NewMailjet(settingsWith(srv.URL, map[string]string{"apiKeyPublic": "pub", "apiKeyPrivate": "priv"}), zerolog.Nop())
	require.NoError(t, err)

	require.NoError(t, tr.Send(context.Background(), testEnvelope()))
	assert.Equal(t, http.MethodPost, c.method)
	assert.Equal(t, "/send", c.path)
	user, pass, ok := (&http.Request{Header: c.header}).BasicAuth()
	require.True(t, ok)
	assert.Equal(t, "pub", user)
	assert.Equal(t, "priv", pass)

	var payload struct {
		Messages []struct {
			From        struct{ Email string }
			To          []struct{ Email string }
			Subject     string
			TextPart    string
			HTMLPart    string
			Attachments []struct{ ContentType, Filename, Base64Content string }
		}
	}
	require.NoError(t, json.Unmarshal(c.body, &payload))
	require.Len(t, payload.Messages, 1)
	msg := payload.Messages[0]
	assert.Equal(t, "sender@example.com", msg.From.Email)
	require.Len(t, msg.To, 2)
	assert.Equal(t, "b@example.com", msg.To[1].Email)
	assert.Equal(t, "Hello", msg.Subject)
	assert.Equal(t, "Hi", msg.TextPart)
	assert.Equal(t, "<p>Hi</p>", msg.HTMLPart)
	require.Len(t, msg.Attachments, 1)
	assert.Equal(t, "text/plain", msg.Attachments[0].ContentType)
	assert.Equal(t, base64.StdEncoding.EncodeToString([]byte("hello")), msg.Attachments[0].Base64Content)
}

func TestMailjetErrorStatusFails(t *testing.T) {
	srv, _ := captureServer(t, http.StatusOK, `{"Messages":[{"Status":"error","Errors":[{"ErrorMessage":"invalid sender"}]}]}`)
	tr, err := emailprovider.NewMailjet(settingsWith(srv.URL, map[string]string{"apiKeyPublic": "pub", "apiKeyPrivate": "priv"}), zerolog.Nop())
	require.NoError(t, err)

	err = tr.Send(context.Background(), testEnvelope())
	require.ErrorIs(t, err, common.ErrTransport)
	assert.Contains(t, err.Error(), "invalid sender")
	e, ok := common.AsError(err)
	require.True(t, ok)
	assert.Equal(t, models.TransportMailjetEmail, e.Transport)
}

func TestMailjetRequiresBothKeys(t *testing.T) {
	_, err := emailprovider.NewMailjet(models.Settings{Auth: map[string]string{"apiKeyPublic": "pub"}}, zerolog.Nop())
	assert.ErrorIs(t, err, common.ErrConfiguration)
}
