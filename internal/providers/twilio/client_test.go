package twilio

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	common "github.com/example/messenger/internal/adapters/common"
	"github.com/example/messenger/internal/models"
)

func testSettings(baseURL string) models.Settings {
	return models.Settings{
		Auth:    map[string]string{"sid": "AC123", "token": "secret"},
		Options: map[string]string{"base_url": baseURL},
	}
}

func TestNewRequiresCredentials(t *testing.T) {
	tests := []struct {
		name string
		auth map[string]string
	}{
		{name: "missing sid", auth: map[string]string{"token": "t"}},
		{name: "missing token", auth: map[string]string{"sid": "AC1"}},
	}
	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			if _, err := New(models.Settings{Auth: tc.auth}); err == nil {
				t.Fatalf("expected error for %s", tc.name)
			}
		})
	}
}

func TestCreatePostsForm(t *testing.T) {
	var gotForm url.Values
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/Accounts/AC123/Messages.json" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		user, pass, ok := r.BasicAuth()
		if !ok || user != "AC123" || pass != "secret" {
			t.Errorf("unexpected basic auth %q %q", user, pass)
		}
		_ = r.ParseForm()
		gotForm = r.PostForm
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`{"sid":"SM1","status":"queued"}`))
	}))
	defer srv.Close()

	client, err := New(testSettings(srv.URL))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	params := url.Values{"To": {"+15550001111"}, "Body": {"hi"}}
	ExtraParams(params, map[string]any{"status_callback": "https://cb.example.com", "to": "ignored", "count": 3}, "to")

	res, err := client.Create(context.Background(), "Messages", params)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.SID != "SM1" || res.Status != "queued" {
		t.Fatalf("unexpected result %#v", res)
	}
	if gotForm.Get("StatusCallback") != "https://cb.example.com" {
		t.Fatalf("expected passthrough param, got %v", gotForm)
	}
	if gotForm.Get("To") != "+15550001111" {
		t.Fatalf("reserved key must not override To, got %v", gotForm)
	}
}

func TestCreateReportsTwilioError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"code":21211,"message":"Invalid 'To' Phone Number"}`))
	}))
	defer srv.Close()

	client, _ := New(testSettings(srv.URL))
	_, err := client.Create(context.Background(), "Messages", url.Values{})

	var statusErr *common.HTTPStatusError
	if !errors.As(err, &statusErr) || statusErr.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected wrapped 400, got %v", err)
	}
	if want := "error 21211: Invalid 'To' Phone Number"; !strings.HasPrefix(err.Error(), want) {
		t.Fatalf("unexpected message %q", err.Error())
	}
}
