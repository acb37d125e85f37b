// AngelaMos | 2026
// brevo_test.go

package notify

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/fertilityflow/portal/internal/config"
)

func newTestClient(t *testing.T, h http.HandlerFunc) *Client {
	t.Helper()

	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)

	return NewClient(config.NotifyConfig{
		BrevoAPIKey:   "test-key",
		BrevoBaseURL:  srv.URL + "/",
		Timeout:       2 * time.Second,
		RetryAttempts: 3,
		RetryDelay:    time.Millisecond,
	})
}

func TestSendTemplate(t *testing.T) {
	var got map[string]any
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/smtp/email" || r.Method != http.MethodPost {
			t.Errorf("request = %s %s", r.Method, r.URL.Path)
		}
		if r.Header.Get("api-key") != "test-key" {
			t.Errorf("api-key = %q", r.Header.Get("api-key"))
		}
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Errorf("decode body: %v", err)
		}
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`{"messageId":"m1"}`))
	})

	err := c.SendTemplate(context.Background(), TemplateEmail{
		TemplateID: 3,
		To:         Recipient{Email: "a@example.com", Name: "Ann"},
		Params:     map[string]any{"productName": "Flow"},
	})
	if err != nil {
		t.Fatalf("SendTemplate() error = %v", err)
	}

	if got["templateId"] != float64(3) {
		t.Errorf("templateId = %v", got["templateId"])
	}
	to, _ := got["to"].([]any)
	if len(to) != 1 {
		t.Fatalf("to = %v", got["to"])
	}
	if params, _ := got["params"].(map[string]any); params["productName"] != "Flow" {
		t.Errorf("params = %v", got["params"])
	}
}

func TestCreateContactDuplicate(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"code":"duplicate_parameter","message":"Contact already exist"}`))
	})

	err := c.CreateContact(context.Background(), Contact{Email: "a@example.com"})
	if !errors.Is(err, ErrContactExists) {
		t.Fatalf("CreateContact() error = %v, want ErrContactExists", err)
	}
}

func TestRetriesServerErrorsOnly(t *testing.T) {
	t.Run("server error then success", func(t *testing.T) {
		var calls atomic.Int32
		c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			if calls.Add(1) < 3 {
				w.WriteHeader(http.StatusBadGateway)
				return
			}
			w.WriteHeader(http.StatusCreated)
		})

		if err := c.SendTemplate(context.Background(), TemplateEmail{TemplateID: 1}); err != nil {
			t.Fatalf("SendTemplate() error = %v", err)
		}
		if calls.Load() != 3 {
			t.Errorf("calls = %d, want 3", calls.Load())
		}
	})

	t.Run("client error is final", func(t *testing.T) {
		var calls atomic.Int32
		c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			calls.Add(1)
			w.WriteHeader(http.StatusUnauthorized)
			_, _ = w.Write([]byte(`{"code":"unauthorized","message":"Key not found"}`))
		})

		err := c.SendTemplate(context.Background(), TemplateEmail{TemplateID: 1})
		var apiErr *APIError
		if !errors.As(err, &apiErr) || apiErr.Status != http.StatusUnauthorized {
			t.Fatalf("SendTemplate() error = %v, want 401 APIError", err)
		}
		if calls.Load() != 1 {
			t.Errorf("calls = %d, want 1", calls.Load())
		}
	})
}

func TestGetContact(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/contacts/missing@example.com" {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		_, _ = w.Write([]byte(`{"email":"a@example.com","attributes":{"FIRSTNAME":"Ann"},"listIds":[5,9]}`))
	})

	contact, err := c.GetContact(context.Background(), "a@example.com")
	if err != nil {
		t.Fatalf("GetContact() error = %v", err)
	}
	if contact.Attributes["FIRSTNAME"] != "Ann" || len(contact.ListIDs) != 2 {
		t.Errorf("contact = %+v", contact)
	}

	if _, err := c.GetContact(context.Background(), "missing@example.com"); !errors.Is(err, ErrContactMissing) {
		t.Errorf("GetContact(missing) error = %v", err)
	}
}

func TestUnconfiguredClient(t *testing.T) {
	c := NewClient(config.NotifyConfig{BrevoBaseURL: "http://unused"})

	if c.Configured() {
		t.Fatal("client without key reports configured")
	}
	if err := c.SendTemplate(context.Background(), TemplateEmail{}); !errors.Is(err, ErrNotConfigured) {
		t.Errorf("SendTemplate() error = %v, want ErrNotConfigured", err)
	}
}
