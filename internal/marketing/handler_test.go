// AngelaMos | 2026
// handler_test.go

package marketing

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"

	"github.com/fertilityflow/portal/internal/notify"
)

type fakeSubscriber struct {
	subscribed []string
	already    bool
	bookings   []notify.Booking
	err        error
}

func (f *fakeSubscriber) SubscribeNewsletter(_ context.Context, email string) (bool, error) {
	if f.err != nil {
		return false, f.err
	}
	f.subscribed = append(f.subscribed, email)
	return f.already, nil
}

func (f *fakeSubscriber) BookSession(_ context.Context, b notify.Booking) error {
	if f.err != nil {
		return f.err
	}
	f.bookings = append(f.bookings, b)
	return nil
}

func post(t *testing.T, sub *fakeSubscriber, path, body string) *httptest.ResponseRecorder {
	t.Helper()

	r := chi.NewRouter()
	NewHandler(sub).RegisterRoutes(r, func(next http.Handler) http.Handler { return next })

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, path, strings.NewReader(body)))
	return rec
}

func decodeForm(t *testing.T, rec *httptest.ResponseRecorder) FormResponse {
	t.Helper()

	var resp FormResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	return resp
}

func TestSubscribe(t *testing.T) {
	sub := &fakeSubscriber{}

	rec := post(t, sub, "/newsletter/subscribe", `{"email":"  Jane@Example.com "}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body)
	}
	if resp := decodeForm(t, rec); !resp.Success || !strings.Contains(resp.Message, "Successfully") {
		t.Errorf("response = %+v", resp)
	}
	if len(sub.subscribed) != 1 || sub.subscribed[0] != "jane@example.com" {
		t.Errorf("subscribed = %v, want normalized email", sub.subscribed)
	}
}

func TestSubscribeAlreadySubscribed(t *testing.T) {
	sub := &fakeSubscriber{already: true}

	rec := post(t, sub, "/newsletter/subscribe", `{"email":"jane@example.com"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if resp := decodeForm(t, rec); !strings.Contains(resp.Message, "already subscribed") {
		t.Errorf("message = %q", resp.Message)
	}
}

func TestSubscribeValidation(t *testing.T) {
	for _, body := range []string{`{}`, `{"email":"not-an-email"}`, `nope`} {
		sub := &fakeSubscriber{}
		if rec := post(t, sub, "/newsletter/subscribe", body); rec.Code != http.StatusBadRequest {
			t.Errorf("body %s: status = %d, want 400", body, rec.Code)
		}
		if len(sub.subscribed) != 0 {
			t.Errorf("body %s: subscriber called", body)
		}
	}
}

func TestFormErrors(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"crm not configured", notify.ErrNotConfigured, http.StatusInternalServerError},
		{"crm failure", errors.New("brevo 503"), http.StatusBadGateway},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := post(t, &fakeSubscriber{err: tt.err}, "/newsletter/subscribe", `{"email":"a@b.co"}`)
			if rec.Code != tt.want {
				t.Errorf("status = %d, want %d", rec.Code, tt.want)
			}
		})
	}
}

func TestBookSession(t *testing.T) {
	sub := &fakeSubscriber{}
	body := `{
		"firstName": "Jane",
		"lastName": "Doe",
		"email": "JANE@example.com",
		"phone": "+1 555 0100",
		"message": "I'd like a consult",
		"interests": ["nutrition", "cycle tracking"],
		"newsletterOptIn": true
	}`

	rec := post(t, sub, "/book-session", body)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body)
	}
	if len(sub.bookings) != 1 {
		t.Fatalf("bookings = %d, want 1", len(sub.bookings))
	}

	b := sub.bookings[0]
	if b.Email != "jane@example.com" || !b.NewsletterOptIn || len(b.Interests) != 2 {
		t.Errorf("booking = %+v", b)
	}
}

func TestBookSessionRequiresAllFields(t *testing.T) {
	sub := &fakeSubscriber{}

	rec := post(t, sub, "/book-session", `{"firstName":"Jane","email":"jane@example.com"}`)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
	if len(sub.bookings) != 0 {
		t.Error("booking forwarded despite missing fields")
	}
}
