// AngelaMos | 2026
// brevo.go

package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/avast/retry-go"

	"github.com/fertilityflow/portal/internal/config"
)

var (
	ErrNotConfigured  = errors.New("brevo api key not configured")
	ErrContactExists  = errors.New("brevo contact already exists")
	ErrContactMissing = errors.New("brevo contact not found")
)

const maxErrorBody = 4 << 10

// APIError is a non-2xx Brevo response.
type APIError struct {
	Status  int
	Code    string `json:"code"`
	Message string `json:"message"`
}

func (e *APIError) Error() string {
	return fmt.Sprintf("brevo: status %d: %s %s", e.Status, e.Code, e.Message)
}

func (e *APIError) retryable() bool {
	return e.Status == http.StatusTooManyRequests ||
		e.Status >= http.StatusInternalServerError
}

func (e *APIError) duplicate() bool {
	return e.Code == "duplicate_parameter" ||
		(e.Status == http.StatusBadRequest &&
			strings.Contains(strings.ToLower(e.Message), "already exist"))
}

type Recipient struct {
	Email string `json:"email"`
	Name  string `json:"name,omitempty"`
}

type TemplateEmail struct {
	TemplateID int64
	To         Recipient
	Params     map[string]any
}

type Contact struct {
	Email      string         `json:"email"`
	Attributes map[string]any `json:"attributes,omitempty"`
	ListIDs    []int64        `json:"listIds,omitempty"`
}

// Client talks to the Brevo v3 REST API.
type Client struct {
	http     *http.Client
	baseURL  string
	apiKey   string
	attempts uint
	delay    time.Duration
}

func NewClient(cfg config.NotifyConfig) *Client {
	attempts := cfg.RetryAttempts
	if attempts == 0 {
		attempts = 1
	}

	return &Client{
		http:     &http.Client{Timeout: cfg.Timeout},
		baseURL:  strings.TrimRight(cfg.BrevoBaseURL, "/"),
		apiKey:   cfg.BrevoAPIKey,
		attempts: attempts,
		delay:    cfg.RetryDelay,
	}
}

func (c *Client) Configured() bool {
	return c.apiKey != ""
}

func (c *Client) SendTemplate(ctx context.Context, email TemplateEmail) error {
	body := map[string]any{
		"to":         []Recipient{email.To},
		"templateId": email.TemplateID,
	}
	if len(email.Params) > 0 {
		body["params"] = email.Params
	}

	return c.do(ctx, http.MethodPost, "/smtp/email", body, nil)
}

// CreateContact adds a contact. It returns ErrContactExists when Brevo
// reports a duplicate even with updateEnabled set.
func (c *Client) CreateContact(ctx context.Context, contact Contact) error {
	body := map[string]any{
		"email":         contact.Email,
		"updateEnabled": true,
	}
	if len(contact.Attributes) > 0 {
		body["attributes"] = contact.Attributes
	}
	if len(contact.ListIDs) > 0 {
		body["listIds"] = contact.ListIDs
	}

	err := c.do(ctx, http.MethodPost, "/contacts", body, nil)

	var apiErr *APIError
	if errors.As(err, &apiErr) && apiErr.duplicate() {
		return ErrContactExists
	}
	return err
}

func (c *Client) GetContact(ctx context.Context, email string) (*Contact, error) {
	var contact Contact
	err := c.do(ctx, http.MethodGet, "/contacts/"+url.PathEscape(email), nil, &contact)

	var apiErr *APIError
	if errors.As(err, &apiErr) && apiErr.Status == http.StatusNotFound {
		return nil, ErrContactMissing
	}
	if err != nil {
		return nil, err
	}

	return &contact, nil
}

func (c *Client) UpdateContact(ctx context.Context, contact Contact) error {
	body := map[string]any{}
	if len(contact.Attributes) > 0 {
		body["attributes"] = contact.Attributes
	}
	if len(contact.ListIDs) > 0 {
		body["listIds"] = contact.ListIDs
	}

	return c.do(ctx, http.MethodPut, "/contacts/"+url.PathEscape(contact.Email), body, nil)
}

func (c *Client) do(
	ctx context.Context,
	method, path string,
	body any,
	out any,
) error {
	if !c.Configured() {
		return ErrNotConfigured
	}

	var payload []byte
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode brevo request: %w", err)
		}
		payload = b
	}

	return retry.Do(
		func() error {
			return c.send(ctx, method, path, payload, out)
		},
		retry.Context(ctx),
		retry.Attempts(c.attempts),
		retry.Delay(c.delay),
		retry.MaxDelay(5*time.Second),
		retry.LastErrorOnly(true),
		retry.RetryIf(isRetryable),
	)
}

func (c *Client) send(
	ctx context.Context,
	method, path string,
	payload []byte,
	out any,
) error {
	var reader io.Reader
	if payload != nil {
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("build brevo request: %w", err)
	}
	req.Header.Set("api-key", c.apiKey)
	req.Header.Set("accept", "application/json")
	if payload != nil {
		req.Header.Set("content-type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("brevo %s %s: %w", method, path, err)
	}
	defer resp.Body.Close() //nolint:errcheck // read-only body

	if resp.StatusCode >= http.StatusBadRequest {
		apiErr := &APIError{Status: resp.StatusCode}
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody)) //nolint:errcheck // best-effort error body
		if len(raw) > 0 {
			_ = json.Unmarshal(raw, apiErr) //nolint:errcheck // body may not be json
		}
		return apiErr
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode brevo response: %w", err)
	}
	return nil
}

func isRetryable(err error) bool {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.retryable()
	}
	return !errors.Is(err, context.Canceled) &&
		!errors.Is(err, context.DeadlineExceeded)
}
