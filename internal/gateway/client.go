// Package gateway is the thin client for the remote clinic API: identity
// verification, slot inventory, and walk-in queue admission.
package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/wolfman30/clinic-kiosk/internal/observability/metrics"
	"github.com/wolfman30/clinic-kiosk/internal/patient"
	"github.com/wolfman30/clinic-kiosk/internal/slots"
	"github.com/wolfman30/clinic-kiosk/pkg/logging"
)

const defaultTimeout = 15 * time.Second

var tracer = otel.Tracer("kiosk.internal.gateway")

// Client wraps the clinic API calls used by the kiosk.
type Client struct {
	baseURL    string
	httpClient *http.Client
	timeout    *time.Duration
	logger     *logging.Logger
	metrics    *metrics.KioskMetrics
}

// ClientOption is a functional option for configuring the Client.
type ClientOption func(*Client)

// WithHTTPClient sets a custom HTTP client. Nil keeps the default.
func WithHTTPClient(client *http.Client) ClientOption {
	return func(c *Client) {
		if client != nil {
			c.httpClient = client
		}
	}
}

// WithTimeout bounds every call. Zero disables the bound. The caller's
// HTTP client is never modified; the client keeps its own copy.
func WithTimeout(d time.Duration) ClientOption {
	return func(c *Client) {
		c.timeout = &d
	}
}

// WithLogger sets a custom logger.
func WithLogger(logger *logging.Logger) ClientOption {
	return func(c *Client) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// WithMetrics records call counts and latency.
func WithMetrics(m *metrics.KioskMetrics) ClientOption {
	return func(c *Client) {
		c.metrics = m
	}
}

// NewClient creates a clinic API client rooted at baseURL.
func NewClient(baseURL string, opts ...ClientOption) *Client {
	c := &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: defaultTimeout},
		logger:     logging.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.timeout != nil && c.httpClient.Timeout != *c.timeout {
		bounded := *c.httpClient
		bounded.Timeout = *c.timeout
		c.httpClient = &bounded
	}
	return c
}

// Authenticate verifies a patient by national id and phone.
func (c *Client) Authenticate(ctx context.Context, nationalID, phone string) (*patient.Grant, error) {
	var grant patient.Grant
	if err := c.doJSON(ctx, "authenticate", http.MethodPost, "/api/patients/auth", authRequest{NationalID: nationalID, Phone: phone}, &grant); err != nil {
		return nil, err
	}
	return &grant, nil
}

// GetSlots fetches the full slot inventory.
func (c *Client) GetSlots(ctx context.Context) ([]slots.Slot, error) {
	var out []slots.Slot
	if err := c.doJSON(ctx, "get_slots", http.MethodGet, "/api/dev/get/slots", nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// DeleteSlot cancels a slot.
func (c *Client) DeleteSlot(ctx context.Context, slotID int64) error {
	path := "/api/slots/delete/slot/" + strconv.FormatInt(slotID, 10)
	return c.doJSON(ctx, "delete_slot", http.MethodDelete, path, nil, nil)
}

// BookSlot reserves a slot for a patient.
func (c *Client) BookSlot(ctx context.Context, req BookSlotRequest) (*Booking, error) {
	var out Booking
	if err := c.doJSON(ctx, "book_slot", http.MethodPost, "/api/slots/book", req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// JoinQueue admits a patient to the walk-in queue.
func (c *Client) JoinQueue(ctx context.Context, req JoinQueueRequest) (*QueueTicket, error) {
	var out QueueTicket
	if err := c.doJSON(ctx, "join_queue", http.MethodPost, "/api/queue/join", req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// GetQueueStatus returns a doctor's queue.
func (c *Client) GetQueueStatus(ctx context.Context, doctorID int64) (*QueueStatus, error) {
	var out QueueStatus
	path := "/queue/status/" + strconv.FormatInt(doctorID, 10)
	if err := c.doJSON(ctx, "queue_status", http.MethodGet, path, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Health reports whether the clinic API answers at all.
func (c *Client) Health(ctx context.Context) error {
	return c.doJSON(ctx, "health", http.MethodGet, "/health", nil, nil)
}

type envelope struct {
	Status   string          `json:"status"`
	Response json.RawMessage `json:"response"`
	Message  string          `json:"message"`
	Error    string          `json:"error"`
}

func (c *Client) doJSON(ctx context.Context, call, method, path string, body, out any) (err error) {
	ctx, span := tracer.Start(ctx, "gateway."+call, trace.WithSpanKind(trace.SpanKindClient))
	defer span.End()
	span.SetAttributes(
		attribute.String("http.method", method),
		attribute.String("kiosk.api.path", path),
	)

	start := time.Now()
	status := "transport_error"
	defer func() {
		c.metrics.ObserveGatewayCall(call, status, time.Since(start).Seconds())
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, call+" failed")
		}
	}()

	var bodyReader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return &TransportError{Op: call, Err: fmt.Errorf("marshal request: %w", err)}
		}
		bodyReader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, bodyReader)
	if err != nil {
		return &TransportError{Op: call, Err: fmt.Errorf("build request: %w", err)}
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token, ok := TokenFromContext(ctx); ok {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.logger.Warn("gateway request failed", "call", call, "path", path, "error", err)
		return &TransportError{Op: call, Err: err}
	}
	defer resp.Body.Close()
	status = strconv.Itoa(resp.StatusCode)
	span.SetAttributes(attribute.Int("http.status_code", resp.StatusCode))

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return &TransportError{Op: call, Err: fmt.Errorf("read response: %w", err)}
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		var env envelope
		_ = json.Unmarshal(respBody, &env)
		msg := env.Message
		if msg == "" {
			msg = env.Error
		}
		c.logger.Warn("clinic API non-2xx response", "call", call, "status", resp.StatusCode, "path", path, "message", msg)
		return &APIError{Call: call, StatusCode: resp.StatusCode, Message: msg}
	}

	if out == nil || len(bytes.TrimSpace(respBody)) == 0 {
		return nil
	}

	payload, err := unwrap(respBody)
	if err != nil {
		return &TransportError{Op: call, Err: fmt.Errorf("decode response: %w", err)}
	}
	if err := json.Unmarshal(payload, out); err != nil {
		return &TransportError{Op: call, Err: fmt.Errorf("decode response: %w", err)}
	}
	return nil
}

// unwrap returns the "response" member of the API envelope, or the whole body
// when the endpoint answered without one.
func unwrap(body []byte) (json.RawMessage, error) {
	trimmed := bytes.TrimSpace(body)
	if len(trimmed) == 0 || trimmed[0] != '{' {
		return trimmed, nil
	}
	var env envelope
	if err := json.Unmarshal(trimmed, &env); err != nil {
		return nil, err
	}
	if len(env.Response) > 0 && !bytes.Equal(env.Response, []byte("null")) {
		return env.Response, nil
	}
	return trimmed, nil
}

// Message extracts the text a patient should see for a failed call: the
// server's message, then the failure's own message, then fallback.
func Message(err error, fallback string) string {
	if err == nil {
		return fallback
	}
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		if apiErr.Message != "" {
			return apiErr.Message
		}
		return fallback
	}
	var transportErr *TransportError
	if errors.As(err, &transportErr) && transportErr.Err != nil {
		if msg := transportErr.Err.Error(); msg != "" {
			return msg
		}
		return fallback
	}
	if msg := err.Error(); msg != "" {
		return msg
	}
	return fallback
}
