package misp

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

	"github.com/custodia-labs/ctitrans/internal/connectors/ratelimit"
)

// DefaultTimeout is the default HTTP request timeout.
const DefaultTimeout = 30 * time.Second

// ErrNoURL indicates no MISP URL was configured.
var ErrNoURL = errors.New("misp: no server URL")

// HTTPError is a non-2xx response from the MISP API.
type HTTPError struct {
	StatusCode int
	Message    string
}

func (e *HTTPError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("misp: HTTP %d", e.StatusCode)
	}
	return fmt.Sprintf("misp: HTTP %d: %s", e.StatusCode, e.Message)
}

// Event is a MISP event.
type Event struct {
	ID            string      `json:"id,omitempty"`
	Info          string      `json:"info"`
	Distribution  string      `json:"distribution"`
	ThreatLevelID string      `json:"threat_level_id"`
	Analysis      string      `json:"analysis"`
	Published     bool        `json:"published"`
	Attributes    []Attribute `json:"Attribute,omitempty"`
}

// Attribute is a MISP event attribute.
type Attribute struct {
	Type     string `json:"type"`
	Category string `json:"category"`
	Value    string `json:"value"`
	ToIDS    bool   `json:"to_ids"`
	Comment  string `json:"comment,omitempty"`
}

type eventEnvelope struct {
	Event Event `json:"Event"`
}

type errorResponse struct {
	Message string `json:"message"`
	Name    string `json:"name"`
}

// Client talks to the MISP REST API.
type Client struct {
	baseURL string
	key     string
	http    *http.Client
	limiter *ratelimit.Limiter
}

// NewClient creates a client for the MISP instance at baseURL.
func NewClient(baseURL, key string, hc *http.Client) (*Client, error) {
	if baseURL == "" {
		return nil, ErrNoURL
	}
	u, err := url.Parse(baseURL)
	if err != nil || u.Host == "" {
		return nil, fmt.Errorf("misp: invalid URL %q", baseURL)
	}
	if hc == nil {
		hc = &http.Client{Timeout: DefaultTimeout}
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		key:     key,
		http:    hc,
		limiter: ratelimit.New(ratelimit.ServiceMISP),
	}, nil
}

// CreateEvent adds an event with its attributes and returns the stored
// event.
func (c *Client) CreateEvent(ctx context.Context, event Event) (*Event, error) {
	body, err := json.Marshal(eventEnvelope{Event: event})
	if err != nil {
		return nil, fmt.Errorf("misp: encode event: %w", err)
	}

	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/events", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("misp: build request: %w", err)
	}
	req.Header.Set("Authorization", c.key)
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", "ctitrans")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("misp: request failed: %w", err)
	}
	defer resp.Body.Close()

	if err := c.limiter.Check(resp); err != nil {
		return nil, err
	}
	data, err := io.ReadAll(io.LimitReader(resp.Body, 16<<20))
	if err != nil {
		return nil, fmt.Errorf("misp: read response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		var e errorResponse
		_ = json.Unmarshal(data, &e)
		return nil, &HTTPError{StatusCode: resp.StatusCode, Message: e.Message}
	}

	var out eventEnvelope
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, fmt.Errorf("misp: decode response: %w", err)
	}
	return &out.Event, nil
}
