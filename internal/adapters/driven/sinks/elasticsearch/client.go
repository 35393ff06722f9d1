package elasticsearch

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

	"golang.org/x/oauth2"

	"github.com/custodia-labs/ctitrans/internal/connectors/ratelimit"
)

// DefaultTimeout is the default HTTP request timeout.
const DefaultTimeout = 60 * time.Second

// ErrNoURL indicates no Elasticsearch URL was configured.
var ErrNoURL = errors.New("elasticsearch: no server URL")

// HTTPError is a non-2xx response from Elasticsearch.
type HTTPError struct {
	StatusCode int
	Reason     string
}

func (e *HTTPError) Error() string {
	if e.Reason == "" {
		return fmt.Sprintf("elasticsearch: HTTP %d", e.StatusCode)
	}
	return fmt.Sprintf("elasticsearch: HTTP %d: %s", e.StatusCode, e.Reason)
}

// BulkError reports documents rejected inside a successful bulk request.
type BulkError struct {
	Failed int
	// First is the reason given for the first rejected document.
	First string
}

func (e *BulkError) Error() string {
	return fmt.Sprintf("elasticsearch: %d documents rejected (first: %s)", e.Failed, e.First)
}

// Auth holds Elasticsearch credentials. Token takes precedence over
// basic authentication.
type Auth struct {
	Username string
	Password string
	Token    string
}

// BulkItem is one document to index.
type BulkItem struct {
	Index string
	ID    string
	Doc   any
}

type bulkAction struct {
	Index bulkMeta `json:"index"`
}

type bulkMeta struct {
	Index string `json:"_index"`
	ID    string `json:"_id,omitempty"`
}

type bulkResponse struct {
	Errors bool `json:"errors"`
	Items  []map[string]struct {
		Status int `json:"status"`
		Error  *struct {
			Type   string `json:"type"`
			Reason string `json:"reason"`
		} `json:"error"`
	} `json:"items"`
}

type errorResponse struct {
	Error struct {
		Reason string `json:"reason"`
	} `json:"error"`
}

// Client sends bulk index requests.
type Client struct {
	baseURL string
	auth    Auth
	http    *http.Client
	limiter *ratelimit.Limiter
}

// NewClient creates a client for the cluster at baseURL. A nil hc
// selects a default client, wrapped for bearer authentication when a
// token is set.
func NewClient(baseURL string, auth Auth, hc *http.Client) (*Client, error) {
	if baseURL == "" {
		return nil, ErrNoURL
	}
	u, err := url.Parse(baseURL)
	if err != nil || u.Host == "" {
		return nil, fmt.Errorf("elasticsearch: invalid URL %q", baseURL)
	}
	if hc == nil {
		hc = &http.Client{Timeout: DefaultTimeout}
	}
	if auth.Token != "" {
		base := hc.Transport
		if base == nil {
			base = http.DefaultTransport
		}
		hc = &http.Client{
			Timeout: hc.Timeout,
			Transport: &oauth2.Transport{
				Source: oauth2.StaticTokenSource(&oauth2.Token{AccessToken: auth.Token, TokenType: "Bearer"}),
				Base:   base,
			},
		}
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		auth:    auth,
		http:    hc,
		limiter: ratelimit.New(ratelimit.ServiceElasticsearch),
	}, nil
}

// Bulk indexes items in a single request.
func (c *Client) Bulk(ctx context.Context, items []BulkItem) error {
	if len(items) == 0 {
		return nil
	}

	var body bytes.Buffer
	enc := json.NewEncoder(&body)
	for _, item := range items {
		if err := enc.Encode(bulkAction{Index: bulkMeta{Index: item.Index, ID: item.ID}}); err != nil {
			return fmt.Errorf("elasticsearch: encode action: %w", err)
		}
		if err := enc.Encode(item.Doc); err != nil {
			return fmt.Errorf("elasticsearch: encode document: %w", err)
		}
	}

	if err := c.limiter.Wait(ctx); err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/_bulk", &body)
	if err != nil {
		return fmt.Errorf("elasticsearch: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-ndjson")
	req.Header.Set("Accept", "application/json")
	if c.auth.Token == "" && c.auth.Username != "" {
		req.SetBasicAuth(c.auth.Username, c.auth.Password)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("elasticsearch: request failed: %w", err)
	}
	defer resp.Body.Close()

	if err := c.limiter.Check(resp); err != nil {
		return err
	}
	data, err := io.ReadAll(io.LimitReader(resp.Body, 64<<20))
	if err != nil {
		return fmt.Errorf("elasticsearch: read response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		var e errorResponse
		_ = json.Unmarshal(data, &e)
		return &HTTPError{StatusCode: resp.StatusCode, Reason: e.Error.Reason}
	}

	var out bulkResponse
	if err := json.Unmarshal(data, &out); err != nil {
		return fmt.Errorf("elasticsearch: decode response: %w", err)
	}
	if !out.Errors {
		return nil
	}
	bulkErr := &BulkError{}
	for _, item := range out.Items {
		for _, result := range item {
			if result.Error == nil {
				continue
			}
			if bulkErr.Failed == 0 {
				bulkErr.First = result.Error.Reason
			}
			bulkErr.Failed++
		}
	}
	if bulkErr.Failed == 0 {
		return nil
	}
	return bulkErr
}
