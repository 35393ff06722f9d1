package taxii

import (
	"bytes"
	"context"
	"crypto/tls"
	"crypto/x509"
	"encoding/xml"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"time"

	"github.com/google/uuid"
	"golang.org/x/oauth2"

	"github.com/custodia-labs/ctitrans/internal/connectors/ratelimit"
	"github.com/custodia-labs/ctitrans/internal/logger"
)

// DefaultTimeout is the default HTTP request timeout.
const DefaultTimeout = 60 * time.Second

// maxResponseSize bounds a single TAXII response body.
const maxResponseSize = 256 << 20

// Auth holds the credentials for a TAXII service.
type Auth struct {
	Username string
	Password string
	// Token is sent as a bearer token.
	Token string
	// KeyFile and CertFile enable client certificate authentication.
	KeyFile  string
	CertFile string
	// CAFile verifies the server certificate.
	CAFile string
}

// Client sends TAXII 1.1 messages over HTTP(S).
type Client struct {
	endpoint string
	auth     Auth
	http     *http.Client
	limiter  *ratelimit.Limiter
	log      *logger.Logger
	newID    func() string
}

// ClientOption configures a Client.
type ClientOption func(*Client)

// WithHTTPClient replaces the HTTP client.
func WithHTTPClient(hc *http.Client) ClientOption {
	return func(c *Client) { c.http = hc }
}

// WithLimiter replaces the rate limiter.
func WithLimiter(l *ratelimit.Limiter) ClientOption {
	return func(c *Client) { c.limiter = l }
}

// WithClientLogger sets the logger.
func WithClientLogger(log *logger.Logger) ClientOption {
	return func(c *Client) {
		if log != nil {
			c.log = log
		}
	}
}

// NewClient creates a client for the TAXII service at endpoint.
func NewClient(endpoint string, auth Auth, opts ...ClientOption) (*Client, error) {
	if endpoint == "" {
		return nil, ErrNoEndpoint
	}
	u, err := url.Parse(endpoint)
	if err != nil || u.Host == "" {
		return nil, fmt.Errorf("taxii: invalid URL %q", endpoint)
	}

	c := &Client{
		endpoint: endpoint,
		auth:     auth,
		limiter:  ratelimit.New(ratelimit.ServiceTAXII),
		log:      logger.Discard(),
		newID:    func() string { return uuid.New().String() },
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.http == nil {
		hc, err := c.buildHTTPClient(u.Scheme == "https")
		if err != nil {
			return nil, err
		}
		c.http = hc
	}
	return c, nil
}

// buildHTTPClient configures TLS and authentication.
func (c *Client) buildHTTPClient(useTLS bool) (*http.Client, error) {
	transport := http.DefaultTransport.(*http.Transport).Clone()

	if useTLS {
		tlsConfig := &tls.Config{MinVersion: tls.VersionTLS12}
		if c.auth.CAFile != "" {
			pem, err := os.ReadFile(c.auth.CAFile)
			if err != nil {
				return nil, fmt.Errorf("taxii: read CA file: %w", err)
			}
			pool := x509.NewCertPool()
			if !pool.AppendCertsFromPEM(pem) {
				return nil, fmt.Errorf("taxii: no certificates in %s", c.auth.CAFile)
			}
			tlsConfig.RootCAs = pool
			c.log.Debug("SSL - server verification using file (%s)", c.auth.CAFile)
		}
		if c.auth.KeyFile != "" && c.auth.CertFile != "" {
			cert, err := tls.LoadX509KeyPair(c.auth.CertFile, c.auth.KeyFile)
			if err != nil {
				return nil, fmt.Errorf("taxii: load client certificate: %w", err)
			}
			tlsConfig.Certificates = []tls.Certificate{cert}
			c.log.Debug("AUTH - using certificate (%s)", c.auth.CertFile)
		}
		transport.TLSClientConfig = tlsConfig
	}

	var rt http.RoundTripper = transport
	if c.auth.Token != "" {
		c.log.Debug("AUTH - using bearer token")
		rt = &oauth2.Transport{
			Source: oauth2.StaticTokenSource(&oauth2.Token{AccessToken: c.auth.Token, TokenType: "Bearer"}),
			Base:   transport,
		}
	}
	return &http.Client{Transport: rt, Timeout: DefaultTimeout}, nil
}

// Endpoint returns the service URL.
func (c *Client) Endpoint() string {
	return c.endpoint
}

// Poll sends a poll request and returns the first response part.
func (c *Client) Poll(ctx context.Context, collection, subscriptionID string, begin, end time.Time) (*PollResponse, error) {
	req := NewPollRequest(c.newID(), collection, subscriptionID, begin, end)
	c.log.Debug("sending TAXII poll request")
	return c.pollMessage(ctx, req, req.MessageID)
}

// Fulfill requests part of a multi-part poll result.
func (c *Client) Fulfill(ctx context.Context, collection, resultID string, part int) (*PollResponse, error) {
	req := NewPollFulfillment(c.newID(), collection, resultID, part)
	c.log.Debug("sending TAXII poll fulfillment request (result %s, part %d)", resultID, part)
	return c.pollMessage(ctx, req, req.MessageID)
}

// Inbox submits STIX payloads to a destination collection.
func (c *Client) Inbox(ctx context.Context, collection string, payloads ...[]byte) error {
	msg := NewInboxMessage(c.newID(), collection, payloads...)
	c.log.Debug("sending TAXII inbox message")
	body, err := c.send(ctx, msg)
	if err != nil {
		return err
	}
	if rootElement(body) != MessageStatus {
		return fmt.Errorf("%w: expected %s", ErrUnexpectedResponse, MessageStatus)
	}
	return statusError(body)
}

func (c *Client) pollMessage(ctx context.Context, msg any, messageID string) (*PollResponse, error) {
	body, err := c.send(ctx, msg)
	if err != nil {
		return nil, err
	}
	switch rootElement(body) {
	case MessagePollResponse:
		var resp PollResponse
		if err := xml.Unmarshal(body, &resp); err != nil {
			return nil, fmt.Errorf("taxii: decode poll response: %w", err)
		}
		if resp.InResponseTo != "" && resp.InResponseTo != messageID {
			c.log.Warn("poll response in_response_to %q does not match request %q", resp.InResponseTo, messageID)
		}
		return &resp, nil
	case MessageStatus:
		if err := statusError(body); err != nil {
			return nil, err
		}
		return nil, fmt.Errorf("%w: status message instead of %s", ErrUnexpectedResponse, MessagePollResponse)
	default:
		return nil, fmt.Errorf("%w: expected %s", ErrUnexpectedResponse, MessagePollResponse)
	}
}

// send posts a TAXII message and returns the response body.
func (c *Client) send(ctx context.Context, msg any) ([]byte, error) {
	payload, err := xml.Marshal(msg)
	if err != nil {
		return nil, fmt.Errorf("taxii: encode message: %w", err)
	}

	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("taxii: build request: %w", err)
	}
	protocol := ProtocolHTTP
	if req.URL.Scheme == "https" {
		protocol = ProtocolHTTPS
	}
	req.Header.Set("Content-Type", "application/xml")
	req.Header.Set("Accept", "application/xml")
	req.Header.Set("User-Agent", "ctitrans")
	req.Header.Set("X-TAXII-Content-Type", MessageBinding)
	req.Header.Set("X-TAXII-Accept", MessageBinding)
	req.Header.Set("X-TAXII-Services", ServicesVersion)
	req.Header.Set("X-TAXII-Protocol", protocol)
	if c.auth.Username != "" && c.auth.Token == "" {
		c.log.Debug("AUTH - using user credentials (%s)", c.auth.Username)
		req.SetBasicAuth(c.auth.Username, c.auth.Password)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("taxii: request failed: %w", err)
	}
	defer resp.Body.Close()

	if err := c.limiter.Check(resp); err != nil {
		return nil, err
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &HTTPError{StatusCode: resp.StatusCode, URL: c.endpoint}
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return nil, fmt.Errorf("taxii: read response: %w", err)
	}
	return body, nil
}

// statusError decodes a status message and returns a *StatusError
// unless it reports success.
func statusError(body []byte) error {
	var status StatusMessage
	if err := xml.Unmarshal(body, &status); err != nil {
		return fmt.Errorf("taxii: decode status message: %w", err)
	}
	if status.StatusType == StatusSuccess {
		return nil
	}
	return &StatusError{StatusType: status.StatusType, Message: status.Message}
}
