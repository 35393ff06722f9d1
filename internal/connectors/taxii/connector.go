package taxii

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/custodia-labs/ctitrans/internal/core/domain"
	"github.com/custodia-labs/ctitrans/internal/core/ports/driven"
	"github.com/custodia-labs/ctitrans/internal/logger"
)

// Ensure Connector implements the interface.
var _ driven.DocumentSource = (*Connector)(nil)

// Type is the source type identifier.
const Type = "taxii"

// maxParts bounds the number of fulfillment requests for one poll.
const maxParts = 10000

// Setting keys read from domain.SourceConfig.Settings.
const (
	SettingPollURL        = "poll_url"
	SettingCollection     = "collection"
	SettingBegin          = "begin_timestamp"
	SettingEnd            = "end_timestamp"
	SettingSubscriptionID = "subscription_id"
	SettingUsername       = "username"
	SettingPassword       = "password"
	SettingToken          = "token"
	SettingKeyFile        = "key_file"
	SettingCertFile       = "cert_file"
	SettingCAFile         = "ca_file"
	SettingSaveDir        = "xml_output"
)

// Config describes a TAXII poll.
type Config struct {
	PollURL        string
	Collection     string
	SubscriptionID string
	Begin          time.Time
	End            time.Time
	Auth           Auth
	// SaveDir receives a copy of every content block when set.
	SaveDir string
}

// ConfigFromSettings builds a Config from source settings.
// Timestamps are RFC 3339.
func ConfigFromSettings(settings map[string]string) (Config, error) {
	cfg := Config{
		PollURL:        settings[SettingPollURL],
		Collection:     settings[SettingCollection],
		SubscriptionID: settings[SettingSubscriptionID],
		SaveDir:        settings[SettingSaveDir],
		Auth:           AuthFromSettings(settings),
	}
	if cfg.PollURL == "" {
		return Config{}, fmt.Errorf("%w: taxii poll URL is required", domain.ErrInvalidInput)
	}
	if cfg.Collection == "" {
		return Config{}, fmt.Errorf("%w: taxii collection is required", domain.ErrInvalidInput)
	}

	var err error
	if cfg.Begin, err = parseSetting(settings, SettingBegin); err != nil {
		return Config{}, err
	}
	if cfg.End, err = parseSetting(settings, SettingEnd); err != nil {
		return Config{}, err
	}
	if !cfg.Begin.IsZero() && !cfg.End.IsZero() && !cfg.Begin.Before(cfg.End) {
		return Config{}, fmt.Errorf("%w: begin timestamp must precede end timestamp", domain.ErrInvalidInput)
	}
	if cfg.SaveDir != "" {
		info, err := os.Stat(cfg.SaveDir)
		if err != nil || !info.IsDir() {
			return Config{}, fmt.Errorf("%w: output directory for TAXII content blocks (%s) does not exist",
				domain.ErrInvalidInput, cfg.SaveDir)
		}
	}
	return cfg, nil
}

// AuthFromSettings reads the credential settings shared by poll and
// inbox services.
func AuthFromSettings(settings map[string]string) Auth {
	return Auth{
		Username: settings[SettingUsername],
		Password: settings[SettingPassword],
		Token:    settings[SettingToken],
		KeyFile:  settings[SettingKeyFile],
		CertFile: settings[SettingCertFile],
		CAFile:   settings[SettingCAFile],
	}
}

func parseSetting(settings map[string]string, key string) (time.Time, error) {
	v := settings[key]
	if v == "" {
		return time.Time{}, nil
	}
	t, err := time.Parse(time.RFC3339, v)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: %s %q: %v", domain.ErrInvalidInput, key, v, err)
	}
	return t, nil
}

// Connector polls a TAXII 1.1 collection.
type Connector struct {
	cfg    Config
	client *Client
	log    *logger.Logger

	mu       sync.Mutex
	received int
	endTime  time.Time
	closed   bool
}

// New creates a connector using client for requests.
func New(cfg Config, client *Client, log *logger.Logger) *Connector {
	if log == nil {
		log = logger.Discard()
	}
	return &Connector{cfg: cfg, client: client, log: log}
}

// Type returns the source type identifier.
func (c *Connector) Type() string {
	return Type
}

// Description summarises the poll, e.g. "2 STIX packages from TAXII poll
// response (collection: 'x'; poll URL: 'u'; end time: 't')".
func (c *Connector) Description() string {
	c.mu.Lock()
	received, end := c.received, c.endTime
	c.mu.Unlock()

	endLabel := "-"
	if !end.IsZero() {
		endLabel = end.UTC().Format("2006-01-02 15:04:05.000000-07:00")
	}
	return fmt.Sprintf("%d STIX packages from TAXII poll response (collection: '%s'; poll URL: '%s'; end time: '%s')",
		received, c.cfg.Collection, c.cfg.PollURL, endLabel)
}

// Documents polls the collection and streams each content block,
// following multi-part results with fulfillment requests.
func (c *Connector) Documents(ctx context.Context) (<-chan domain.RawDocument, <-chan error) {
	docs := make(chan domain.RawDocument)
	errs := make(chan error, 1)

	go func() {
		defer close(docs)
		defer close(errs)

		c.mu.Lock()
		closed := c.closed
		c.mu.Unlock()
		if closed {
			errs <- domain.ErrSourceClosed
			return
		}

		resp, err := c.client.Poll(ctx, c.cfg.Collection, c.cfg.SubscriptionID, c.cfg.Begin, c.cfg.End)
		if err != nil {
			errs <- err
			return
		}

		for part := 1; ; part++ {
			if !c.emit(ctx, docs, resp) {
				return
			}
			if !resp.More || resp.ResultID == "" {
				return
			}
			if part >= maxParts {
				c.log.Warn("stopping after %d result parts of %s", part, resp.ResultID)
				return
			}
			next := resp.ResultPartNumber + 1
			if resp.ResultPartNumber == 0 {
				next = part + 1
			}
			resp, err = c.client.Fulfill(ctx, c.cfg.Collection, resp.ResultID, next)
			if err != nil {
				errs <- err
				return
			}
		}
	}()

	return docs, errs
}

// emit sends the content blocks of one response part. It returns false
// when ctx is done.
func (c *Connector) emit(ctx context.Context, docs chan<- domain.RawDocument, resp *PollResponse) bool {
	collection := resp.CollectionName
	if collection == "" {
		collection = c.cfg.Collection
	}

	c.mu.Lock()
	if end := resp.EndTime(); !end.IsZero() {
		c.endTime = end
	}
	c.mu.Unlock()

	for i := range resp.ContentBlocks {
		block := &resp.ContentBlocks[i]
		if id := block.BindingID(); id != "" && !strings.HasPrefix(id, "urn:stix.mitre.org:xml") {
			c.log.Debug("skipping content block with binding %s", id)
			continue
		}
		payload := block.Payload()

		c.mu.Lock()
		c.received++
		n := c.received
		c.mu.Unlock()

		if c.cfg.SaveDir != "" {
			if err := c.save(collection, n, block, payload); err != nil {
				c.log.Warn("unable to save content block: %v", err)
			}
		}

		metadata := map[string]string{
			domain.MetaTAXIIPollURL:    c.cfg.PollURL,
			domain.MetaTAXIICollection: collection,
		}
		if ts := block.TimestampLabel(); !ts.IsZero() {
			metadata[domain.MetaTAXIITimestamp] = ts.UTC().Format(time.RFC3339Nano)
		}

		doc := domain.RawDocument{
			URI:      fmt.Sprintf("%s#%s/%d", c.cfg.PollURL, collection, n),
			MIMEType: "application/xml",
			Content:  payload,
			Metadata: metadata,
		}
		select {
		case docs <- doc:
		case <-ctx.Done():
			return false
		}
	}
	return true
}

// save writes a content block to the output directory.
func (c *Connector) save(collection string, n int, block *ContentBlock, payload []byte) error {
	name := fmt.Sprintf("%s_%04d", sanitise(collection), n)
	if ts := block.TimestampLabel(); !ts.IsZero() {
		name = fmt.Sprintf("%s_%s", name, ts.UTC().Format("20060102T150405.000000Z"))
	}
	path := filepath.Join(c.cfg.SaveDir, name+".xml")
	c.log.Debug("saving content block to %s", path)
	return os.WriteFile(path, payload, 0o644)
}

func sanitise(s string) string {
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_', r == '.':
			return r
		}
		return '_'
	}, s)
}

// Close marks the connector closed. Close is idempotent.
func (c *Connector) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	return nil
}
