package filesystem

import (
	"context"
	"fmt"
	"mime"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/custodia-labs/ctitrans/internal/core/domain"
	"github.com/custodia-labs/ctitrans/internal/core/ports/driven"
	"github.com/custodia-labs/ctitrans/internal/logger"
)

// Ensure Connector implements the interface.
var _ driven.DocumentSource = (*Connector)(nil)

// Type is the source type identifier.
const Type = "file"

// Connector reads STIX documents from files and directories.
type Connector struct {
	paths   []string
	recurse bool
	watch   bool
	log     *logger.Logger
	started time.Time

	mu       sync.Mutex
	listed   []string
	listErr  error
	isListed bool
	seen     map[string]fileStamp
	closed   bool
	watcher  *fsnotify.Watcher
}

// fileStamp identifies a version of a file already emitted.
type fileStamp struct {
	size    int64
	modTime time.Time
}

// Option configures a Connector.
type Option func(*Connector)

// WithRecurse descends into subdirectories.
func WithRecurse(recurse bool) Option {
	return func(c *Connector) { c.recurse = recurse }
}

// WithWatch keeps streaming files created or written under the
// directories until the context ends.
func WithWatch(watch bool) Option {
	return func(c *Connector) { c.watch = watch }
}

// WithLogger sets the logger.
func WithLogger(log *logger.Logger) Option {
	return func(c *Connector) {
		if log != nil {
			c.log = log
		}
	}
}

// New creates a connector over the given files and directories.
func New(paths []string, opts ...Option) *Connector {
	c := &Connector{
		paths:   paths,
		log:     logger.Discard(),
		started: time.Now(),
		seen:    make(map[string]fileStamp),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Type returns the source type identifier.
func (c *Connector) Type() string {
	return Type
}

// Description summarises the files this source reads, e.g.
// "3 STIX packages from directory 'feeds' (recursion: true; processed: '...')".
func (c *Connector) Description() string {
	files, _ := c.files()
	count := len(files)

	var origin string
	switch {
	case len(c.paths) == 1 && isDir(c.paths[0]):
		origin = fmt.Sprintf("directory '%s'", c.paths[0])
	case len(c.paths) == 1:
		origin = fmt.Sprintf("file '%s'", c.paths[0])
	default:
		origin = "various files"
	}

	var details strings.Builder
	if c.recurse {
		details.WriteString("recursion: true; ")
	}
	if len(c.paths) > 1 {
		fmt.Fprintf(&details, "file prefix: '%s*'; ", commonPrefix(files))
	}
	fmt.Fprintf(&details, "processed: '%s'", c.started.Format("2006-01-02 15:04:05"))

	plural := ""
	if count != 1 {
		plural = "s"
	}
	return fmt.Sprintf("%d STIX package%s from %s (%s)", count, plural, origin, details.String())
}

// Validate checks that every configured path exists.
func (c *Connector) Validate(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if len(c.paths) == 0 {
		return fmt.Errorf("%w: no input files", domain.ErrInvalidInput)
	}
	for _, p := range c.paths {
		if _, err := os.Stat(p); err != nil {
			return fmt.Errorf("root path error: %w", err)
		}
	}
	return nil
}

// Documents streams one raw document per file, in sorted order per
// directory. In watch mode it then streams new or rewritten files until
// ctx is cancelled.
func (c *Connector) Documents(ctx context.Context) (<-chan domain.RawDocument, <-chan error) {
	docs := make(chan domain.RawDocument)
	errs := make(chan error, 1)

	go func() {
		defer close(docs)
		defer close(errs)

		if err := c.Validate(ctx); err != nil {
			errs <- err
			return
		}

		c.mu.Lock()
		closed := c.closed
		c.mu.Unlock()
		if closed {
			errs <- domain.ErrSourceClosed
			return
		}

		var watcher *fsnotify.Watcher
		if c.watch {
			// Watch before listing so files written during the listing are not missed.
			w, err := c.startWatcher()
			if err != nil {
				errs <- err
				return
			}
			watcher = w
		}

		files, err := c.files()
		if err != nil {
			errs <- err
			return
		}
		for _, path := range files {
			doc, ok := c.read(path)
			if !ok {
				continue
			}
			select {
			case docs <- doc:
			case <-ctx.Done():
				return
			}
		}

		if watcher == nil {
			return
		}
		c.log.Info("Watching %d path(s) for new STIX documents", len(c.paths))
		for {
			select {
			case <-ctx.Done():
				return
			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				doc := c.handleFsEvent(event)
				if doc == nil {
					continue
				}
				select {
				case docs <- *doc:
				case <-ctx.Done():
					return
				}
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				c.log.Warn("watch error: %v", err)
			}
		}
	}()

	return docs, errs
}

// Close stops any watcher. Close is idempotent.
func (c *Connector) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil
	}
	c.closed = true
	if c.watcher != nil {
		err := c.watcher.Close()
		c.watcher = nil
		return err
	}
	return nil
}

// files lists the input files once.
func (c *Connector) files() ([]string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.isListed {
		return c.listed, c.listErr
	}
	c.isListed = true
	for _, p := range c.paths {
		if err := c.add(p, true); err != nil {
			c.listErr = err
			break
		}
	}
	return c.listed, c.listErr
}

// add appends file paths under p. Subdirectories are only entered at the
// top level or when recursing.
func (c *Connector) add(p string, top bool) error {
	info, err := os.Stat(p)
	if err != nil {
		return fmt.Errorf("root path error: %w", err)
	}
	if !info.IsDir() {
		if info.Mode().IsRegular() {
			c.listed = append(c.listed, p)
		}
		return nil
	}
	if !top && !c.recurse {
		return nil
	}
	entries, err := os.ReadDir(p)
	if err != nil {
		return fmt.Errorf("read directory %s: %w", p, err)
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		names = append(names, e.Name())
	}
	sort.Strings(names)
	for _, name := range names {
		if strings.HasPrefix(name, ".") {
			continue
		}
		if err := c.add(filepath.Join(p, name), false); err != nil {
			return err
		}
	}
	return nil
}

// read loads one file. Files whose size and modification time were
// already emitted are skipped.
func (c *Connector) read(path string) (domain.RawDocument, bool) {
	info, err := os.Stat(path)
	if err != nil || !info.Mode().IsRegular() {
		return domain.RawDocument{}, false
	}
	stamp := fileStamp{size: info.Size(), modTime: info.ModTime()}

	c.mu.Lock()
	prev, ok := c.seen[path]
	c.mu.Unlock()
	if ok && prev == stamp {
		return domain.RawDocument{}, false
	}

	content, err := os.ReadFile(path)
	if err != nil {
		c.log.Warn("skipping file '%s': %v", path, err)
		return domain.RawDocument{}, false
	}

	c.mu.Lock()
	c.seen[path] = stamp
	c.mu.Unlock()

	return domain.RawDocument{
		URI:      path,
		MIMEType: detectMIMEType(path),
		Content:  content,
		Metadata: map[string]string{
			domain.MetaFilename: filepath.Base(path),
			domain.MetaPath:     path,
		},
	}, true
}

func (c *Connector) startWatcher() (*fsnotify.Watcher, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil, domain.ErrSourceClosed
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("create watcher: %w", err)
	}
	for _, p := range c.paths {
		if err := c.watchPath(watcher, p); err != nil {
			watcher.Close()
			return nil, err
		}
	}
	c.watcher = watcher
	return watcher, nil
}

func (c *Connector) watchPath(watcher *fsnotify.Watcher, root string) error {
	if !isDir(root) {
		return watcher.Add(filepath.Dir(root))
	}
	if !c.recurse {
		return watcher.Add(root)
	}
	return filepath.WalkDir(root, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			return nil
		}
		if path != root && isHidden(path) {
			return filepath.SkipDir
		}
		return watcher.Add(path)
	})
}

// handleFsEvent converts a filesystem event into a document for files
// created or written. Other events return nil.
func (c *Connector) handleFsEvent(event fsnotify.Event) *domain.RawDocument {
	if !event.Has(fsnotify.Create) && !event.Has(fsnotify.Write) {
		return nil
	}
	if isHidden(event.Name) {
		return nil
	}
	info, err := os.Stat(event.Name)
	if err != nil {
		return nil
	}
	if info.IsDir() {
		if c.recurse && event.Has(fsnotify.Create) {
			c.mu.Lock()
			if c.watcher != nil {
				if err := c.watcher.Add(event.Name); err != nil {
					c.log.Warn("unable to watch %s: %v", event.Name, err)
				}
			}
			c.mu.Unlock()
		}
		return nil
	}
	// Created files are read once their content has been written.
	if info.Size() == 0 || !c.covers(event.Name) {
		return nil
	}
	doc, ok := c.read(event.Name)
	if !ok {
		return nil
	}
	return &doc
}

// covers reports whether path is one of the configured files or lies in
// a watched directory.
func (c *Connector) covers(path string) bool {
	for _, p := range c.paths {
		if path == p {
			return true
		}
		if isDir(p) {
			rel, err := filepath.Rel(p, path)
			if err != nil || strings.HasPrefix(rel, "..") {
				continue
			}
			if c.recurse || !strings.ContainsRune(rel, filepath.Separator) {
				return true
			}
		}
	}
	return false
}

func isDir(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.IsDir()
}

// isHidden checks if any element of path starts with a dot.
// "." and ".." are not hidden.
func isHidden(path string) bool {
	for _, part := range strings.Split(filepath.ToSlash(path), "/") {
		if part == "" || part == "." || part == ".." {
			continue
		}
		if strings.HasPrefix(part, ".") {
			return true
		}
	}
	return false
}

// detectMIMEType determines the content type from the file extension.
// STIX feeds are usually .xml; files without a known type are assumed XML.
func detectMIMEType(path string) string {
	ext := strings.ToLower(filepath.Ext(path))
	switch ext {
	case "", ".xml", ".stix":
		return "application/xml"
	}
	if mimeType := mime.TypeByExtension(ext); mimeType != "" {
		if base, _, err := mime.ParseMediaType(mimeType); err == nil {
			return base
		}
		return mimeType
	}
	return "application/octet-stream"
}

func commonPrefix(paths []string) string {
	if len(paths) == 0 {
		return ""
	}
	prefix := paths[0]
	for _, p := range paths[1:] {
		for !strings.HasPrefix(p, prefix) {
			prefix = prefix[:len(prefix)-1]
		}
	}
	return prefix
}
