package filesystem

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/custodia-labs/ctitrans/internal/core/domain"
	"github.com/custodia-labs/ctitrans/internal/core/ports/driven"
)

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func collect(t *testing.T, c *Connector) ([]domain.RawDocument, error) {
	t.Helper()
	docs, errs := c.Documents(context.Background())
	var out []domain.RawDocument
	for doc := range docs {
		out = append(out, doc)
	}
	return out, <-errs
}

func uris(docs []domain.RawDocument) []string {
	out := make([]string, len(docs))
	for i, d := range docs {
		out[i] = d.URI
	}
	return out
}

func TestNew(t *testing.T) {
	c := New([]string{"/tmp/feeds"}, WithRecurse(true), WithWatch(true), WithLogger(nil))

	require.NotNil(t, c)
	assert.Equal(t, []string{"/tmp/feeds"}, c.paths)
	assert.True(t, c.recurse)
	assert.True(t, c.watch)
	assert.NotNil(t, c.log)
	assert.Equal(t, "file", c.Type())

	var _ driven.DocumentSource = c
}

func TestConnector_Documents(t *testing.T) {
	t.Run("lists directory in sorted order", func(t *testing.T) {
		dir := t.TempDir()
		writeFile(t, filepath.Join(dir, "b.xml"), "<b/>")
		writeFile(t, filepath.Join(dir, "a.xml"), "<a/>")
		writeFile(t, filepath.Join(dir, "c.txt"), "c")

		docs, err := collect(t, New([]string{dir}))
		require.NoError(t, err)
		assert.Equal(t, []string{
			filepath.Join(dir, "a.xml"),
			filepath.Join(dir, "b.xml"),
			filepath.Join(dir, "c.txt"),
		}, uris(docs))

		assert.Equal(t, "<a/>", string(docs[0].Content))
		assert.Equal(t, "application/xml", docs[0].MIMEType)
		assert.Equal(t, "a.xml", docs[0].Metadata[domain.MetaFilename])
		assert.Equal(t, filepath.Join(dir, "a.xml"), docs[0].Metadata[domain.MetaPath])
	})

	t.Run("skips subdirectories without recursion", func(t *testing.T) {
		dir := t.TempDir()
		writeFile(t, filepath.Join(dir, "top.xml"), "<top/>")
		writeFile(t, filepath.Join(dir, "sub", "nested.xml"), "<nested/>")

		docs, err := collect(t, New([]string{dir}))
		require.NoError(t, err)
		assert.Equal(t, []string{filepath.Join(dir, "top.xml")}, uris(docs))
	})

	t.Run("descends into subdirectories with recursion", func(t *testing.T) {
		dir := t.TempDir()
		writeFile(t, filepath.Join(dir, "a", "one.xml"), "<one/>")
		writeFile(t, filepath.Join(dir, "b.xml"), "<b/>")
		writeFile(t, filepath.Join(dir, "a", "deeper", "two.xml"), "<two/>")

		docs, err := collect(t, New([]string{dir}, WithRecurse(true)))
		require.NoError(t, err)
		assert.Equal(t, []string{
			filepath.Join(dir, "a", "deeper", "two.xml"),
			filepath.Join(dir, "a", "one.xml"),
			filepath.Join(dir, "b.xml"),
		}, uris(docs))
	})

	t.Run("skips hidden files", func(t *testing.T) {
		dir := t.TempDir()
		writeFile(t, filepath.Join(dir, ".hidden.xml"), "<h/>")
		writeFile(t, filepath.Join(dir, ".git", "config"), "x")
		writeFile(t, filepath.Join(dir, "visible.xml"), "<v/>")

		docs, err := collect(t, New([]string{dir}, WithRecurse(true)))
		require.NoError(t, err)
		assert.Equal(t, []string{filepath.Join(dir, "visible.xml")}, uris(docs))
	})

	t.Run("accepts individual files in given order", func(t *testing.T) {
		dir := t.TempDir()
		first := filepath.Join(dir, "z.xml")
		second := filepath.Join(dir, "a.xml")
		writeFile(t, first, "<z/>")
		writeFile(t, second, "<a/>")

		docs, err := collect(t, New([]string{first, second}))
		require.NoError(t, err)
		assert.Equal(t, []string{first, second}, uris(docs))
	})

	t.Run("reports missing path", func(t *testing.T) {
		docs, err := collect(t, New([]string{"/non/existent/path"}))
		require.Error(t, err)
		assert.Contains(t, err.Error(), "root path error")
		assert.Empty(t, docs)
	})

	t.Run("reports missing input", func(t *testing.T) {
		_, err := collect(t, New(nil))
		assert.ErrorIs(t, err, domain.ErrInvalidInput)
	})

	t.Run("closed connector", func(t *testing.T) {
		dir := t.TempDir()
		c := New([]string{dir})
		require.NoError(t, c.Close())

		_, err := collect(t, c)
		assert.ErrorIs(t, err, domain.ErrSourceClosed)
	})

	t.Run("stops on cancellation", func(t *testing.T) {
		dir := t.TempDir()
		writeFile(t, filepath.Join(dir, "a.xml"), "<a/>")
		writeFile(t, filepath.Join(dir, "b.xml"), "<b/>")

		ctx, cancel := context.WithCancel(context.Background())
		docs, errs := New([]string{dir}).Documents(ctx)
		<-docs
		cancel()
		for range docs {
		}
		for range errs {
		}
	})
}

func TestConnector_Description(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "a.xml"), "<a/>")
	writeFile(t, filepath.Join(dir, "b.xml"), "<b/>")
	writeFile(t, filepath.Join(dir, "c.xml"), "<c/>")

	t.Run("directory", func(t *testing.T) {
		c := New([]string{dir}, WithRecurse(true))
		c.started = time.Date(2024, 5, 1, 12, 30, 0, 0, time.UTC)

		assert.Equal(t,
			"3 STIX packages from directory '"+dir+"' (recursion: true; processed: '2024-05-01 12:30:00')",
			c.Description())
	})

	t.Run("single file", func(t *testing.T) {
		path := filepath.Join(dir, "a.xml")
		c := New([]string{path})
		c.started = time.Date(2024, 5, 1, 12, 30, 0, 0, time.UTC)

		assert.Equal(t,
			"1 STIX package from file '"+path+"' (processed: '2024-05-01 12:30:00')",
			c.Description())
	})

	t.Run("various files", func(t *testing.T) {
		c := New([]string{filepath.Join(dir, "a.xml"), filepath.Join(dir, "b.xml")})

		desc := c.Description()
		assert.Contains(t, desc, "2 STIX packages from various files")
		assert.Contains(t, desc, "file prefix: '"+filepath.Join(dir, "")+"/")
	})
}

func TestConnector_Validate(t *testing.T) {
	dir := t.TempDir()

	assert.NoError(t, New([]string{dir}).Validate(context.Background()))

	err := New([]string{filepath.Join(dir, "missing")}).Validate(context.Background())
	assert.Contains(t, err.Error(), "root path error")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.Equal(t, context.Canceled, New([]string{dir}).Validate(ctx))
}

func TestConnector_Watch(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "existing.xml"), "<existing/>")

	c := New([]string{dir}, WithWatch(true))
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	defer c.Close()

	docs, errs := c.Documents(ctx)

	select {
	case doc := <-docs:
		assert.Equal(t, filepath.Join(dir, "existing.xml"), doc.URI)
	case <-time.After(2 * time.Second):
		t.Fatal("timeout waiting for existing file")
	}

	created := filepath.Join(dir, "new.xml")
	go func() {
		time.Sleep(50 * time.Millisecond)
		_ = os.WriteFile(created, []byte("<new/>"), 0o644)
	}()

	select {
	case doc := <-docs:
		assert.Equal(t, created, doc.URI)
		assert.Equal(t, "new.xml", doc.Metadata[domain.MetaFilename])
	case <-time.After(2 * time.Second):
		t.Fatal("timeout waiting for watched file")
	}

	cancel()
	for range docs {
	}
	for err := range errs {
		assert.NoError(t, err)
	}
}

func TestHandleFsEvent(t *testing.T) {
	tests := []struct {
		name      string
		file      string
		dir       bool
		op        fsnotify.Op
		expectDoc bool
	}{
		{name: "create file", file: "a.xml", op: fsnotify.Create, expectDoc: true},
		{name: "write file", file: "a.xml", op: fsnotify.Write, expectDoc: true},
		{name: "write and chmod", file: "a.xml", op: fsnotify.Write | fsnotify.Chmod, expectDoc: true},
		{name: "chmod only", file: "a.xml", op: fsnotify.Chmod},
		{name: "remove", file: "gone.xml", op: fsnotify.Remove},
		{name: "rename", file: "gone.xml", op: fsnotify.Rename},
		{name: "hidden file", file: ".hidden.xml", op: fsnotify.Create},
		{name: "directory", file: "subdir", dir: true, op: fsnotify.Create},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dir := t.TempDir()
			path := filepath.Join(dir, tt.file)
			switch {
			case tt.dir:
				require.NoError(t, os.Mkdir(path, 0o755))
			case tt.file != "gone.xml":
				writeFile(t, path, "<x/>")
			}

			doc := New([]string{dir}).handleFsEvent(fsnotify.Event{Name: path, Op: tt.op})
			if tt.expectDoc {
				require.NotNil(t, doc)
				assert.Equal(t, path, doc.URI)
				assert.Equal(t, "<x/>", string(doc.Content))
			} else {
				assert.Nil(t, doc)
			}
		})
	}

	t.Run("unchanged file is emitted once", func(t *testing.T) {
		dir := t.TempDir()
		path := filepath.Join(dir, "a.xml")
		writeFile(t, path, "<x/>")
		c := New([]string{dir})

		require.NotNil(t, c.handleFsEvent(fsnotify.Event{Name: path, Op: fsnotify.Create}))
		assert.Nil(t, c.handleFsEvent(fsnotify.Event{Name: path, Op: fsnotify.Write}))
	})

	t.Run("file outside configured paths", func(t *testing.T) {
		dir := t.TempDir()
		watched := filepath.Join(dir, "wanted.xml")
		other := filepath.Join(dir, "other.xml")
		writeFile(t, watched, "<x/>")
		writeFile(t, other, "<x/>")

		assert.Nil(t, New([]string{watched}).handleFsEvent(fsnotify.Event{Name: other, Op: fsnotify.Create}))
	})

	t.Run("nested file without recursion", func(t *testing.T) {
		dir := t.TempDir()
		nested := filepath.Join(dir, "sub", "a.xml")
		writeFile(t, nested, "<x/>")

		assert.Nil(t, New([]string{dir}).handleFsEvent(fsnotify.Event{Name: nested, Op: fsnotify.Create}))
		assert.NotNil(t, New([]string{dir}, WithRecurse(true)).handleFsEvent(fsnotify.Event{Name: nested, Op: fsnotify.Create}))
	})
}

func TestConnector_Close(t *testing.T) {
	c := New([]string{"/tmp"})
	assert.NoError(t, c.Close())
	assert.NoError(t, c.Close())
	assert.Equal(t, "file", c.Type())
}

func TestIsHidden(t *testing.T) {
	tests := []struct {
		path     string
		expected bool
	}{
		{".hidden", true},
		{"path/to/.hidden", true},
		{"dir/.git/config", true},
		{"file.xml", false},
		{"path/to/file.xml", false},
		{".", false},
		{"..", false},
		{"path/../file", false},
		{"", false},
		{"/", false},
		{"directory.name/file", false},
	}

	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			assert.Equal(t, tt.expected, isHidden(tt.path))
		})
	}
}

func TestDetectMIMEType(t *testing.T) {
	tests := []struct {
		filename string
		expected string
	}{
		{"feed.xml", "application/xml"},
		{"FEED.XML", "application/xml"},
		{"package.stix", "application/xml"},
		{"noext", "application/xml"},
		{"data.json", "application/json"},
		{"file.zzzzunknown", "application/octet-stream"},
	}

	for _, tt := range tests {
		t.Run(tt.filename, func(t *testing.T) {
			assert.Equal(t, tt.expected, detectMIMEType(tt.filename))
		})
	}
}

func TestCommonPrefix(t *testing.T) {
	assert.Equal(t, "", commonPrefix(nil))
	assert.Equal(t, "/feeds/a", commonPrefix([]string{"/feeds/a1.xml", "/feeds/a2.xml"}))
	assert.Equal(t, "/feeds/", commonPrefix([]string{"/feeds/x.xml", "/feeds/y.xml"}))
}
