package cli

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/custodia-labs/ctitrans/internal/core/domain"
	"github.com/custodia-labs/ctitrans/internal/core/ports/driving"
)

const stixPackage = `<?xml version="1.0" encoding="UTF-8"?>
<stix:STIX_Package
    xmlns:stix="http://stix.mitre.org/stix-1"
    xmlns:indicator="http://stix.mitre.org/Indicator-2"
    xmlns:cybox="http://cybox.mitre.org/cybox-2"
    xmlns:AddressObj="http://cybox.mitre.org/objects#AddressObject-2"
    xmlns:xsi="http://www.w3.org/2001/XMLSchema-instance"
    id="example:Package-1" version="1.2">
  <stix:Indicators>
    <stix:Indicator id="example:Indicator-1" xsi:type="indicator:IndicatorType">
      <indicator:Observable id="example:Observable-1">
        <cybox:Object>
          <cybox:Properties xsi:type="AddressObj:AddressObjectType" category="ipv4-addr">
            <AddressObj:Address_Value condition="Equals">10.0.0.1</AddressObj:Address_Value>
          </cybox:Properties>
        </cybox:Object>
      </indicator:Observable>
    </stix:Indicator>
  </stix:Indicators>
</stix:STIX_Package>`

// mockTransform records the request it was given.
type mockTransform struct {
	req    domain.TransformRequest
	called bool
	err    error
}

func (m *mockTransform) Transform(_ context.Context, req domain.TransformRequest) (*domain.RunReport, error) {
	m.req = req
	m.called = true
	if m.err != nil {
		return nil, m.err
	}
	return &domain.RunReport{RunID: "run-1", Passes: 1, Records: map[string]int{"text": 2}}, nil
}

func (m *mockTransform) Status() driving.TransformStatus { return driving.TransformStatus{} }

// resetFlags restores every flag of cmd and its children to its default.
func resetFlags(cmd *cobra.Command) {
	reset := func(f *pflag.Flag) {
		if s, ok := f.Value.(pflag.SliceValue); ok {
			_ = s.Replace(nil)
		} else {
			_ = f.Value.Set(f.DefValue)
		}
		f.Changed = false
	}
	cmd.Flags().VisitAll(reset)
	cmd.PersistentFlags().VisitAll(reset)
	for _, c := range cmd.Commands() {
		resetFlags(c)
	}
}

// execute runs the root command with a mocked transform service and an
// empty configuration file.
func execute(t *testing.T, args ...string) (*mockTransform, *appOptions, string, error) {
	t.Helper()

	mock := &mockTransform{}
	var got appOptions
	orig := newApp
	newApp = func(opts appOptions) (*app, error) {
		got = opts
		return &app{transform: mock}, nil
	}
	t.Cleanup(func() { newApp = orig })

	if !containsConfigFlag(args) {
		args = append([]string{"--config", filepath.Join(t.TempDir(), "config.toml")}, args...)
	}
	out, err := run(t, args...)
	return mock, &got, out, err
}

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	resetFlags(rootCmd)
	t.Cleanup(func() { resetFlags(rootCmd) })

	buf := new(bytes.Buffer)
	rootCmd.SetOut(buf)
	rootCmd.SetErr(new(bytes.Buffer))
	rootCmd.SetIn(new(bytes.Buffer))
	rootCmd.SetArgs(args)
	defer rootCmd.SetArgs(nil)

	err := rootCmd.ExecuteContext(context.Background())
	return buf.String(), err
}

func containsConfigFlag(args []string) bool {
	for _, a := range args {
		if a == "--config" || a == "-c" || a == "--no-config" {
			return true
		}
	}
	return false
}

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.toml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestRoot_RequiresInputAndOutput(t *testing.T) {
	tests := []struct {
		name string
		args []string
	}{
		{name: "no input", args: []string{"--text"}},
		{name: "no output", args: []string{"--file", "a.xml"}},
		{name: "watch with taxii", args: []string{"--taxii", "--poll-url", "http://x/poll", "--watch", "--text"}},
		{name: "taxii setting without taxii", args: []string{"--file", "a.xml", "--collection", "c", "--text"}},
		{name: "bad scope", args: []string{"--file", "a.xml", "--text", "--scope", "everything"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mock, _, _, err := execute(t, tt.args...)
			require.Error(t, err)
			assert.ErrorIs(t, err, domain.ErrInvalidInput)
			assert.False(t, mock.called)
		})
	}
}

func TestRoot_FileToTextAndBro(t *testing.T) {
	mock, opts, _, err := execute(t,
		"--file", "a.xml", "--file", "feeds", "-r",
		"--text", "-f", "|", "--no-header",
		"--bro", "--source", "feed", "--bro-no-notice",
		"--aggregate", "--scope", "observables",
	)
	require.NoError(t, err)
	require.True(t, mock.called)

	req := mock.req
	assert.Equal(t, "file", req.Source.Type)
	assert.Equal(t, []string{"a.xml", "feeds"}, req.Source.Paths)
	assert.True(t, req.Source.Recurse)
	assert.True(t, req.Options.Aggregate)
	assert.Equal(t, domain.ScopeObservables, req.Options.Scope)

	require.Len(t, req.Outputs, 2)
	assert.Equal(t, "text", req.Outputs[0].Type)
	assert.Equal(t, map[string]string{"separator": "|", "header": "false"}, req.Outputs[0].Settings)
	assert.Equal(t, "bro", req.Outputs[1].Type)
	assert.Equal(t, map[string]string{"header": "false", "source": "feed", "no_notice": "true"}, req.Outputs[1].Settings)

	assert.Equal(t, domain.ConflictReject, opts.policy)
}

func TestRoot_ValueOutputs(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "records.db")
	mock, _, _, err := execute(t, "--file", "a.xml", "--sqlite", dbPath, "--records", "yaml")
	require.NoError(t, err)

	require.Len(t, mock.req.Outputs, 2)
	byType := map[string]map[string]string{}
	for _, o := range mock.req.Outputs {
		byType[o.Type] = o.Settings
	}
	assert.Equal(t, dbPath, byType["sqlite"]["path"])
	assert.Equal(t, "yaml", byType["structured"]["format"])
}

func TestRoot_ConfigDefaults(t *testing.T) {
	path := writeConfig(t, `
[transform]
aggregate = true
scope = "observables"

[index]
conflict = "keep-first"

[text]
separator = ";"

[kafka]
brokers = ["k1:9092", "k2:9092"]
topic = "intel"
`)

	mock, opts, _, err := execute(t, "--config", path, "--file", "a.xml", "--text", "--kafka", "--kafka-topic", "override")
	require.NoError(t, err)

	assert.True(t, mock.req.Options.Aggregate)
	assert.Equal(t, domain.ScopeObservables, mock.req.Options.Scope)
	assert.Equal(t, domain.ConflictKeepFirst, opts.policy)

	require.Len(t, mock.req.Outputs, 2)
	assert.Equal(t, ";", mock.req.Outputs[0].Settings["separator"])
	assert.Equal(t, "k1:9092,k2:9092", mock.req.Outputs[1].Settings["brokers"])
	assert.Equal(t, "override", mock.req.Outputs[1].Settings["topic"])
}

func TestRoot_FlagOverridesConflictConfig(t *testing.T) {
	path := writeConfig(t, "[index]\nconflict = \"keep-first\"\n")
	_, opts, _, err := execute(t, "--config", path, "--file", "a.xml", "--text", "--conflict", "overwrite")
	require.NoError(t, err)
	assert.Equal(t, domain.ConflictOverwrite, opts.policy)

	_, _, _, err = execute(t, "--file", "a.xml", "--text", "--conflict", "merge")
	assert.ErrorIs(t, err, domain.ErrInvalidInput)
}

func TestRoot_NoConfig(t *testing.T) {
	mock, opts, _, err := execute(t, "--no-config", "--file", "a.xml", "--text")
	require.NoError(t, err)
	assert.True(t, mock.called)
	assert.Equal(t, ":memory:", opts.config.Path())
	assert.Empty(t, mock.req.Outputs[0].Settings)

	_, _, _, err = execute(t, "--no-config", "--config", "x.toml", "--file", "a.xml", "--text")
	assert.Error(t, err)
}

func TestRoot_TAXIISettings(t *testing.T) {
	path := writeConfig(t, `
[taxii]
poll_url = "https://feed.example.com/poll"
collection = "default"
`)
	mock, _, _, err := execute(t, "--config", path, "--taxii", "--collection", "other", "--token", "secret", "--stats")
	require.NoError(t, err)

	src := mock.req.Source
	assert.Equal(t, "taxii", src.Type)
	assert.Equal(t, "https://feed.example.com/poll", src.Settings["poll_url"])
	assert.Equal(t, "other", src.Settings["collection"])
	assert.Equal(t, "secret", src.Settings["token"])
}

func TestRoot_TAXIIPasswordPrompt(t *testing.T) {
	mock := &mockTransform{}
	orig := newApp
	newApp = func(appOptions) (*app, error) { return &app{transform: mock}, nil }
	defer func() { newApp = orig }()

	resetFlags(rootCmd)
	defer resetFlags(rootCmd)
	rootCmd.SetOut(new(bytes.Buffer))
	rootCmd.SetErr(new(bytes.Buffer))
	rootCmd.SetIn(bytes.NewBufferString("hunter2\nignored"))
	defer rootCmd.SetIn(nil)
	rootCmd.SetArgs([]string{
		"--config", filepath.Join(t.TempDir(), "config.toml"),
		"--taxii", "--poll-url", "https://feed.example.com/poll", "--collection", "c",
		"--username", "analyst", "--text",
	})
	defer rootCmd.SetArgs(nil)

	require.NoError(t, rootCmd.ExecuteContext(context.Background()))
	assert.Equal(t, "analyst", mock.req.Source.Settings["username"])
	assert.Equal(t, "hunter2", mock.req.Source.Settings["password"])
}

func TestRoot_InvalidTAXIISettings(t *testing.T) {
	mock, _, _, err := execute(t, "--taxii", "--poll-url", "https://x/poll", "--collection", "c",
		"--begin-timestamp", "yesterday", "--text")
	assert.ErrorIs(t, err, domain.ErrInvalidInput)
	assert.False(t, mock.called)
}

func TestRoot_MutuallyExclusiveFlags(t *testing.T) {
	_, _, _, err := execute(t, "--file", "a.xml", "--taxii", "--text")
	assert.Error(t, err)

	_, _, _, err = execute(t, "--file", "a.xml", "--text", "--header", "--no-header")
	assert.Error(t, err)
}

func TestRoot_EndToEndText(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "package.xml"), []byte(stixPackage), 0o600))

	out, err := run(t,
		"--config", filepath.Join(t.TempDir(), "config.toml"),
		"--file", dir, "--text", "--no-header", "-q",
	)
	require.NoError(t, err)
	assert.Contains(t, out, "10.0.0.1")
}

func TestRoot_MetricsTextfile(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "package.xml"), []byte(stixPackage), 0o600))
	metricsPath := filepath.Join(t.TempDir(), "ctitrans.prom")

	_, err := run(t,
		"--config", filepath.Join(t.TempDir(), "config.toml"),
		"--file", dir, "--stats", "-q", "--metrics-textfile", metricsPath,
	)
	require.NoError(t, err)

	data, err := os.ReadFile(metricsPath)
	require.NoError(t, err)
	assert.Contains(t, string(data), "ctitrans_documents_total")
}

func TestConfigString(t *testing.T) {
	assert.Equal(t, "a", configString("a"))
	assert.Equal(t, "3", configString(int64(3)))
	assert.Equal(t, "true", configString(true))
	assert.Equal(t, "a,b", configString([]any{"a", "b"}))
	assert.Equal(t, "a,b", configString([]string{"a", "b"}))
}

func TestReadLine(t *testing.T) {
	line, err := readLine(bytes.NewBufferString("secret\r\nrest"))
	require.NoError(t, err)
	assert.Equal(t, "secret", line)

	line, err = readLine(bytes.NewBufferString("no newline"))
	require.NoError(t, err)
	assert.Equal(t, "no newline", line)
}
