package sinks

import (
	"bytes"
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/custodia-labs/ctitrans/internal/adapters/driven/sinks/bro"
	"github.com/custodia-labs/ctitrans/internal/adapters/driven/sinks/stats"
	"github.com/custodia-labs/ctitrans/internal/adapters/driven/sinks/text"
	"github.com/custodia-labs/ctitrans/internal/adapters/driven/storage/memory"
	"github.com/custodia-labs/ctitrans/internal/core/domain"
	"github.com/custodia-labs/ctitrans/internal/core/ports/driven"
)

type stubProfiles struct {
	profile domain.Profile
	err     error
}

func (s *stubProfiles) Profile(string) (domain.Profile, error) { return s.profile, s.err }
func (s *stubProfiles) Names() []string                        { return nil }

func TestFactory_SupportedTypes(t *testing.T) {
	f := NewFactory(&bytes.Buffer{})
	assert.Equal(t, []string{
		"bro", "elasticsearch", "inbox", "kafka", "misp", "redis",
		"snort", "sqlite", "stats", "structured", "text",
	}, f.SupportedTypes())

	for _, name := range f.SupportedTypes() {
		_, ok := DefaultProfiles()[name]
		assert.True(t, ok, "missing default profile for %s", name)
	}
}

func TestFactory_Create_Unknown(t *testing.T) {
	f := NewFactory(&bytes.Buffer{})
	_, err := f.Create(context.Background(), domain.OutputConfig{Type: "carrier-pigeon"})
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrUnsupportedType)
}

func TestFactory_Create_StreamSinks(t *testing.T) {
	f := NewFactory(&bytes.Buffer{})
	for _, name := range []string{text.Name, stats.Name, bro.Name, "snort", "structured"} {
		t.Run(name, func(t *testing.T) {
			sink, err := f.Create(context.Background(), domain.OutputConfig{Type: name})
			require.NoError(t, err)
			assert.Equal(t, name, sink.Name())
			require.NoError(t, sink.Close())
		})
	}
}

func TestFactory_Create_InvalidSettings(t *testing.T) {
	f := NewFactory(&bytes.Buffer{})
	tests := []domain.OutputConfig{
		{Type: "misp"},
		{Type: "elasticsearch"},
		{Type: "inbox"},
		{Type: "kafka"},
		{Type: "structured", Settings: map[string]string{"format": "csv"}},
		{Type: "text", Settings: map[string]string{"header": "sometimes"}},
	}
	for _, cfg := range tests {
		t.Run(cfg.Type, func(t *testing.T) {
			_, err := f.Create(context.Background(), cfg)
			assert.ErrorIs(t, err, domain.ErrInvalidInput)
		})
	}
}

func TestFactory_Create_UsesProfileService(t *testing.T) {
	custom := domain.Profile{
		Types: map[string]domain.TypeProfile{
			domain.ObjectDomainName: {Fields: []string{"value"}},
		},
		Conditions: []string{"Equals"},
	}
	f := NewFactory(&bytes.Buffer{}, WithProfiles(&stubProfiles{profile: custom}))

	sink, err := f.Create(context.Background(), domain.OutputConfig{Type: text.Name})
	require.NoError(t, err)
	assert.Equal(t, custom, sink.Profile())
}

func TestFactory_Create_ProfileError(t *testing.T) {
	f := NewFactory(&bytes.Buffer{}, WithProfiles(&stubProfiles{err: domain.ErrInvalidInput}))
	_, err := f.Create(context.Background(), domain.OutputConfig{Type: text.Name})
	assert.ErrorIs(t, err, domain.ErrInvalidInput)
}

func TestFactory_Create_StatsFollowsTerminal(t *testing.T) {
	pass := &domain.PassInfo{Number: 1, Stats: &domain.PassStats{}}
	render := func(t *testing.T, f *Factory, out *bytes.Buffer, settings map[string]string) string {
		t.Helper()
		sink, err := f.Create(context.Background(), domain.OutputConfig{Type: stats.Name, Settings: settings})
		require.NoError(t, err)
		observer, ok := sink.(driven.PassObserver)
		require.True(t, ok)
		require.NoError(t, observer.BeginPass(context.Background(), pass))
		require.NoError(t, sink.Deliver(context.Background(), &domain.Delivery{
			ObjectType: domain.ObjectAddress,
			Groups:     []domain.RecordGroup{{ObjectType: domain.ObjectAddress}},
			Pass:       pass,
		}))
		require.NoError(t, observer.EndPass(context.Background(), pass))
		return out.String()
	}

	t.Run("pipe renders delimited", func(t *testing.T) {
		out := &bytes.Buffer{}
		got := render(t, NewFactory(out), out, nil)
		assert.Contains(t, got, "Address observables\t1")
	})

	t.Run("terminal renders table", func(t *testing.T) {
		out := &bytes.Buffer{}
		got := render(t, NewFactory(out, WithTerminal(true)), out, nil)
		assert.Contains(t, got, "Address observables")
		assert.NotContains(t, got, "\t")
	})

	t.Run("setting wins over terminal", func(t *testing.T) {
		out := &bytes.Buffer{}
		got := render(t, NewFactory(out, WithTerminal(true)), out, map[string]string{stats.SettingPretty: "false"})
		assert.Contains(t, got, "Address observables\t1")
	})
}

func TestFactory_Create_SQLiteUsesRecordStore(t *testing.T) {
	store := memory.NewRecordStore(0)
	f := NewFactory(&bytes.Buffer{}, WithRecordStore(store))

	sink, err := f.Create(context.Background(), domain.OutputConfig{Type: "sqlite"})
	require.NoError(t, err)

	observer, ok := sink.(driven.PassObserver)
	require.True(t, ok)
	require.NoError(t, observer.BeginPass(context.Background(), &domain.PassInfo{Number: 1, Source: "test"}))
	require.NoError(t, sink.Close())

	runs, err := store.ListRuns(context.Background())
	require.NoError(t, err)
	assert.Len(t, runs, 1)
}
