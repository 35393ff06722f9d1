package text

import (
	"bytes"
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/custodia-labs/ctitrans/internal/core/domain"
)

func addressDelivery() *domain.Delivery {
	return &domain.Delivery{
		ObjectType: domain.ObjectAddress,
		Groups: []domain.RecordGroup{
			{
				ObjectType: domain.ObjectAddress,
				Observable: &domain.Observable{ID: "example:Observable-1"},
				Records: []domain.Record{
					{
						"category":      {Value: "ipv4-addr", Condition: domain.NoCondition},
						"address_value": {Value: "10.0.0.1", Condition: "Equals"},
					},
				},
			},
			{
				ObjectType: domain.ObjectAddress,
				Observable: &domain.Observable{ID: "example:Observable-2"},
				Records: []domain.Record{
					{"address_value": {Value: "10.0.0.2|3", Condition: domain.NoCondition}},
				},
			},
		},
	}
}

func TestConfigFromSettings(t *testing.T) {
	cfg, err := ConfigFromSettings(nil)
	require.NoError(t, err)
	assert.Equal(t, DefaultConfig(), cfg)

	cfg, err = ConfigFromSettings(map[string]string{
		SettingSeparator:    ",",
		SettingHeader:       "false",
		SettingHeaderPrefix: "//",
	})
	require.NoError(t, err)
	assert.Equal(t, Config{Separator: ',', IncludeHeader: false, HeaderPrefix: "//"}, cfg)

	_, err = ConfigFromSettings(map[string]string{SettingSeparator: "::"})
	assert.ErrorIs(t, err, domain.ErrInvalidInput)

	_, err = ConfigFromSettings(map[string]string{SettingHeader: "maybe"})
	assert.ErrorIs(t, err, domain.ErrInvalidInput)
}

func TestSink_Output(t *testing.T) {
	var buf bytes.Buffer
	s := New(&buf, DefaultConfig(), domain.Profile{})
	ctx := context.Background()

	assert.Equal(t, "text", s.Name())
	assert.Equal(t, DefaultProfile(), s.Profile())

	pass := &domain.PassInfo{Number: 1, Source: "1 STIX package from file 'a.xml' (processed: 'now')"}
	require.NoError(t, s.BeginPass(ctx, pass))
	require.NoError(t, s.Deliver(ctx, addressDelivery()))
	require.NoError(t, s.EndPass(ctx, pass))
	require.NoError(t, s.Close())

	assert.Equal(t,
		"# 1 STIX package from file 'a.xml' (processed: 'now')\n"+
			"# id|category|address_value\n"+
			"example:Observable-1|ipv4-addr|10.0.0.1\n"+
			"example:Observable-2|None|\"10.0.0.2|3\"\n",
		buf.String())
}

func TestSink_NoHeader(t *testing.T) {
	var buf bytes.Buffer
	cfg := DefaultConfig()
	cfg.IncludeHeader = false
	cfg.Separator = ','
	s := New(&buf, cfg, domain.Profile{})
	ctx := context.Background()

	require.NoError(t, s.BeginPass(ctx, &domain.PassInfo{Source: "ignored"}))
	require.NoError(t, s.Deliver(ctx, addressDelivery()))

	assert.Equal(t,
		"example:Observable-1,ipv4-addr,10.0.0.1\n"+
			"example:Observable-2,None,10.0.0.2|3\n",
		buf.String())
}

func TestSink_CustomProfile(t *testing.T) {
	var buf bytes.Buffer
	profile := domain.Profile{Types: map[string]domain.TypeProfile{
		domain.ObjectAddress: {Fields: []string{"address_value"}},
	}}
	s := New(&buf, Config{IncludeHeader: false}, profile)

	require.NoError(t, s.Deliver(context.Background(), addressDelivery()))
	require.NoError(t, s.Deliver(context.Background(), &domain.Delivery{ObjectType: domain.ObjectFile}))

	assert.Equal(t, "example:Observable-1|10.0.0.1\nexample:Observable-2|\"10.0.0.2|3\"\n", buf.String())
}

type failingWriter struct{}

func (failingWriter) Write([]byte) (int, error) { return 0, errors.New("disk full") }

func TestSink_WriteError(t *testing.T) {
	s := New(failingWriter{}, DefaultConfig(), domain.Profile{})
	err := s.Deliver(context.Background(), addressDelivery())
	assert.EqualError(t, err, "disk full")
}
