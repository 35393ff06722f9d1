package snort

import (
	"bytes"
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/custodia-labs/ctitrans/internal/core/domain"
	"github.com/custodia-labs/ctitrans/internal/core/services"
)

func addresses(id string, values ...string) *domain.Delivery {
	group := domain.RecordGroup{ObjectType: domain.ObjectAddress, Observable: &domain.Observable{ID: id}}
	for _, v := range values {
		group.Records = append(group.Records, domain.Record{"address_value": {Value: v, Condition: "Equals"}})
	}
	return &domain.Delivery{ObjectType: domain.ObjectAddress, Groups: []domain.RecordGroup{group}}
}

func TestConfigFromSettings(t *testing.T) {
	cfg, err := ConfigFromSettings(nil)
	require.NoError(t, err)
	assert.Equal(t, Config{InitialSID: 5500000, Revision: 1, Action: "alert"}, cfg)

	cfg, err = ConfigFromSettings(map[string]string{SettingInitialSID: "100", SettingRevision: "3", SettingAction: "DROP"})
	require.NoError(t, err)
	assert.Equal(t, Config{InitialSID: 100, Revision: 3, Action: "drop"}, cfg)

	for _, settings := range []map[string]string{
		{SettingInitialSID: "abc"},
		{SettingInitialSID: "0"},
		{SettingRevision: "-1"},
		{SettingAction: "block"},
	} {
		_, err := ConfigFromSettings(settings)
		assert.ErrorIs(t, err, domain.ErrInvalidInput, "%v", settings)
	}
}

func TestSink_Rules(t *testing.T) {
	var buf bytes.Buffer
	s := New(&buf, DefaultConfig(), domain.Profile{})
	ctx := context.Background()

	assert.Equal(t, Name, s.Name())
	require.NoError(t, s.Deliver(ctx, addresses("example:Observable-1", "10.0.0.1", " ")))
	require.NoError(t, s.Deliver(ctx, addresses("example:Observable-2", "10.0.0.2")))
	require.NoError(t, s.Deliver(ctx, &domain.Delivery{ObjectType: domain.ObjectDomainName}))
	require.NoError(t, s.Close())

	assert.Equal(t,
		`alert ip $HOME_NET any -> 10.0.0.1 any (flow:established,to_server; msg:"ctitrans connection to potentially malicious server 10.0.0.1 (ID example:Observable-1)"; sid:5500000; rev:1; classtype:bad-unknown;)`+"\n"+
			`alert ip $HOME_NET any -> 10.0.0.2 any (flow:established,to_server; msg:"ctitrans connection to potentially malicious server 10.0.0.2 (ID example:Observable-2)"; sid:5500001; rev:1; classtype:bad-unknown;)`+"\n",
		buf.String())
}

// filtered runs entity through the default profile the way a pass does.
func filtered(t *testing.T, entity domain.ObjectProperties) []domain.Record {
	t.Helper()
	profile := DefaultProfile()
	tp, ok := profile.Type(entity.ObjectType())
	require.True(t, ok)
	x := services.NewFieldExtractor(services.ExtractorConfig{AllowedConditions: profile.Conditions})
	return services.NewConstraintFilter().Filter(x.Extract(entity, services.Paths(tp)), tp)
}

func TestDefaultProfile_AddressCategory(t *testing.T) {
	tests := []struct {
		name    string
		address *domain.Address
		want    int
	}{
		{
			name:    "ipv4",
			address: &domain.Address{Category: domain.AddressIPv4, AddressValue: domain.Attr{Value: "10.0.0.1", Condition: "Equals"}},
			want:    1,
		},
		{
			name:    "ipv6",
			address: &domain.Address{Category: domain.AddressIPv6, AddressValue: domain.Attr{Value: "2001:db8::1", Condition: "Equals"}},
		},
		{
			name:    "no category",
			address: &domain.Address{AddressValue: domain.Attr{Value: "2001:db8::1", Condition: "Equals"}},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			records := filtered(t, tt.address)
			assert.Len(t, records, tt.want)

			var buf bytes.Buffer
			s := New(&buf, DefaultConfig(), DefaultProfile())
			require.NoError(t, s.Deliver(context.Background(), &domain.Delivery{
				ObjectType: domain.ObjectAddress,
				Groups: []domain.RecordGroup{{
					ObjectType: domain.ObjectAddress,
					Observable: &domain.Observable{ID: "example:Observable-1"},
					Records:    records,
				}},
			}))
			if tt.want == 0 {
				assert.Empty(t, buf.String())
			} else {
				assert.Contains(t, buf.String(), "-> 10.0.0.1 any")
			}
		})
	}
}
