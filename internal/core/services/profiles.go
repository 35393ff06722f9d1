package services

import (
	"fmt"
	"sort"
	"strings"

	"github.com/custodia-labs/ctitrans/internal/core/domain"
	"github.com/custodia-labs/ctitrans/internal/core/ports/driven"
	"github.com/custodia-labs/ctitrans/internal/core/ports/driving"
)

// Ensure ProfileService implements the interface.
var _ driving.ProfileService = (*ProfileService)(nil)

// ProfileService resolves sink profiles. Built-in defaults are
// overridden by configuration keys of the form:
//
//	profiles.<sink>.conditions = [...]
//	profiles.<sink>.<ObjectType>.fields = [...]
//	profiles.<sink>.<ObjectType>.constraints.<field> = [...]
type ProfileService struct {
	defaults map[string]domain.Profile
	config   driven.ConfigStore
}

// NewProfileService creates a profile service. config may be nil.
func NewProfileService(defaults map[string]domain.Profile, config driven.ConfigStore) *ProfileService {
	return &ProfileService{defaults: defaults, config: config}
}

// Profile returns the effective profile of sink.
func (s *ProfileService) Profile(sink string) (domain.Profile, error) {
	base, ok := s.defaults[sink]
	if !ok {
		return domain.Profile{}, fmt.Errorf("%w: profile %q", domain.ErrNotFound, sink)
	}
	profile := base.Clone()
	if s.config == nil {
		return profile, nil
	}

	prefix := "profiles." + sink + "."
	for _, key := range s.config.Keys(prefix) {
		rest := strings.TrimPrefix(key, prefix)
		if rest == "conditions" {
			profile.Conditions = s.config.GetStringSlice(key)
			continue
		}

		objectType, setting, ok := strings.Cut(rest, ".")
		if !ok {
			return domain.Profile{}, fmt.Errorf("%w: config key %q", domain.ErrInvalidInput, key)
		}
		if profile.Types == nil {
			profile.Types = make(map[string]domain.TypeProfile)
		}
		tp := profile.Types[objectType]
		switch {
		case setting == "fields":
			tp.Fields = s.config.GetStringSlice(key)
		case strings.HasPrefix(setting, "constraints."):
			field := strings.TrimPrefix(setting, "constraints.")
			if tp.Constraints == nil {
				tp.Constraints = make(map[string][]string)
			}
			tp.Constraints[field] = s.config.GetStringSlice(key)
		default:
			return domain.Profile{}, fmt.Errorf("%w: config key %q", domain.ErrInvalidInput, key)
		}
		profile.Types[objectType] = tp
	}
	return profile, nil
}

// Names returns every sink with a built-in profile, sorted.
func (s *ProfileService) Names() []string {
	names := make([]string, 0, len(s.defaults))
	for name := range s.defaults {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
