package services

import (
	"slices"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/davecgh/go-spew/spew"

	"github.com/custodia-labs/ctitrans/internal/core/domain"
)

// ExtractorConfig configures a FieldExtractor.
type ExtractorConfig struct {
	// AllowedConditions lists the accepted condition values.
	// Empty accepts every condition. Values without a condition are
	// always accepted.
	AllowedConditions []string
}

// FieldExtractor flattens entity properties into records following
// dotted field paths. It is stateless and safe for concurrent use.
type FieldExtractor struct {
	allowed []string
}

// NewFieldExtractor creates an extractor.
func NewFieldExtractor(cfg ExtractorConfig) *FieldExtractor {
	return &FieldExtractor{allowed: slices.Clone(cfg.AllowedConditions)}
}

// dumper renders non-scalar leaf values.
var dumper = spew.ConfigState{
	Indent:                  " ",
	DisablePointerAddresses: true,
	DisableCapacities:       true,
	SortKeys:                true,
}

// Paths returns the paths to extract for tp: its declared fields followed
// by the fields needed only for constraint checking.
func Paths(tp domain.TypeProfile) []string {
	return tp.Paths()
}

// Extract returns the records of entity for the given field paths.
//
// List-valued properties multiply the records built so far, one branch
// per item, so k independent lists of sizes n1..nk yield n1*...*nk
// records. Absent or empty properties contribute nothing. Records with no
// field are discarded.
func (x *FieldExtractor) Extract(entity domain.Entity, paths []string) []domain.Record {
	if entity == nil || len(paths) == 0 {
		return nil
	}
	records := x.extract(nil, entity, paths, "")
	out := records[:0]
	for _, r := range records {
		if len(r) > 0 {
			out = append(out, r)
		}
	}
	if len(out) == 0 {
		return nil
	}
	return out
}

// extract walks entity for paths, extending the open record set.
func (x *FieldExtractor) extract(open []domain.Record, entity domain.Entity, paths []string, prefix string) []domain.Record {
	for _, segment := range firstSegments(paths) {
		value, ok := entity.Property(segment)
		if !ok || domain.IsZero(value) {
			continue
		}
		field := segment
		if prefix != "" {
			field = prefix + "." + segment
		}
		rest := remainingPaths(paths, segment)

		list, isList := value.(domain.List)
		if !isList {
			open = x.extractValue(open, value, rest, field)
			continue
		}

		base := cloneRecords(open)
		var branches []domain.Record
		for i, item := range list {
			branch := open
			if i > 0 {
				branch = cloneRecords(base)
			}
			branches = append(branches, x.extractValue(branch, item, rest, field)...)
		}
		open = branches
	}
	return open
}

// extractValue handles one property value: recurse into nested entities
// when sub-paths remain, record it as a leaf otherwise.
func (x *FieldExtractor) extractValue(open []domain.Record, value domain.Value, rest []string, field string) []domain.Record {
	if len(rest) > 0 {
		if n, ok := value.(domain.Node); ok && !domain.IsZero(n) {
			return x.extract(open, n.Entity, rest, field)
		}
		return open
	}

	fv, ok := x.leaf(value)
	if !ok {
		return open
	}
	if len(open) == 0 {
		return []domain.Record{{field: fv}}
	}
	for _, r := range open {
		r[field] = fv
	}
	return open
}

// leaf converts a terminal value. ok is false for empty values and for
// conditions outside the allow-list.
func (x *FieldExtractor) leaf(value domain.Value) (domain.FieldValue, bool) {
	fv := domain.FieldValue{Condition: domain.NoCondition}
	switch v := value.(type) {
	case domain.Leaf:
		fv.Value = toString(v.Data)
		if v.Condition != "" {
			fv.Condition = v.Condition
		}
	case domain.Node:
		fv.Value = strings.TrimRight(dumper.Sdump(v.Entity), "\n")
	default:
		fv.Value = strings.TrimRight(dumper.Sdump(v), "\n")
	}
	if fv.Value == "" {
		return fv, false
	}
	if fv.HasCondition() && len(x.allowed) > 0 && !slices.Contains(x.allowed, fv.Condition) {
		return fv, false
	}
	return fv, true
}

// toString encodes scalars directly and dumps anything else.
func toString(data any) string {
	switch d := data.(type) {
	case nil:
		return ""
	case string:
		return d
	case bool:
		return strconv.FormatBool(d)
	case int:
		return strconv.Itoa(d)
	case int64:
		return strconv.FormatInt(d, 10)
	case uint64:
		return strconv.FormatUint(d, 10)
	case float64:
		return strconv.FormatFloat(d, 'f', -1, 64)
	case time.Time:
		if d.IsZero() {
			return ""
		}
		return d.UTC().Format(time.RFC3339)
	}
	return strings.TrimRight(dumper.Sdump(data), "\n")
}

// firstSegments returns the distinct first segments of paths, sorted.
func firstSegments(paths []string) []string {
	seen := make(map[string]bool, len(paths))
	var out []string
	for _, p := range paths {
		first, _, _ := strings.Cut(p, ".")
		if !seen[first] {
			seen[first] = true
			out = append(out, first)
		}
	}
	sort.Strings(out)
	return out
}

// remainingPaths returns the sub-paths of paths below segment.
func remainingPaths(paths []string, segment string) []string {
	prefix := segment + "."
	var out []string
	for _, p := range paths {
		if rest, ok := strings.CutPrefix(p, prefix); ok && rest != "" && !slices.Contains(out, rest) {
			out = append(out, rest)
		}
	}
	return out
}

func cloneRecords(records []domain.Record) []domain.Record {
	if records == nil {
		return nil
	}
	out := make([]domain.Record, len(records))
	for i, r := range records {
		out[i] = r.Clone()
	}
	return out
}
