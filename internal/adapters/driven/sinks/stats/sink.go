// Package stats writes per-pass summary statistics: element counts of
// the ingested packages and observable counts per object type.
package stats

import (
	"context"
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"

	"github.com/custodia-labs/ctitrans/internal/adapters/driven/sinks/delimited"
	"github.com/custodia-labs/ctitrans/internal/core/domain"
	"github.com/custodia-labs/ctitrans/internal/core/ports/driven"
)

// Ensure Sink implements the interfaces.
var (
	_ driven.Sink         = (*Sink)(nil)
	_ driven.PassObserver = (*Sink)(nil)
)

// Name is the sink name.
const Name = "stats"

// line frames the summary header.
const line = "++++++++++++++++++++++++++++++++++++++++"

// Setting keys read from domain.OutputConfig.Settings.
const (
	SettingPretty    = "pretty"
	SettingHeader    = "header"
	SettingSeparator = "separator"
)

// labels names the counted element categories.
var labels = map[domain.Category]string{
	domain.CategoryCampaigns:       "Campaigns",
	domain.CategoryCoursesOfAction: "Courses of action",
	domain.CategoryExploitTargets:  "Exploit targets",
	domain.CategoryIncidents:       "Incidents",
	domain.CategoryIndicators:      "Indicators",
	domain.CategoryKillChains:      "Kill chains",
	domain.CategoryObservables:     "Observables",
	domain.CategoryThreatActors:    "Threat actors",
	domain.CategoryTTPs:            "TTPs",
}

// DefaultProfile counts every object type without extracting fields.
func DefaultProfile() domain.Profile {
	return domain.Profile{}
}

// Config controls the statistics output.
type Config struct {
	// Pretty renders tables instead of delimited lines.
	Pretty bool
	// IncludeHeader writes the summary banner with title and TLP.
	IncludeHeader bool
	// Separator delimits plain output. Defaults to tab.
	Separator rune
}

// DefaultConfig returns the default statistics configuration.
func DefaultConfig() Config {
	return Config{Pretty: true, IncludeHeader: true, Separator: '\t'}
}

// ConfigFromSettings overlays settings on the default configuration.
func ConfigFromSettings(settings map[string]string) (Config, error) {
	cfg := DefaultConfig()
	for key, target := range map[string]*bool{SettingPretty: &cfg.Pretty, SettingHeader: &cfg.IncludeHeader} {
		v := settings[key]
		if v == "" {
			continue
		}
		b, err := strconv.ParseBool(v)
		if err != nil {
			return Config{}, fmt.Errorf("%w: %s %q", domain.ErrInvalidInput, key, v)
		}
		*target = b
	}
	if v := settings[SettingSeparator]; v != "" {
		sep, err := delimited.ParseSeparator(v)
		if err != nil {
			return Config{}, fmt.Errorf("%w: %v", domain.ErrInvalidInput, err)
		}
		cfg.Separator = sep
	}
	return cfg, nil
}

// Sink writes summary statistics at the end of every pass.
type Sink struct {
	w        io.Writer
	cfg      Config
	profile  domain.Profile
	renderer *lipgloss.Renderer
	counts   map[string]int
}

// New creates a statistics sink writing to w. A zero profile counts
// every object type.
func New(w io.Writer, cfg Config, profile domain.Profile) *Sink {
	if cfg.Separator == 0 {
		cfg.Separator = '\t'
	}
	return &Sink{
		w:        w,
		cfg:      cfg,
		profile:  profile,
		renderer: lipgloss.NewRenderer(w),
		counts:   make(map[string]int),
	}
}

// Name returns the sink name.
func (s *Sink) Name() string { return Name }

// Profile returns the extraction profile.
func (s *Sink) Profile() domain.Profile { return s.profile }

// BeginPass resets the observable counts.
func (s *Sink) BeginPass(context.Context, *domain.PassInfo) error {
	s.counts = make(map[string]int)
	return nil
}

// Deliver counts the observables of one object type.
func (s *Sink) Deliver(_ context.Context, d *domain.Delivery) error {
	s.counts[d.ObjectType] += len(d.Groups)
	return nil
}

// EndPass writes the summary of the pass.
func (s *Sink) EndPass(_ context.Context, pass *domain.PassInfo) error {
	var b strings.Builder
	elements := CountElements(pass.Packages)

	if s.cfg.IncludeHeader {
		b.WriteString(line + "\n")
		b.WriteString("Summary statistics:")
		if len(pass.Packages) > 0 {
			pkg := pass.Packages[0]
			if title := pkg.Title(""); title != "" {
				b.WriteString(" " + title)
			}
			if tlp := pkg.TLP(""); tlp != "" {
				b.WriteString(" (" + tlp + ")")
			}
		}
		b.WriteString("\n" + line + "\n\n")
	}

	var elementRows [][]string
	for _, c := range domain.Categories {
		if n := elements[c]; n > 0 {
			elementRows = append(elementRows, []string{labels[c], strconv.Itoa(n)})
		}
	}

	types := make([]string, 0, len(s.counts))
	for t := range s.counts {
		types = append(types, t)
	}
	sort.Strings(types)
	observableRows := make([][]string, 0, len(types))
	for _, t := range types {
		observableRows = append(observableRows, []string{t + " observables", strconv.Itoa(s.counts[t])})
	}

	if s.cfg.Pretty {
		if len(elementRows) > 0 {
			b.WriteString(s.table("Element", elementRows) + "\n")
		}
		if len(observableRows) > 0 {
			b.WriteString(s.table("Object type", observableRows) + "\n")
		}
	} else {
		for _, row := range append(elementRows, observableRows...) {
			b.WriteString(delimited.Join(s.cfg.Separator, row) + "\n")
		}
	}

	_, err := io.WriteString(s.w, b.String())
	return err
}

func (s *Sink) table(title string, rows [][]string) string {
	headerStyle := s.renderer.NewStyle().Bold(true).Padding(0, 1)
	cellStyle := s.renderer.NewStyle().Padding(0, 1)
	countStyle := cellStyle.Align(lipgloss.Right)

	return table.New().
		Border(lipgloss.NormalBorder()).
		BorderStyle(s.renderer.NewStyle().Foreground(lipgloss.Color("#45475A"))).
		Headers(title, "Count").
		Rows(rows...).
		StyleFunc(func(row, col int) lipgloss.Style {
			switch {
			case row == table.HeaderRow:
				return headerStyle
			case col == 1:
				return countStyle
			default:
				return cellStyle
			}
		}).
		String()
}

// Close does nothing; the writer is owned by the caller.
func (s *Sink) Close() error { return nil }

// CountElements counts the identified elements of packages per category.
// Composite indicators and observable compositions are not counted
// themselves; their identified members are.
func CountElements(packages []*domain.Package) map[domain.Category]int {
	seen := make(map[domain.Category]map[string]bool)
	add := func(c domain.Category, id string) {
		if id == "" {
			return
		}
		if seen[c] == nil {
			seen[c] = make(map[string]bool)
		}
		seen[c][id] = true
	}

	var observable func(o *domain.Observable)
	observable = func(o *domain.Observable) {
		if o == nil {
			return
		}
		if o.Composition != nil {
			for _, member := range o.Composition.Observables {
				observable(member)
			}
			return
		}
		add(domain.CategoryObservables, o.ID)
	}

	var indicator func(i *domain.Indicator)
	indicator = func(i *domain.Indicator) {
		if i == nil {
			return
		}
		if i.Composite != nil {
			for _, member := range i.Composite.Indicators {
				indicator(member)
			}
			return
		}
		add(domain.CategoryIndicators, i.ID)
		for _, o := range i.Observables {
			observable(o)
		}
	}

	for _, pkg := range packages {
		for _, c := range domain.Categories {
			for _, el := range pkg.Elements(c) {
				switch e := el.(type) {
				case *domain.Indicator:
					indicator(e)
				case *domain.Observable:
					observable(e)
				default:
					add(c, el.ElementID())
				}
			}
		}
	}

	counts := make(map[domain.Category]int, len(seen))
	for c, ids := range seen {
		counts[c] = len(ids)
	}
	return counts
}
