package domain

import "time"

// Category groups the elements of a package.
type Category string

// Element categories. KillChains are nested under TTPs in a package but
// indexed at top level.
const (
	CategoryIndicators      Category = "indicators"
	CategoryObservables     Category = "observables"
	CategoryTTPs            Category = "ttps"
	CategoryCampaigns       Category = "campaigns"
	CategoryCoursesOfAction Category = "courses_of_action"
	CategoryExploitTargets  Category = "exploit_targets"
	CategoryThreatActors    Category = "threat_actors"
	CategoryIncidents       Category = "incidents"
	CategoryKillChains      Category = "kill_chains"
)

// Categories lists every category in index order.
var Categories = []Category{
	CategoryCampaigns,
	CategoryCoursesOfAction,
	CategoryExploitTargets,
	CategoryIncidents,
	CategoryIndicators,
	CategoryKillChains,
	CategoryObservables,
	CategoryThreatActors,
	CategoryTTPs,
}

// Element is a node of a package.
type Element interface {
	// Category returns the element's category.
	Category() Category

	// ElementID returns the identifier, or "" for anonymous elements.
	ElementID() string

	// IDRef returns the referenced identifier when the element is only a
	// reference to an element defined elsewhere, or "".
	IDRef() string
}

// Composite is an element that may group other elements
// (an observable composition or a composite indicator expression).
type Composite interface {
	Element
	IsComposite() bool
	Members() []Element
}

// Related is an element wrapping another one an extra nesting level
// down (e.g., an indicated TTP wraps a TTP).
type Related interface {
	Element
	Item() Element
}

// IsReference reports whether e only points at another element.
func IsReference(e Element) bool {
	return e != nil && e.IDRef() != ""
}

// Header carries descriptive package information.
type Header struct {
	Title       string
	Description string
	// TLP is the traffic light protocol colour of the package marking.
	TLP string
}

// Package is a parsed threat-intelligence document.
type Package struct {
	ID     string
	Header *Header

	Indicators      []*Indicator
	Observables     []*Observable
	TTPs            []*TTP
	KillChains      []*KillChain
	Campaigns       []*Campaign
	CoursesOfAction []*CourseOfAction
	ExploitTargets  []*ExploitTarget
	ThreatActors    []*ThreatActor
	Incidents       []*Incident

	// SourceMetadata describes where the package came from.
	SourceMetadata map[string]string

	// Raw is the payload the package was parsed from.
	Raw []byte
}

// Title returns the header title or def.
func (p *Package) Title(def string) string {
	if p.Header != nil && p.Header.Title != "" {
		return p.Header.Title
	}
	return def
}

// Description returns the header description or def.
func (p *Package) Description(def string) string {
	if p.Header != nil && p.Header.Description != "" {
		return p.Header.Description
	}
	return def
}

// TLP returns the TLP marking colour or def.
func (p *Package) TLP(def string) string {
	if p.Header != nil && p.Header.TLP != "" {
		return p.Header.TLP
	}
	return def
}

// Elements returns the package's elements of category c, in document order.
func (p *Package) Elements(c Category) []Element {
	switch c {
	case CategoryIndicators:
		return toElements(p.Indicators)
	case CategoryObservables:
		return toElements(p.Observables)
	case CategoryTTPs:
		return toElements(p.TTPs)
	case CategoryKillChains:
		return toElements(p.KillChains)
	case CategoryCampaigns:
		return toElements(p.Campaigns)
	case CategoryCoursesOfAction:
		return toElements(p.CoursesOfAction)
	case CategoryExploitTargets:
		return toElements(p.ExploitTargets)
	case CategoryThreatActors:
		return toElements(p.ThreatActors)
	case CategoryIncidents:
		return toElements(p.Incidents)
	}
	return nil
}

func toElements[E Element](items []E) []Element {
	if len(items) == 0 {
		return nil
	}
	out := make([]Element, len(items))
	for i, item := range items {
		out[i] = item
	}
	return out
}

// ==================== Indicator ====================

// Indicator is a detection pattern built from observables.
type Indicator struct {
	ID          string
	Ref         string
	Title       string
	Description string
	Timestamp   time.Time
	Types       []string
	Confidence  string

	Observables       []*Observable
	Composite         *CompositeIndicatorExpression
	IndicatedTTPs     []*RelatedTTP
	SuggestedCOAs     []*CourseOfAction
	RelatedIndicators []*Indicator
}

// CompositeIndicatorExpression groups indicators with a boolean operator.
type CompositeIndicatorExpression struct {
	Operator   string
	Indicators []*Indicator
}

func (i *Indicator) Category() Category { return CategoryIndicators }
func (i *Indicator) ElementID() string  { return i.ID }
func (i *Indicator) IDRef() string      { return i.Ref }

// IsComposite reports whether the indicator is a composite expression.
func (i *Indicator) IsComposite() bool { return i.Composite != nil }

// Members returns the indicators of a composite expression.
func (i *Indicator) Members() []Element {
	if i.Composite == nil {
		return nil
	}
	return toElements(i.Composite.Indicators)
}

// Relation returns the elements held by a named indicator relation.
// ok is false for unknown relation names.
func (i *Indicator) Relation(name string) ([]Element, bool) {
	switch name {
	case RelationObservables:
		return toElements(i.Observables), true
	case RelationIndicatedTTPs:
		return toElements(i.IndicatedTTPs), true
	case RelationSuggestedCOAs:
		return toElements(i.SuggestedCOAs), true
	case RelationRelatedIndicators:
		return toElements(i.RelatedIndicators), true
	}
	return nil, false
}

// Indicator relation names.
const (
	RelationIndicatedTTPs     = "indicated_ttps"
	RelationSuggestedCOAs     = "suggested_coas"
	RelationRelatedIndicators = "related_indicators"
	RelationObservables       = "observables"
)

// ==================== Observable ====================

// Observable is a piece of evidence: a CybOX object or a composition of
// other observables.
type Observable struct {
	ID          string
	Ref         string
	Title       string
	Description string

	Object      *Object
	Composition *ObservableComposition
}

// Object holds the typed properties of an observable.
type Object struct {
	ID         string
	Properties ObjectProperties
}

// ObservableComposition groups observables with a boolean operator.
type ObservableComposition struct {
	Operator    string
	Observables []*Observable
}

func (o *Observable) Category() Category { return CategoryObservables }
func (o *Observable) ElementID() string  { return o.ID }
func (o *Observable) IDRef() string      { return o.Ref }

// IsComposite reports whether the observable is a composition.
func (o *Observable) IsComposite() bool { return o.Composition != nil }

// Members returns the observables of a composition.
func (o *Observable) Members() []Element {
	if o.Composition == nil {
		return nil
	}
	return toElements(o.Composition.Observables)
}

// Properties returns the object's properties, or nil.
func (o *Observable) Properties() ObjectProperties {
	if o.Object == nil {
		return nil
	}
	return o.Object.Properties
}

// ObjectType returns the object type of the observable's properties,
// or "" when the observable has none.
func (o *Observable) ObjectType() string {
	props := o.Properties()
	if props == nil {
		return ""
	}
	return props.ObjectType()
}

// ==================== Other elements ====================

// TTP describes a tactic, technique or procedure.
type TTP struct {
	ID          string
	Ref         string
	Title       string
	Description string
	// KillChainPhases are "kill-chain-id:phase-id" pairs.
	KillChainPhases []string
}

func (t *TTP) Category() Category { return CategoryTTPs }
func (t *TTP) ElementID() string  { return t.ID }
func (t *TTP) IDRef() string      { return t.Ref }

// RelatedTTP wraps an indicated TTP.
type RelatedTTP struct {
	Confidence string
	TTP        *TTP
}

func (r *RelatedTTP) Category() Category { return CategoryTTPs }
func (r *RelatedTTP) ElementID() string  { return "" }
func (r *RelatedTTP) IDRef() string      { return "" }

// Item returns the wrapped TTP.
func (r *RelatedTTP) Item() Element {
	if r.TTP == nil {
		return nil
	}
	return r.TTP
}

// KillChain is a kill chain definition.
type KillChain struct {
	ID     string
	Name   string
	Phases []KillChainPhase
}

// KillChainPhase is one ordered phase of a kill chain.
type KillChainPhase struct {
	ID      string
	Name    string
	Ordinal int
}

func (k *KillChain) Category() Category { return CategoryKillChains }
func (k *KillChain) ElementID() string  { return k.ID }
func (k *KillChain) IDRef() string      { return "" }

// Campaign is a set of related incidents or activity.
type Campaign struct {
	ID, Ref, Title, Description string
}

func (c *Campaign) Category() Category { return CategoryCampaigns }
func (c *Campaign) ElementID() string  { return c.ID }
func (c *Campaign) IDRef() string      { return c.Ref }

// CourseOfAction is a suggested response.
type CourseOfAction struct {
	ID, Ref, Title, Description string
}

func (c *CourseOfAction) Category() Category { return CategoryCoursesOfAction }
func (c *CourseOfAction) ElementID() string  { return c.ID }
func (c *CourseOfAction) IDRef() string      { return c.Ref }

// ExploitTarget is a vulnerability or weakness.
type ExploitTarget struct {
	ID, Ref, Title, Description string
	CVEs                        []string
}

func (e *ExploitTarget) Category() Category { return CategoryExploitTargets }
func (e *ExploitTarget) ElementID() string  { return e.ID }
func (e *ExploitTarget) IDRef() string      { return e.Ref }

// ThreatActor is an adversary.
type ThreatActor struct {
	ID, Ref, Title, Description string
}

func (t *ThreatActor) Category() Category { return CategoryThreatActors }
func (t *ThreatActor) ElementID() string  { return t.ID }
func (t *ThreatActor) IDRef() string      { return t.Ref }

// Incident is a reported security incident.
type Incident struct {
	ID, Ref, Title, Description string
}

func (i *Incident) Category() Category { return CategoryIncidents }
func (i *Incident) ElementID() string  { return i.ID }
func (i *Incident) IDRef() string      { return i.Ref }
