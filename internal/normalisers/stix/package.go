package stix

import (
	"encoding/xml"
	"strconv"
	"strings"
	"time"

	"github.com/custodia-labs/ctitrans/internal/core/domain"
)

const xsiNamespace = "http://www.w3.org/2001/XMLSchema-instance"

// xmlPackage mirrors stix:STIX_Package. Tags match local names so any
// namespace prefix is accepted.
type xmlPackage struct {
	XMLName         xml.Name           `xml:"STIX_Package"`
	ID              string             `xml:"id,attr"`
	Header          *xmlHeader         `xml:"STIX_Header"`
	Observables     []xmlObservable    `xml:"Observables>Observable"`
	Indicators      []xmlIndicator     `xml:"Indicators>Indicator"`
	TTPs            []xmlTTP           `xml:"TTPs>TTP"`
	KillChains      []xmlKillChain     `xml:"TTPs>Kill_Chains>Kill_Chain"`
	Campaigns       []xmlElement       `xml:"Campaigns>Campaign"`
	CoursesOfAction []xmlElement       `xml:"Courses_Of_Action>Course_Of_Action"`
	ExploitTargets  []xmlExploitTarget `xml:"Exploit_Targets>Exploit_Target"`
	ThreatActors    []xmlElement       `xml:"Threat_Actors>Threat_Actor"`
	Incidents       []xmlElement       `xml:"Incidents>Incident"`
}

type xmlHeader struct {
	Title       string       `xml:"Title"`
	Description string       `xml:"Description"`
	Markings    []xmlMarking `xml:"Handling>Marking>Marking_Structure"`
}

type xmlMarking struct {
	Color string `xml:"color,attr"`
}

// xmlElement holds the fields shared by the simple top-level elements.
type xmlElement struct {
	ID          string `xml:"id,attr"`
	IDRef       string `xml:"idref,attr"`
	Title       string `xml:"Title"`
	Description string `xml:"Description"`
}

type xmlExploitTarget struct {
	xmlElement
	CVEs []string `xml:"Vulnerability>CVE_ID"`
}

type xmlIndicator struct {
	xmlElement
	Timestamp         string                  `xml:"timestamp,attr"`
	Types             []string                `xml:"Type"`
	Confidence        string                  `xml:"Confidence>Value"`
	Observables       []xmlObservable         `xml:"Observable"`
	Composite         *xmlIndicatorExpression `xml:"Composite_Indicator_Expression"`
	IndicatedTTPs     []xmlRelatedTTP         `xml:"Indicated_TTP"`
	SuggestedCOAs     []xmlElement            `xml:"Suggested_COAs>Suggested_COA>Course_Of_Action"`
	RelatedIndicators []xmlIndicator          `xml:"Related_Indicators>Related_Indicator>Indicator"`
}

type xmlIndicatorExpression struct {
	Operator   string         `xml:"operator,attr"`
	Indicators []xmlIndicator `xml:"Indicator"`
}

type xmlRelatedTTP struct {
	Confidence string  `xml:"Confidence>Value"`
	TTP        *xmlTTP `xml:"TTP"`
}

type xmlTTP struct {
	xmlElement
	Phases []xmlPhaseRef `xml:"Kill_Chain_Phases>Kill_Chain_Phase"`
}

type xmlPhaseRef struct {
	KillChainID string `xml:"kill_chain_id,attr"`
	PhaseID     string `xml:"phase_id,attr"`
}

type xmlKillChain struct {
	ID     string     `xml:"id,attr"`
	Name   string     `xml:"name,attr"`
	Phases []xmlPhase `xml:"Kill_Chain_Phase"`
}

type xmlPhase struct {
	PhaseID    string `xml:"phase_id,attr"`
	Name       string `xml:"name,attr"`
	Ordinality string `xml:"ordinality,attr"`
}

type xmlObservable struct {
	ID          string          `xml:"id,attr"`
	IDRef       string          `xml:"idref,attr"`
	Title       string          `xml:"Title"`
	Description string          `xml:"Description"`
	Object      *xmlObject      `xml:"Object"`
	Composition *xmlComposition `xml:"Observable_Composition"`
}

type xmlComposition struct {
	Operator    string          `xml:"operator,attr"`
	Observables []xmlObservable `xml:"Observable"`
}

type xmlObject struct {
	ID         string         `xml:"id,attr"`
	Properties *xmlProperties `xml:"Properties"`
}

func (p *xmlPackage) toDomain() *domain.Package {
	pkg := &domain.Package{ID: p.ID}
	if p.Header != nil {
		pkg.Header = &domain.Header{
			Title:       clean(p.Header.Title),
			Description: clean(p.Header.Description),
		}
		for _, m := range p.Header.Markings {
			if m.Color != "" {
				pkg.Header.TLP = strings.ToUpper(m.Color)
				break
			}
		}
	}
	for i := range p.Observables {
		pkg.Observables = append(pkg.Observables, p.Observables[i].toDomain())
	}
	for i := range p.Indicators {
		pkg.Indicators = append(pkg.Indicators, p.Indicators[i].toDomain())
	}
	for i := range p.TTPs {
		pkg.TTPs = append(pkg.TTPs, p.TTPs[i].toDomain())
	}
	for _, kc := range p.KillChains {
		chain := &domain.KillChain{ID: kc.ID, Name: kc.Name}
		for _, ph := range kc.Phases {
			ordinal, _ := strconv.Atoi(ph.Ordinality)
			chain.Phases = append(chain.Phases, domain.KillChainPhase{ID: ph.PhaseID, Name: ph.Name, Ordinal: ordinal})
		}
		pkg.KillChains = append(pkg.KillChains, chain)
	}
	for _, e := range p.Campaigns {
		pkg.Campaigns = append(pkg.Campaigns, &domain.Campaign{ID: e.ID, Ref: e.IDRef, Title: clean(e.Title), Description: clean(e.Description)})
	}
	for _, e := range p.CoursesOfAction {
		pkg.CoursesOfAction = append(pkg.CoursesOfAction, e.courseOfAction())
	}
	for _, e := range p.ExploitTargets {
		pkg.ExploitTargets = append(pkg.ExploitTargets, &domain.ExploitTarget{
			ID: e.ID, Ref: e.IDRef, Title: clean(e.Title), Description: clean(e.Description), CVEs: e.CVEs,
		})
	}
	for _, e := range p.ThreatActors {
		pkg.ThreatActors = append(pkg.ThreatActors, &domain.ThreatActor{ID: e.ID, Ref: e.IDRef, Title: clean(e.Title), Description: clean(e.Description)})
	}
	for _, e := range p.Incidents {
		pkg.Incidents = append(pkg.Incidents, &domain.Incident{ID: e.ID, Ref: e.IDRef, Title: clean(e.Title), Description: clean(e.Description)})
	}
	return pkg
}

func (e xmlElement) courseOfAction() *domain.CourseOfAction {
	return &domain.CourseOfAction{ID: e.ID, Ref: e.IDRef, Title: clean(e.Title), Description: clean(e.Description)}
}

func (x *xmlIndicator) toDomain() *domain.Indicator {
	ind := &domain.Indicator{
		ID:          x.ID,
		Ref:         x.IDRef,
		Title:       clean(x.Title),
		Description: clean(x.Description),
		Confidence:  clean(x.Confidence),
	}
	if x.Timestamp != "" {
		if ts, err := time.Parse(time.RFC3339Nano, x.Timestamp); err == nil {
			ind.Timestamp = ts
		}
	}
	for _, t := range x.Types {
		if t = clean(t); t != "" {
			ind.Types = append(ind.Types, t)
		}
	}
	for i := range x.Observables {
		ind.Observables = append(ind.Observables, x.Observables[i].toDomain())
	}
	if x.Composite != nil {
		expr := &domain.CompositeIndicatorExpression{Operator: x.Composite.Operator}
		for i := range x.Composite.Indicators {
			expr.Indicators = append(expr.Indicators, x.Composite.Indicators[i].toDomain())
		}
		ind.Composite = expr
	}
	for _, rel := range x.IndicatedTTPs {
		related := &domain.RelatedTTP{Confidence: clean(rel.Confidence)}
		if rel.TTP != nil {
			related.TTP = rel.TTP.toDomain()
		}
		ind.IndicatedTTPs = append(ind.IndicatedTTPs, related)
	}
	for _, coa := range x.SuggestedCOAs {
		ind.SuggestedCOAs = append(ind.SuggestedCOAs, coa.courseOfAction())
	}
	for i := range x.RelatedIndicators {
		ind.RelatedIndicators = append(ind.RelatedIndicators, x.RelatedIndicators[i].toDomain())
	}
	return ind
}

func (x *xmlTTP) toDomain() *domain.TTP {
	ttp := &domain.TTP{ID: x.ID, Ref: x.IDRef, Title: clean(x.Title), Description: clean(x.Description)}
	for _, ph := range x.Phases {
		ttp.KillChainPhases = append(ttp.KillChainPhases, ph.KillChainID+":"+ph.PhaseID)
	}
	return ttp
}

func (x *xmlObservable) toDomain() *domain.Observable {
	obs := &domain.Observable{
		ID:          x.ID,
		Ref:         x.IDRef,
		Title:       clean(x.Title),
		Description: clean(x.Description),
	}
	if x.Object != nil {
		obs.Object = &domain.Object{ID: x.Object.ID}
		if x.Object.Properties != nil {
			obs.Object.Properties = x.Object.Properties.props
		}
	}
	if x.Composition != nil {
		comp := &domain.ObservableComposition{Operator: x.Composition.Operator}
		for i := range x.Composition.Observables {
			comp.Observables = append(comp.Observables, x.Composition.Observables[i].toDomain())
		}
		obs.Composition = comp
	}
	return obs
}

func clean(s string) string {
	return strings.TrimSpace(s)
}

// localType returns the type name of an xsi:type value without its prefix.
func localType(attrs []xml.Attr) string {
	for _, a := range attrs {
		if a.Name.Local == "type" && (a.Name.Space == xsiNamespace || a.Name.Space == "xsi") {
			_, name, found := strings.Cut(a.Value, ":")
			if !found {
				return a.Value
			}
			return name
		}
	}
	return ""
}
