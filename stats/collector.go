package stats

import (
	"cmp"
	"fmt"
	"slices"
	"sync"
	"sync/atomic"
)

// Reason identifies what decided a verdict.
type Reason uint8

const (
	// ReasonNone means nothing forbids the query.
	ReasonNone Reason = iota

	// ReasonDomain means the query is inside the forbidden domain index.
	ReasonDomain

	// ReasonPrefix means the query is an IP address inside a forbidden prefix set.
	ReasonPrefix

	// ReasonCountry means the query is an IP address located in a forbidden country.
	ReasonCountry
)

var reasonNames = [...]string{
	ReasonNone:    "none",
	ReasonDomain:  "domain",
	ReasonPrefix:  "prefix",
	ReasonCountry: "country",
}

// String implements [fmt.Stringer.String].
func (r Reason) String() string {
	if int(r) < len(reasonNames) {
		return reasonNames[r]
	}
	return fmt.Sprintf("Reason(%d)", r)
}

// MarshalText implements [encoding.TextMarshaler.MarshalText].
func (r Reason) MarshalText() ([]byte, error) {
	if int(r) >= len(reasonNames) {
		return nil, fmt.Errorf("invalid reason: %d", r)
	}
	return []byte(reasonNames[r]), nil
}

type verdictCollector struct {
	allowed          atomic.Uint64
	forbiddenDomain  atomic.Uint64
	forbiddenPrefix  atomic.Uint64
	forbiddenCountry atomic.Uint64
}

func (vc *verdictCollector) collect(reason Reason) {
	switch reason {
	case ReasonDomain:
		vc.forbiddenDomain.Add(1)
	case ReasonPrefix:
		vc.forbiddenPrefix.Add(1)
	case ReasonCountry:
		vc.forbiddenCountry.Add(1)
	default:
		vc.allowed.Add(1)
	}
}

// Verdicts stores the verdict statistics.
type Verdicts struct {
	Queries          uint64 `json:"queries"`
	Allowed          uint64 `json:"allowed"`
	ForbiddenDomain  uint64 `json:"forbiddenDomain"`
	ForbiddenPrefix  uint64 `json:"forbiddenPrefix"`
	ForbiddenCountry uint64 `json:"forbiddenCountry"`
}

// Forbidden returns the number of forbidden verdicts.
func (v Verdicts) Forbidden() uint64 {
	return v.ForbiddenDomain + v.ForbiddenPrefix + v.ForbiddenCountry
}

// Add adds the counts in u to v.
func (v *Verdicts) Add(u Verdicts) {
	v.Queries += u.Queries
	v.Allowed += u.Allowed
	v.ForbiddenDomain += u.ForbiddenDomain
	v.ForbiddenPrefix += u.ForbiddenPrefix
	v.ForbiddenCountry += u.ForbiddenCountry
}

func newVerdicts(allowed, forbiddenDomain, forbiddenPrefix, forbiddenCountry uint64) Verdicts {
	return Verdicts{
		Queries:          allowed + forbiddenDomain + forbiddenPrefix + forbiddenCountry,
		Allowed:          allowed,
		ForbiddenDomain:  forbiddenDomain,
		ForbiddenPrefix:  forbiddenPrefix,
		ForbiddenCountry: forbiddenCountry,
	}
}

func (vc *verdictCollector) snapshot() Verdicts {
	return newVerdicts(
		vc.allowed.Load(),
		vc.forbiddenDomain.Load(),
		vc.forbiddenPrefix.Load(),
		vc.forbiddenCountry.Load(),
	)
}

func (vc *verdictCollector) snapshotAndReset() Verdicts {
	return newVerdicts(
		vc.allowed.Swap(0),
		vc.forbiddenDomain.Swap(0),
		vc.forbiddenPrefix.Swap(0),
		vc.forbiddenCountry.Swap(0),
	)
}

// Source stores the verdict statistics of one query source, like the API or the DNS filter.
type Source struct {
	Name string `json:"source"`
	Verdicts
}

// Compare is useful for sorting sources by name.
func (s Source) Compare(other Source) int {
	return cmp.Compare(s.Name, other.Name)
}

type checkerCollector struct {
	vc  verdictCollector
	scs map[string]*verdictCollector
	mu  sync.RWMutex
}

// NewCheckerCollector returns a new collector for collecting checker verdict statistics.
func NewCheckerCollector() *checkerCollector {
	return &checkerCollector{
		scs: make(map[string]*verdictCollector),
	}
}

func (cc *checkerCollector) sourceCollector(source string) *verdictCollector {
	cc.mu.RLock()
	sc := cc.scs[source]
	cc.mu.RUnlock()
	if sc == nil {
		cc.mu.Lock()
		sc = cc.scs[source]
		if sc == nil {
			sc = &verdictCollector{}
			cc.scs[source] = sc
		}
		cc.mu.Unlock()
	}
	return sc
}

// CollectVerdict implements the Collector CollectVerdict method.
func (cc *checkerCollector) CollectVerdict(source string, reason Reason) {
	if source == "" {
		cc.vc.collect(reason)
		return
	}
	cc.sourceCollector(source).collect(reason)
}

// Checker stores the checker's verdict statistics.
type Checker struct {
	Verdicts
	Sources []Source `json:"sources,omitempty"`
}

// Snapshot implements the Collector Snapshot method.
func (cc *checkerCollector) Snapshot() (c Checker) {
	c.Verdicts = cc.vc.snapshot()
	cc.mu.RLock()
	c.Sources = make([]Source, 0, len(cc.scs))
	for name, sc := range cc.scs {
		s := Source{Name: name, Verdicts: sc.snapshot()}
		c.Verdicts.Add(s.Verdicts)
		c.Sources = append(c.Sources, s)
	}
	cc.mu.RUnlock()
	slices.SortFunc(c.Sources, Source.Compare)
	return
}

// SnapshotAndReset implements the Collector SnapshotAndReset method.
func (cc *checkerCollector) SnapshotAndReset() (c Checker) {
	c.Verdicts = cc.vc.snapshotAndReset()
	cc.mu.RLock()
	c.Sources = make([]Source, 0, len(cc.scs))
	for name, sc := range cc.scs {
		s := Source{Name: name, Verdicts: sc.snapshotAndReset()}
		c.Verdicts.Add(s.Verdicts)
		c.Sources = append(c.Sources, s)
	}
	cc.mu.RUnlock()
	slices.SortFunc(c.Sources, Source.Compare)
	return
}

// Collector collects checker verdict statistics.
type Collector interface {
	// CollectVerdict counts one verdict from the source.
	// An empty source is counted only in the totals.
	CollectVerdict(source string, reason Reason)

	// Snapshot returns the checker's verdict statistics.
	Snapshot() Checker

	// SnapshotAndReset returns the checker's verdict statistics and resets the statistics.
	SnapshotAndReset() Checker
}

// NoopCollector is a no-op collector.
// Its collect method does nothing and its snapshot methods return empty statistics.
type NoopCollector struct{}

// CollectVerdict implements the Collector CollectVerdict method.
func (NoopCollector) CollectVerdict(source string, reason Reason) {}

// Snapshot implements the Collector Snapshot method.
func (NoopCollector) Snapshot() Checker {
	return Checker{}
}

// SnapshotAndReset implements the Collector SnapshotAndReset method.
func (NoopCollector) SnapshotAndReset() Checker {
	return Checker{}
}

// Config stores configuration for the stats collector.
type Config struct {
	Enabled bool `json:"enabled"`
}

// Collector returns a new stats collector from the config.
func (c Config) Collector() Collector {
	if c.Enabled {
		return NewCheckerCollector()
	}
	return NoopCollector{}
}
