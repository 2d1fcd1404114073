// Package checker decides whether queries are forbidden by domain sets, prefix sets, or GeoIP countries.
package checker

import (
	"encoding/hex"
	"errors"
	"fmt"
	"net"
	"net/netip"
	"slices"

	"github.com/database64128/domaincheck-go/domainset"
	"github.com/database64128/domaincheck-go/prefixset"
	"github.com/database64128/domaincheck-go/stats"
	"github.com/oschwald/geoip2-golang"
	"go.uber.org/zap"
	"go4.org/netipx"
)

var errNoGeoLite2Db = errors.New("missing GeoLite2 country database path")

// Config is the configuration for a Checker.
type Config struct {
	// Domains are forbidden domains listed inline.
	Domains []string `json:"domains"`

	// DomainSets are domain set files of forbidden domains.
	// All domain sets and inline domains are merged into one index.
	DomainSets []domainset.Config `json:"domainSets"`

	// PrefixSets are prefix set files of forbidden IP prefixes.
	PrefixSets []prefixset.Config `json:"prefixSets"`

	// GeoLite2CountryDbPath is the path to the GeoLite2 country database.
	// Required when ForbiddenCountries is not empty.
	GeoLite2CountryDbPath string `json:"geoLite2CountryDbPath"`

	// ForbiddenCountries are ISO 3166-1 country codes.
	// IP address queries located in these countries are forbidden.
	ForbiddenCountries []string `json:"forbiddenCountries"`
}

// Checker creates a checker from the config.
// The returned checker must be closed when no longer needed.
func (cc *Config) Checker(logger *zap.Logger, collector stats.Collector) (*Checker, error) {
	if len(cc.ForbiddenCountries) > 0 && cc.GeoLite2CountryDbPath == "" {
		return nil, errNoGeoLite2Db
	}

	domains := make([]domainset.Domain, 0, len(cc.Domains))
	for _, s := range cc.Domains {
		domains = append(domains, domainset.Parse(s))
	}

	for _, dsc := range cc.DomainSets {
		ds, err := dsc.Domains()
		if err != nil {
			return nil, err
		}
		logger.Info("Loaded domain set",
			zap.String("name", dsc.Name),
			zap.String("path", dsc.Path),
			zap.Int("domains", len(ds)),
		)
		domains = append(domains, ds...)
	}

	index := domainset.NewIndex(domains)
	fingerprint := index.Fingerprint()
	logger.Info("Built domain index",
		zap.Int("domains", len(domains)),
		zap.Int("indexed", index.Len()),
		zap.String("fingerprint", hex.EncodeToString(fingerprint[:])),
	)

	prefixSets := make([]PrefixSet, len(cc.PrefixSets))
	for i, psc := range cc.PrefixSets {
		s, err := psc.IPSet()
		if err != nil {
			return nil, err
		}
		prefixSets[i] = PrefixSet{Name: psc.Name, IPSet: s}
	}

	c := NewChecker(index, prefixSets, logger, collector)

	if cc.GeoLite2CountryDbPath != "" {
		geoip, err := geoip2.Open(cc.GeoLite2CountryDbPath)
		if err != nil {
			return nil, fmt.Errorf("failed to open GeoLite2 country database: %w", err)
		}
		c.SetGeoIP(geoip, cc.ForbiddenCountries)
		c.geoipCloser = geoip
	}

	return c, nil
}

// PrefixSet is a named set of forbidden IP prefixes.
type PrefixSet struct {
	Name  string
	IPSet *netipx.IPSet
}

// CountryLookup looks up the country of an IP address.
// It is implemented by [*geoip2.Reader].
type CountryLookup interface {
	Country(ipAddress net.IP) (*geoip2.Country, error)
}

// Result is the verdict on a query.
type Result struct {
	Query     string       `json:"query"`
	Forbidden bool         `json:"forbidden"`
	Reason    stats.Reason `json:"reason"`

	// Rule is what forbids the query: the covering domain,
	// the prefix set name, or the country code.
	Rule string `json:"rule,omitempty"`
}

// Checker checks queries against the forbidden domain index,
// and IP address queries also against prefix sets and GeoIP countries.
//
// It is safe for concurrent use after SetGeoIP returns.
type Checker struct {
	index       *domainset.Index
	prefixSets  []PrefixSet
	geoip       CountryLookup
	geoipCloser interface{ Close() error }
	countries   []string
	logger      *zap.Logger
	collector   stats.Collector
}

// NewChecker returns a new checker.
func NewChecker(index *domainset.Index, prefixSets []PrefixSet, logger *zap.Logger, collector stats.Collector) *Checker {
	return &Checker{
		index:      index,
		prefixSets: prefixSets,
		logger:     logger,
		collector:  collector,
	}
}

// SetGeoIP enables the GeoIP country policy for IP address queries.
func (c *Checker) SetGeoIP(geoip CountryLookup, countries []string) {
	c.geoip = geoip
	c.countries = countries
}

// Index returns the forbidden domain index.
func (c *Checker) Index() *domainset.Index {
	return c.index
}

// Stats returns the verdict statistics collector.
func (c *Checker) Stats() stats.Collector {
	return c.collector
}

// Check checks the query and counts the verdict for the source.
func (c *Checker) Check(source, query string) Result {
	r := c.check(query)
	c.collector.CollectVerdict(source, r.Reason)
	if ce := c.logger.Check(zap.DebugLevel, "Checked query"); ce != nil {
		ce.Write(
			zap.String("source", source),
			zap.String("query", query),
			zap.Bool("forbidden", r.Forbidden),
			zap.Stringer("reason", r.Reason),
			zap.String("rule", r.Rule),
		)
	}
	return r
}

func (c *Checker) check(query string) Result {
	if addr, err := netip.ParseAddr(query); err == nil {
		addr = addr.Unmap()

		for _, ps := range c.prefixSets {
			if ps.IPSet.Contains(addr) {
				return Result{Query: query, Forbidden: true, Reason: stats.ReasonPrefix, Rule: ps.Name}
			}
		}

		if country, ok := c.matchCountry(addr); ok {
			return Result{Query: query, Forbidden: true, Reason: stats.ReasonCountry, Rule: country}
		}
	}

	if cover, ok := c.index.Cover(domainset.Parse(query)); ok {
		rule := cover.String()
		if cover.IsRoot() {
			rule = "."
		}
		return Result{Query: query, Forbidden: true, Reason: stats.ReasonDomain, Rule: rule}
	}

	return Result{Query: query}
}

func (c *Checker) matchCountry(addr netip.Addr) (string, bool) {
	if c.geoip == nil || len(c.countries) == 0 {
		return "", false
	}

	country, err := c.geoip.Country(addr.AsSlice())
	if err != nil {
		c.logger.Warn("Failed to look up GeoIP country", zap.Stringer("ip", addr), zap.Error(err))
		return "", false
	}

	code := country.Country.IsoCode
	return code, slices.Contains(c.countries, code)
}

// Close releases the GeoIP database, if any.
func (c *Checker) Close() error {
	if c.geoipCloser != nil {
		return c.geoipCloser.Close()
	}
	return nil
}
