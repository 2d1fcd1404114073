package checker

import (
	"errors"
	"net"
	"os"
	"path/filepath"
	"testing"

	"github.com/database64128/domaincheck-go/domainset"
	"github.com/database64128/domaincheck-go/prefixset"
	"github.com/database64128/domaincheck-go/stats"
	"github.com/oschwald/geoip2-golang"
	"go.uber.org/zap"
)

// testCountryLookup maps the first byte of IPv4 addresses to country codes.
type testCountryLookup map[byte]string

func (l testCountryLookup) Country(ip net.IP) (*geoip2.Country, error) {
	ip4 := ip.To4()
	if ip4 == nil {
		return nil, errors.New("no IPv6 data")
	}
	var country geoip2.Country
	country.Country.IsoCode = l[ip4[0]]
	return &country, nil
}

func newTestChecker(t *testing.T, collector stats.Collector) *Checker {
	t.Helper()
	private, err := prefixset.IPSetFromText("10.0.0.0/8\nfc00::/7\n")
	if err != nil {
		t.Fatal(err)
	}
	index := domainset.NewIndexFromStrings([]string{"gdz.ru", "maps.me", "m.gdz.ru", "com", "5.6.7.8"})
	c := NewChecker(index, []PrefixSet{{Name: "private", IPSet: private}}, zap.NewNop(), collector)
	c.SetGeoIP(testCountryLookup{1: "AU", 2: "RU"}, []string{"RU", "KP"})
	return c
}

func TestCheck(t *testing.T) {
	c := newTestChecker(t, stats.NoopCollector{})

	for _, want := range []Result{
		{Query: "gdz.ru", Forbidden: true, Reason: stats.ReasonDomain, Rule: "gdz.ru"},
		{Query: "gdz.com", Forbidden: true, Reason: stats.ReasonDomain, Rule: "com"},
		{Query: "m.maps.me", Forbidden: true, Reason: stats.ReasonDomain, Rule: "maps.me"},
		{Query: "alg.m.gdz.ru", Forbidden: true, Reason: stats.ReasonDomain, Rule: "gdz.ru"},
		{Query: "maps.com", Forbidden: true, Reason: stats.ReasonDomain, Rule: "com"},
		{Query: "maps.ru"},
		{Query: "gdz.ua"},
		{Query: "10.1.2.3", Forbidden: true, Reason: stats.ReasonPrefix, Rule: "private"},
		{Query: "::ffff:10.1.2.3", Forbidden: true, Reason: stats.ReasonPrefix, Rule: "private"},
		{Query: "fd00::1", Forbidden: true, Reason: stats.ReasonPrefix, Rule: "private"},
		{Query: "2.2.2.2", Forbidden: true, Reason: stats.ReasonCountry, Rule: "RU"},
		{Query: "1.1.1.1"},
		{Query: "2001:db8::1"},
		{Query: "5.6.7.8", Forbidden: true, Reason: stats.ReasonDomain, Rule: "5.6.7.8"},
	} {
		if got := c.Check("test", want.Query); got != want {
			t.Errorf("Check(%q) = %+v, want %+v", want.Query, got, want)
		}
	}
}

func TestCheckRoot(t *testing.T) {
	c := NewChecker(domainset.NewIndexFromStrings([]string{"gdz.ru", ""}), nil, zap.NewNop(), stats.NoopCollector{})
	want := Result{Query: "gdz.ua", Forbidden: true, Reason: stats.ReasonDomain, Rule: "."}
	if got := c.Check("", "gdz.ua"); got != want {
		t.Errorf("Check(%q) = %+v, want %+v", want.Query, got, want)
	}
}

func TestCheckCollectsVerdicts(t *testing.T) {
	collector := stats.Config{Enabled: true}.Collector()
	c := newTestChecker(t, collector)

	for _, q := range []string{"gdz.ru", "maps.ru", "10.0.0.1", "2.0.0.1", "1.0.0.1"} {
		c.Check("api", q)
	}
	c.Check("dns", "alg.m.gdz.ru")

	s := collector.Snapshot()
	want := stats.Verdicts{
		Queries:          6,
		Allowed:          2,
		ForbiddenDomain:  2,
		ForbiddenPrefix:  1,
		ForbiddenCountry: 1,
	}
	if s.Verdicts != want {
		t.Errorf("Snapshot() = %+v, want %+v", s.Verdicts, want)
	}
	if len(s.Sources) != 2 {
		t.Errorf("len(Snapshot().Sources) = %d, want 2", len(s.Sources))
	}
}

func TestConfigChecker(t *testing.T) {
	dir := t.TempDir()

	domainSetPath := filepath.Join(dir, "forbidden.txt")
	if err := os.WriteFile(domainSetPath, []byte("gdz.ru\nm.gdz.ru\n"), 0644); err != nil {
		t.Fatal(err)
	}
	prefixSetPath := filepath.Join(dir, "private.txt")
	if err := os.WriteFile(prefixSetPath, []byte("192.168.0.0/16\n"), 0644); err != nil {
		t.Fatal(err)
	}

	cc := Config{
		Domains:    []string{"maps.me", "com"},
		DomainSets: []domainset.Config{{Name: "forbidden", Path: domainSetPath}},
		PrefixSets: []prefixset.Config{{Name: "private", Path: prefixSetPath}},
	}
	c, err := cc.Checker(zap.NewNop(), stats.NoopCollector{})
	if err != nil {
		t.Fatal(err)
	}
	defer c.Close()

	if got := c.Index().Len(); got != 3 {
		t.Errorf("Index().Len() = %d, want 3", got)
	}
	for _, qc := range []struct {
		query string
		want  bool
	}{
		{"alg.m.gdz.ru", true},
		{"maps.com", true},
		{"m.maps.me", true},
		{"gdz.ua", false},
		{"192.168.1.1", true},
		{"1.1.1.1", false},
	} {
		if got := c.Check("", qc.query).Forbidden; got != qc.want {
			t.Errorf("Check(%q).Forbidden = %v, want %v", qc.query, got, qc.want)
		}
	}
}

func TestConfigCheckerErrors(t *testing.T) {
	dir := t.TempDir()
	for _, c := range []struct {
		name string
		cc   Config
	}{
		{"CountriesWithoutDb", Config{ForbiddenCountries: []string{"RU"}}},
		{"MissingDomainSet", Config{DomainSets: []domainset.Config{{Name: "missing", Path: filepath.Join(dir, "missing.txt")}}}},
		{"MissingPrefixSet", Config{PrefixSets: []prefixset.Config{{Name: "missing", Path: filepath.Join(dir, "missing.txt")}}}},
		{"MissingGeoLite2Db", Config{GeoLite2CountryDbPath: filepath.Join(dir, "missing.mmdb"), ForbiddenCountries: []string{"RU"}}},
	} {
		t.Run(c.name, func(t *testing.T) {
			if _, err := c.cc.Checker(zap.NewNop(), stats.NoopCollector{}); err == nil {
				t.Error("expected error")
			}
		})
	}
}
