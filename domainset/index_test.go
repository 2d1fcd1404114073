package domainset

import (
	"math/rand"
	"strings"
	"testing"
)

// linearIsForbidden is the brute force reference for [Index.IsForbidden].
func linearIsForbidden(forbidden []Domain, d Domain) bool {
	for _, f := range forbidden {
		if d.IsSubdomainOf(f) {
			return true
		}
	}
	return false
}

func testIsForbidden(t *testing.T, x *Index, domain string, want bool) {
	t.Helper()
	if got := x.Match(domain); got != want {
		t.Errorf("Match(%q) = %v, want %v", domain, got, want)
	}
}

func checkIndexInvariant(t *testing.T, x *Index) {
	t.Helper()
	for i := 1; i < len(x.domains); i++ {
		if x.domains[i-1].Compare(x.domains[i]) >= 0 {
			t.Errorf("domains[%d] = %q is not less than domains[%d] = %q", i-1, x.domains[i-1], i, x.domains[i])
		}
	}
	for i, a := range x.domains {
		for j, b := range x.domains {
			if i != j && a.IsSubdomainOf(b) {
				t.Errorf("domains[%d] = %q is a subdomain of domains[%d] = %q", i, a, j, b)
			}
		}
	}
}

func TestIndexExample(t *testing.T) {
	x := NewIndexFromStrings([]string{"gdz.ru", "maps.me", "m.gdz.ru", "com"})
	checkIndexInvariant(t, x)

	if x.Len() != 3 {
		t.Errorf("Len() = %d, want 3", x.Len())
	}

	testIsForbidden(t, x, "gdz.ru", true)
	testIsForbidden(t, x, "gdz.com", true)
	testIsForbidden(t, x, "m.maps.me", true)
	testIsForbidden(t, x, "alg.m.gdz.ru", true)
	testIsForbidden(t, x, "maps.com", true)
	testIsForbidden(t, x, "maps.ru", false)
	testIsForbidden(t, x, "gdz.ua", false)
}

func TestIndexRedundantInput(t *testing.T) {
	x := NewIndexFromStrings([]string{
		"zzz",
		".zzz",
		"random.zzz",
		"yandex.random.zzz",
		"map.x",
		".x",
		"x",
		".x",
		"x",
		"map.x",
		"taboo.map.x",
		"maps.me",
		"math.gdz.ru",
		"ab.cd.ef.gh.ij.kl.mno.pqr.stu.vw.xyz",
		"biz",
	})
	checkIndexInvariant(t, x)

	want := []string{"biz", "ab.cd.ef.gh.ij.kl.mno.pqr.stu.vw.xyz", "maps.me", "math.gdz.ru", "x", "zzz"}
	if x.Len() != len(want) {
		t.Fatalf("Len() = %d, want %d", x.Len(), len(want))
	}
	for _, w := range want {
		if _, ok := x.Cover(Parse(w)); !ok {
			t.Errorf("%q is not kept", w)
		}
	}

	for _, domain := range []string{
		".zzz",
		"zzz",
		"gdz.zzz",
		"russian.gdz.zzz",
		"russian.lessons.gdz.zzz",
		"random.zzz",
		"yandex.random.zzz",
		"russian.lessons.gdz.x",
		"www.maps.me",
		"alg.math.gdz.ru",
		"z.ab.cd.ef.gh.ij.kl.mno.pqr.stu.vw.xyz",
		"maps.biz",
	} {
		testIsForbidden(t, x, domain, true)
	}

	for _, domain := range []string{
		"yandex.random.yzzz",
		"xzzz",
		".xzzz",
		"gdz.com",
		"zzz.com",
		"zzzx",
		"zzz.me",
		"www.map.me",
		"www.maps.m",
		"alg.gdz.ru",
		"b.cd.ef.gh.ij.kl.mno.pqr.stu.vw.xyz",
		"zab.cd.ef.gh.ij.kl.mno.pqr.stu.vw.xyz",
		"z.ab.cd.ef.gh.ij.l.mno.pqr.stu.vw.xyz",
		"biz.maps",
		"gdz.ua",
	} {
		testIsForbidden(t, x, domain, false)
	}
}

func TestIndexLabelBoundary(t *testing.T) {
	x := NewIndexFromStrings([]string{"ru", "ab"})
	testIsForbidden(t, x, "ru", true)
	testIsForbidden(t, x, "ya.ru", true)
	testIsForbidden(t, x, "rug", false)
	testIsForbidden(t, x, "gdz.rru", false)
	testIsForbidden(t, x, "ru-ru", false)
	testIsForbidden(t, x, "a.b", false)
	testIsForbidden(t, x, "abc", false)
}

func TestIndexRoot(t *testing.T) {
	x := NewIndexFromStrings([]string{"gdz.ru", "", "maps.me", "com"})
	checkIndexInvariant(t, x)

	if x.Len() != 1 {
		t.Errorf("Len() = %d, want 1", x.Len())
	}
	for _, domain := range []string{"", ".", "ru", "gdz.ua", "alg.m.gdz.ru", "ru.", "anything at all"} {
		testIsForbidden(t, x, domain, true)
	}
}

func TestIndexEmpty(t *testing.T) {
	for _, x := range []*Index{NewIndex(nil), NewIndexFromStrings([]string{})} {
		if x.Len() != 0 {
			t.Errorf("Len() = %d, want 0", x.Len())
		}
		for _, domain := range []string{"", "ru", "gdz.ru", "m.maps.me"} {
			testIsForbidden(t, x, domain, false)
		}
	}
}

func TestIndexCover(t *testing.T) {
	x := NewIndexFromStrings([]string{"gdz.ru", "m.gdz.ru", "com"})
	for _, c := range []struct {
		domain string
		cover  string
		ok     bool
	}{
		{"gdz.ru", "gdz.ru", true},
		{"alg.m.gdz.ru", "gdz.ru", true},
		{"maps.com", "com", true},
		{"ru", "", false},
		{"a", "", false},
		{"zzz", "", false},
	} {
		cover, ok := x.Cover(Parse(c.domain))
		if ok != c.ok || cover != Parse(c.cover) {
			t.Errorf("Cover(%q) = %q, %v; want %q, %v", c.domain, cover, ok, c.cover, c.ok)
		}
	}
}

func TestIndexDoesNotRetainInput(t *testing.T) {
	in := []Domain{Parse("maps.me"), Parse("gdz.ru")}
	x := NewIndex(in)
	in[0], in[1] = Parse("ru"), Parse("me")

	testIsForbidden(t, x, "ya.ru", false)
	testIsForbidden(t, x, "m.maps.me", true)

	out := x.Domains()
	out[0] = Parse("")
	testIsForbidden(t, x, "ya.ru", false)
}

var randomLabels = [...]string{"", "a", "b", "ab", "ba", "ru", "rug", "rru", "u", "-", "a-b", "com", "x"}

func randomDomain(r *rand.Rand) string {
	n := 1 + r.Intn(3)
	if r.Intn(32) == 0 {
		n = 0
	}
	labels := make([]string, n)
	for i := range labels {
		labels[i] = randomLabels[r.Intn(len(randomLabels))]
	}
	s := strings.Join(labels, ".")
	if r.Intn(8) == 0 {
		s = "." + s
	}
	return s
}

func TestIndexMatchesLinearScan(t *testing.T) {
	r := rand.New(rand.NewSource(1))

	for round := 0; round < 200; round++ {
		raw := make([]string, r.Intn(12))
		for i := range raw {
			raw[i] = randomDomain(r)
		}
		forbidden := make([]Domain, len(raw))
		for i, s := range raw {
			forbidden[i] = Parse(s)
		}

		x := NewIndex(forbidden)
		checkIndexInvariant(t, x)

		// Adding duplicates and covered subdomains must not change any answer.
		redundant := append([]Domain(nil), forbidden...)
		for _, f := range forbidden {
			redundant = append(redundant, f, Parse(randomDomain(r)+"."+f.String()))
		}
		y := NewIndex(redundant)

		if x.Fingerprint() != y.Fingerprint() {
			t.Errorf("round %d: fingerprints differ after adding redundant domains to %q", round, raw)
		}

		for q := 0; q < 50; q++ {
			query := randomDomain(r)
			d := Parse(query)
			want := linearIsForbidden(forbidden, d)
			if got := x.IsForbidden(d); got != want {
				t.Errorf("round %d: forbidden %q: IsForbidden(%q) = %v, want %v", round, raw, query, got, want)
			}
			if got := y.IsForbidden(d); got != want {
				t.Errorf("round %d: forbidden %q with redundant entries: IsForbidden(%q) = %v, want %v", round, raw, query, got, want)
			}
		}
	}
}

func TestIndexFingerprint(t *testing.T) {
	a := NewIndexFromStrings([]string{"gdz.ru", "maps.me", "com"})
	b := NewIndexFromStrings([]string{"com", "m.gdz.ru", "maps.me", "gdz.ru", "com"})
	c := NewIndexFromStrings([]string{"gdz.ru", "maps.me"})

	if a.Fingerprint() != b.Fingerprint() {
		t.Error("indexes with the same coverage have different fingerprints")
	}
	if a.Fingerprint() == c.Fingerprint() {
		t.Error("indexes with different coverage have the same fingerprint")
	}
}

func benchmarkIndex(b *testing.B, domain string) {
	forbidden := make([]string, 0, 4096)
	for i := 0; i < 4096; i++ {
		forbidden = append(forbidden, "d"+strings.Repeat("x", i%7)+string(rune('a'+i%26))+".example"+string(rune('a'+i%13)))
	}
	forbidden = append(forbidden, "gdz.ru")
	x := NewIndexFromStrings(forbidden)
	d := Parse(domain)

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		x.IsForbidden(d)
	}
}

func BenchmarkIndexHit(b *testing.B) {
	benchmarkIndex(b, "alg.math.gdz.ru")
}

func BenchmarkIndexMiss(b *testing.B) {
	benchmarkIndex(b, "alg.math.gdz.ua")
}
