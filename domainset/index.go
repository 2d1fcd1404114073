package domainset

import (
	"encoding/binary"
	"slices"

	"lukechampine.com/blake3"
)

// Index is an immutable set of forbidden domains.
// A domain is forbidden if it is one of the domains in the set or a subdomain of one.
//
// The index keeps its domains sorted by canonical form, and no domain in it is
// a subdomain of another. It is safe for concurrent use.
type Index struct {
	domains []Domain
}

// NewIndex builds an index from the forbidden domains.
// Order and duplicates in domains do not matter, and domains is not retained.
//
// Domains covered by another domain in the input are dropped.
// If the root domain is present, it is the only domain left.
func NewIndex(domains []Domain) *Index {
	sorted := slices.Clone(domains)
	slices.SortFunc(sorted, Domain.Compare)

	// Ancestors sort before their descendants,
	// so comparing with the last kept domain is enough.
	kept := sorted[:0]
	for _, d := range sorted {
		if len(kept) > 0 && d.IsSubdomainOf(kept[len(kept)-1]) {
			continue
		}
		kept = append(kept, d)
	}

	return &Index{domains: slices.Clip(kept)}
}

// NewIndexFromStrings builds an index from forbidden domains in dotted notation.
func NewIndexFromStrings(domains []string) *Index {
	ds := make([]Domain, len(domains))
	for i, s := range domains {
		ds[i] = Parse(s)
	}
	return NewIndex(ds)
}

// Cover returns the domain in the index that d is a subdomain of.
// The boolean is false if d is not forbidden.
func (x *Index) Cover(d Domain) (Domain, bool) {
	// Position of the first domain not less than d.
	// Everything before it is less than d.
	i, found := slices.BinarySearchFunc(x.domains, d, Domain.Compare)
	if found {
		return x.domains[i], true
	}
	if i == 0 {
		return Domain{}, false
	}

	// Only the greatest domain less than d can be its ancestor.
	// Sorting before d does not make it one: "ru." < "rug.".
	candidate := x.domains[i-1]
	if d.IsSubdomainOf(candidate) {
		return candidate, true
	}
	return Domain{}, false
}

// IsForbidden returns whether d is a forbidden domain or a subdomain of one.
func (x *Index) IsForbidden(d Domain) bool {
	_, ok := x.Cover(d)
	return ok
}

// Match implements [Matcher.Match].
func (x *Index) Match(domain string) bool {
	return x.IsForbidden(Parse(domain))
}

// Len returns the number of domains left after normalization.
func (x *Index) Len() int {
	return len(x.domains)
}

// Domains returns a copy of the normalized domains in canonical order.
func (x *Index) Domains() []Domain {
	return slices.Clone(x.domains)
}

// Fingerprint returns the BLAKE3-256 hash of the normalized domains.
//
// Two indexes that forbid exactly the same domains have the same fingerprint.
func (x *Index) Fingerprint() (sum [32]byte) {
	h := blake3.New(len(sum), nil)
	var b []byte
	for _, d := range x.domains {
		b = binary.AppendUvarint(b[:0], uint64(len(d.key)))
		b = append(b, d.key...)
		h.Write(b)
	}
	h.Sum(sum[:0])
	return
}
