package domainset

// Matcher provides functionality for matching domain names against a set of rules.
type Matcher interface {
	// Match returns whether the domain is matched by the matcher.
	Match(domain string) bool
}

// MatcherFunc is a function that implements [Matcher].
type MatcherFunc func(domain string) bool

// Match implements [Matcher.Match].
func (f MatcherFunc) Match(domain string) bool {
	return f(domain)
}
