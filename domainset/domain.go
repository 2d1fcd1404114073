package domainset

import "strings"

// labelTerminator follows every label in the canonical form.
const labelTerminator = '.'

// Domain is a domain name in canonical form.
//
// The canonical form lists the labels from the top-level label down to the
// most specific one, each followed by [labelTerminator]. "ya.ru" is stored as
// "ru.ya.". A label never contains the separator it was split on, so one domain
// is a subdomain of another exactly when its canonical form starts with the
// other's canonical form, and "ru." is never a prefix of "rug." or "rru.".
//
// The zero value is the root domain. It has no labels and its canonical form is
// empty, which makes every domain a subdomain of the root.
type Domain struct {
	key string
}

// Parse returns the canonical form of a domain name in dotted notation.
//
// Parse never fails. Labels are opaque: no character set validation is done.
// A single leading dot is an empty leading label and is ignored, so ".ya.ru"
// and "ya.ru" are the same domain. "" and "." are the root domain.
// A trailing dot is kept as an empty top-level label.
func Parse(s string) Domain {
	if len(s) > 0 && s[0] == '.' {
		s = s[1:]
	}
	if len(s) == 0 {
		return Domain{}
	}

	b := make([]byte, 0, len(s)+1)
	for end := len(s); ; {
		i := strings.LastIndexByte(s[:end], '.')
		b = append(b, s[i+1:end]...)
		b = append(b, labelTerminator)
		if i == -1 {
			break
		}
		end = i
	}
	return Domain{key: string(b)}
}

// IsRoot returns whether d is the root domain.
func (d Domain) IsRoot() bool {
	return len(d.key) == 0
}

// Equal returns whether d and other are the same domain.
func (d Domain) Equal(other Domain) bool {
	return d.key == other.key
}

// Compare compares the canonical forms of d and other lexicographically.
// It returns -1 if d sorts before other, 0 if they are equal, and +1 otherwise.
//
// A domain always sorts before its subdomains.
func (d Domain) Compare(other Domain) int {
	return strings.Compare(d.key, other.key)
}

// IsSubdomainOf returns whether d is other or one of its subdomains.
func (d Domain) IsSubdomainOf(other Domain) bool {
	return strings.HasPrefix(d.key, other.key)
}

// LabelCount returns the number of labels in d.
func (d Domain) LabelCount() int {
	return strings.Count(d.key, string(labelTerminator))
}

// Labels returns the labels of d, top-level label first.
func (d Domain) Labels() []string {
	if d.IsRoot() {
		return nil
	}
	return strings.Split(d.key[:len(d.key)-1], string(labelTerminator))
}

// String returns d in dotted notation.
//
// The result is parsed back into d by [Parse]. The root domain is "".
func (d Domain) String() string {
	if d.IsRoot() {
		return ""
	}

	key := d.key[:len(d.key)-1]
	b := make([]byte, 0, len(d.key)+1)

	// An empty most specific label needs an extra leading dot,
	// because Parse drops the first one.
	if len(key) == 0 || key[len(key)-1] == labelTerminator {
		b = append(b, '.')
	}

	for end := len(key); ; {
		i := strings.LastIndexByte(key[:end], labelTerminator)
		b = append(b, key[i+1:end]...)
		if i == -1 {
			break
		}
		b = append(b, '.')
		end = i
	}
	return string(b)
}

// MarshalText implements [encoding.TextMarshaler.MarshalText].
func (d Domain) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

// UnmarshalText implements [encoding.TextUnmarshaler.UnmarshalText].
func (d *Domain) UnmarshalText(text []byte) error {
	*d = Parse(string(text))
	return nil
}
