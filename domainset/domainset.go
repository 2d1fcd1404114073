package domainset

import (
	"bufio"
	"encoding/gob"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/database64128/domaincheck-go/bytestrings"
	"github.com/database64128/domaincheck-go/mmap"
)

const (
	capacityHintPrefix    = "# domaincheck domain set capacity hint "
	capacityHintPrefixLen = len(capacityHintPrefix)
	capacityHintSuffix    = "DCDS"
)

const (
	suffixPrefix    = "suffix:"
	suffixPrefixLen = len(suffixPrefix)
)

// Rule prefixes of domain set files that have no subtree meaning.
var unsupportedRulePrefixes = [...]string{"domain:", "keyword:", "regexp:"}

// rootLine is how the root domain is written in text files,
// where empty lines are skipped.
const rootLine = "."

var (
	errEmptyFile        = errors.New("empty file")
	errNotRepresentable = errors.New("domain cannot be written as a line")
)

// Config is the configuration for a domain set file.
type Config struct {
	Name string `json:"name"`
	Type string `json:"type"`
	Path string `json:"path"`
}

// Domains loads the domains from the domain set file.
func (dsc Config) Domains() ([]Domain, error) {
	data, close, err := mmap.ReadFile[string](dsc.Path)
	if err != nil {
		return nil, fmt.Errorf("failed to load domain set %s: %w", dsc.Name, err)
	}
	defer close()

	var domains []Domain

	switch dsc.Type {
	case "text", "":
		domains, err = DomainsFromText(data)
	case "gob":
		var x *Index
		x, err = IndexFromGob(strings.NewReader(data))
		if err == nil {
			domains = x.domains
		}
	default:
		err = fmt.Errorf("invalid domain set type: %s", dsc.Type)
	}

	if err != nil {
		return nil, fmt.Errorf("failed to load domain set %s: %w", dsc.Name, err)
	}
	return domains, nil
}

// Index loads the domain set file and builds an index from it.
func (dsc Config) Index() (*Index, error) {
	domains, err := dsc.Domains()
	if err != nil {
		return nil, err
	}
	return NewIndex(domains), nil
}

// DomainsFromText parses the text content of a domain set file.
//
// Each non-empty line that does not start with '#' is a domain,
// optionally prefixed with "suffix:". The returned domains do not reference text.
func DomainsFromText(text string) ([]Domain, error) {
	line, rest := bytestrings.NextNonEmptyLine(text)

	capacity, found, err := ParseCapacityHint(line)
	if err != nil {
		return nil, err
	}
	if found {
		line, rest = bytestrings.NextNonEmptyLine(rest)
	}
	if len(line) == 0 && !found {
		return nil, errEmptyFile
	}

	domains := make([]Domain, 0, capacity)

	for ; len(line) != 0; line, rest = bytestrings.NextNonEmptyLine(rest) {
		if line[0] == '#' {
			continue
		}

		if strings.HasPrefix(line, suffixPrefix) {
			line = line[suffixPrefixLen:]
		} else {
			for _, p := range unsupportedRulePrefixes {
				if strings.HasPrefix(line, p) {
					return nil, fmt.Errorf("unsupported rule: %s", line)
				}
			}
		}

		domains = append(domains, Parse(line))
	}

	return domains, nil
}

// IndexFromText parses the text content of a domain set file and builds an index from it.
func IndexFromText(text string) (*Index, error) {
	domains, err := DomainsFromText(text)
	if err != nil {
		return nil, err
	}
	return NewIndex(domains), nil
}

// ParseCapacityHint parses the optional capacity hint line at the start of a domain set file.
func ParseCapacityHint(line string) (int, bool, error) {
	found := len(line) > capacityHintPrefixLen && line[:capacityHintPrefixLen] == capacityHintPrefix
	if !found {
		return 0, false, nil
	}

	h := line[capacityHintPrefixLen:]
	delimiterIndex := strings.IndexByte(h, ' ')
	if delimiterIndex == -1 {
		return 0, found, fmt.Errorf("bad capacity hint: %s", line)
	}

	c, err := strconv.Atoi(h[:delimiterIndex])
	if err != nil {
		return 0, found, fmt.Errorf("bad capacity hint: %s: %w", line, err)
	}
	if c < 0 {
		return 0, found, fmt.Errorf("bad capacity hint: %s: capacity cannot be negative", line)
	}

	if h[delimiterIndex+1:] != capacityHintSuffix {
		return 0, found, fmt.Errorf("bad capacity hint: %s: expected suffix '%s'", line, capacityHintSuffix)
	}

	return c, found, nil
}

// WriteText writes the normalized domains in the text format, with a capacity hint.
func (x *Index) WriteText(w io.Writer) error {
	bw := bufio.NewWriter(w)
	bw.WriteString(capacityHintPrefix)
	bw.WriteString(strconv.Itoa(len(x.domains)))
	bw.WriteByte(' ')
	bw.WriteString(capacityHintSuffix)
	bw.WriteByte('\n')

	for _, d := range x.domains {
		line, err := textLine(d)
		if err != nil {
			return err
		}
		bw.WriteString(line)
		bw.WriteByte('\n')
	}

	return bw.Flush()
}

// textLine returns the line that [DomainsFromText] parses back into d.
// Lines that would be read as comments or rules get a "suffix:" prefix.
func textLine(d Domain) (string, error) {
	if d.IsRoot() {
		return rootLine, nil
	}

	s := d.String()
	if strings.IndexByte(s, '\n') != -1 || s[len(s)-1] == '\r' {
		return "", fmt.Errorf("%w: %q", errNotRepresentable, s)
	}

	if s[0] == '#' || strings.HasPrefix(s, suffixPrefix) {
		return suffixPrefix + s, nil
	}
	for _, p := range unsupportedRulePrefixes {
		if strings.HasPrefix(s, p) {
			return suffixPrefix + s, nil
		}
	}
	return s, nil
}

// indexGob is the index's gob serialization structure.
type indexGob struct {
	Domains []string
}

// WriteGob writes the normalized domains in the gob format.
func (x *Index) WriteGob(w io.Writer) error {
	ig := indexGob{
		Domains: make([]string, len(x.domains)),
	}
	for i, d := range x.domains {
		ig.Domains[i] = d.String()
	}
	return gob.NewEncoder(w).Encode(ig)
}

// IndexFromGob reads an index in the gob format.
// The domains are normalized again, so the input does not have to come from [Index.WriteGob].
func IndexFromGob(r io.Reader) (*Index, error) {
	var ig indexGob
	if err := gob.NewDecoder(r).Decode(&ig); err != nil {
		return nil, err
	}
	return NewIndexFromStrings(ig.Domains), nil
}
