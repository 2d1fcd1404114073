// Package prefixset loads IP prefix sets for checking queries that are IP addresses.
package prefixset

import (
	"fmt"
	"net/netip"
	"strings"

	"github.com/database64128/domaincheck-go/bytestrings"
	"github.com/database64128/domaincheck-go/mmap"
	"go4.org/netipx"
)

// Config is the configuration for a prefix set.
type Config struct {
	Name string `json:"name"`
	Path string `json:"path"`
}

// IPSet creates a prefix set from the configuration.
func (psc Config) IPSet() (*netipx.IPSet, error) {
	data, close, err := mmap.ReadFile[string](psc.Path)
	if err != nil {
		return nil, fmt.Errorf("failed to load prefix set %s: %w", psc.Name, err)
	}
	defer close()

	s, err := IPSetFromText(data)
	if err != nil {
		return nil, fmt.Errorf("failed to load prefix set %s: %w", psc.Name, err)
	}
	return s, nil
}

// IPSetFromText parses prefixes from the text and builds a prefix set.
// A line without a prefix length is a single address.
func IPSetFromText(text string) (*netipx.IPSet, error) {
	var (
		line string
		sb   netipx.IPSetBuilder
	)

	for {
		line, text = bytestrings.NextNonEmptyLine(text)
		if len(line) == 0 {
			break
		}

		if line[0] == '#' {
			continue
		}

		if strings.IndexByte(line, '/') == -1 {
			addr, err := netip.ParseAddr(line)
			if err != nil {
				return nil, err
			}
			sb.Add(addr.Unmap())
			continue
		}

		prefix, err := netip.ParsePrefix(line)
		if err != nil {
			return nil, err
		}

		sb.AddPrefix(prefix.Masked())
	}

	return sb.IPSet()
}

// IPSetToText returns the text representation of the prefix set.
func IPSetToText(s *netipx.IPSet) []byte {
	prefixes := s.Prefixes()
	b := make([]byte, 0, 20*len(prefixes))
	for _, prefix := range prefixes {
		b = prefix.AppendTo(b)
		b = append(b, '\n')
	}
	return b
}
