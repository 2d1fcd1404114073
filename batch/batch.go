// Package batch implements the line-oriented batch protocol of the checker.
//
// The input is a count N1 on its own line followed by N1 forbidden domains,
// then a count N2 followed by N2 query domains, one per line.
// For each query, "Bad" or "Good" is written on its own line, in query order.
package batch

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/database64128/domaincheck-go/domainset"
)

var (
	// ErrInvalidCount is returned when a count line is not a non-negative integer.
	ErrInvalidCount = errors.New("invalid count")

	// ErrMissingLines is returned when the input ends before all announced lines are read.
	ErrMissingLines = errors.New("missing lines")
)

const (
	verdictBad  = "Bad\n"
	verdictGood = "Good\n"
)

// maxPreallocLines caps slice preallocation, so that a bogus count does not
// allocate memory the input cannot fill.
const maxPreallocLines = 1 << 16

// readLine reads one line without its line ending.
// A last line without a line ending is still a line.
// It returns [io.EOF] only when no bytes are left.
func readLine(br *bufio.Reader) (string, error) {
	line, err := br.ReadString('\n')
	if err != nil {
		if err != io.EOF || len(line) == 0 {
			return "", err
		}
	}
	line = strings.TrimSuffix(line, "\n")
	line = strings.TrimSuffix(line, "\r")
	return line, nil
}

// ReadCount reads a line holding a non-negative integer.
// Surrounding whitespace is ignored.
func ReadCount(br *bufio.Reader) (int, error) {
	line, err := readLine(br)
	if err != nil {
		if err == io.EOF {
			return 0, fmt.Errorf("%w: expected a count line", ErrMissingLines)
		}
		return 0, err
	}

	n, err := strconv.Atoi(strings.TrimSpace(line))
	if err != nil {
		return 0, fmt.Errorf("%w: %q", ErrInvalidCount, line)
	}
	if n < 0 {
		return 0, fmt.Errorf("%w: %d is negative", ErrInvalidCount, n)
	}
	return n, nil
}

// ReadDomains reads n lines of raw domain strings.
// Lines are kept verbatim except for the line ending, so an empty line is the root domain.
func ReadDomains(br *bufio.Reader, n int) ([]string, error) {
	domains := make([]string, 0, min(n, maxPreallocLines))
	for len(domains) < n {
		line, err := readLine(br)
		if err != nil {
			if err == io.EOF {
				return nil, fmt.Errorf("%w: read %d of %d lines", ErrMissingLines, len(domains), n)
			}
			return nil, err
		}
		domains = append(domains, line)
	}
	return domains, nil
}

// readSection reads a count line and the lines it announces.
func readSection(br *bufio.Reader, name string) ([]string, error) {
	n, err := ReadCount(br)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s count: %w", name, err)
	}
	lines, err := ReadDomains(br, n)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", name, err)
	}
	return lines, nil
}

// Summary reports what a batch run did.
type Summary struct {
	Forbidden int
	Indexed   int
	Queries   int
	Bad       int
}

// Run reads the forbidden domains and the queries from r,
// and writes one verdict per query to w.
//
// Input errors are detected before anything is written.
func Run(r io.Reader, w io.Writer) (Summary, error) {
	br := bufio.NewReader(r)

	forbidden, err := readSection(br, "forbidden domains")
	if err != nil {
		return Summary{}, err
	}
	x := domainset.NewIndexFromStrings(forbidden)

	queries, err := readSection(br, "queries")
	if err != nil {
		return Summary{}, err
	}

	s := Summary{
		Forbidden: len(forbidden),
		Indexed:   x.Len(),
		Queries:   len(queries),
	}
	s.Bad, err = Answer(x, queries, w)
	return s, err
}

// Answer writes "Bad" for each query matched by m and "Good" for the rest,
// one per line, and returns the number of "Bad" verdicts.
func Answer(m domainset.Matcher, queries []string, w io.Writer) (int, error) {
	bw := bufio.NewWriter(w)
	var bad int
	for _, q := range queries {
		if m.Match(q) {
			bad++
			bw.WriteString(verdictBad)
		} else {
			bw.WriteString(verdictGood)
		}
	}
	return bad, bw.Flush()
}
