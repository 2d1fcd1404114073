// List converter takes a forbidden domain list in v2fly/dlc, plaintext or gob format,
// and converts it to a normalized list in plaintext or gob format.

package main

import (
	"encoding/hex"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/database64128/domaincheck-go/bytestrings"
	"github.com/database64128/domaincheck-go/domainset"
	"github.com/database64128/domaincheck-go/mmap"
)

var (
	inDlc           = flag.String("inDlc", "", "Path to input domain list file in v2fly/dlc format.")
	inText          = flag.String("inText", "", "Path to input domain list file in plaintext format.")
	inGob           = flag.String("inGob", "", "Path to input domain list file in gob format.")
	outText         = flag.String("outText", "", "Path to output domain list file in plaintext format.")
	outGob          = flag.String("outGob", "", "Path to output domain list file in gob format.")
	tag             = flag.String("tag", "", "Select lines with the specified tag. If empty, select all lines. Only applicable to v2fly/dlc format.")
	skipUnsupported = flag.Bool("skipUnsupported", false, "Skip full, keyword, regexp and include rules instead of failing. Only applicable to v2fly/dlc format.")
)

func main() {
	flag.Parse()

	var (
		inCount int
		inPath  string
		inFunc  func(string) ([]domainset.Domain, error)
	)

	if *inDlc != "" {
		inCount++
		inPath = *inDlc
		inFunc = func(s string) ([]domainset.Domain, error) {
			domains, skipped, err := DomainsFromDlc(s, *tag, *skipUnsupported)
			if skipped > 0 {
				fmt.Fprintf(os.Stderr, "Skipped %d unsupported rules.\n", skipped)
			}
			return domains, err
		}
	}

	if *inText != "" {
		inCount++
		inPath = *inText
		inFunc = domainset.DomainsFromText
	}

	if *inGob != "" {
		inCount++
		inPath = *inGob
		inFunc = func(s string) ([]domainset.Domain, error) {
			x, err := domainset.IndexFromGob(strings.NewReader(s))
			if err != nil {
				return nil, err
			}
			return x.Domains(), nil
		}
	}

	if inCount != 1 {
		fmt.Fprintln(os.Stderr, "Exactly one of -inDlc, -inText, -inGob must be specified.")
		flag.Usage()
		os.Exit(1)
	}

	if *outText == "" && *outGob == "" {
		fmt.Fprintln(os.Stderr, "Specify output file paths with -outText and/or -outGob.")
		flag.Usage()
		os.Exit(1)
	}

	if err := convert(inPath, inFunc, *outText, *outGob); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// convert reads and normalizes the domain list at inPath,
// then writes it to the non-empty output paths.
func convert(inPath string, inFunc func(string) ([]domainset.Domain, error), outText, outGob string) error {
	data, close, err := mmap.ReadFile[string](inPath)
	if err != nil {
		return fmt.Errorf("failed to read input file: %w", err)
	}
	defer close()

	domains, err := inFunc(data)
	if err != nil {
		return fmt.Errorf("failed to parse input file: %w", err)
	}

	x := domainset.NewIndex(domains)
	fingerprint := x.Fingerprint()
	fmt.Printf("Read %d domains, kept %d after normalization.\nFingerprint: %s\n", len(domains), x.Len(), hex.EncodeToString(fingerprint[:]))

	if outText != "" {
		if err = writeFile(outText, x.WriteText); err != nil {
			return err
		}
	}

	if outGob != "" {
		if err = writeFile(outGob, x.WriteGob); err != nil {
			return err
		}
	}

	return nil
}

func writeFile(name string, write func(io.Writer) error) error {
	fout, err := os.Create(name)
	if err != nil {
		return fmt.Errorf("failed to create output file: %w", err)
	}
	defer fout.Close()

	if err = write(fout); err != nil {
		return fmt.Errorf("failed to write output file: %w", err)
	}
	return fout.Close()
}

// DomainsFromDlc parses the domain rules of a v2fly/dlc list.
// Only "domain:" rules and bare domains cover subdomains, so the other rule types
// are rejected, or skipped and counted if skipUnsupported is true.
func DomainsFromDlc(text, tag string, skipUnsupported bool) (domains []domainset.Domain, skipped int, err error) {
	const (
		domainPrefix    = "full:"
		suffixPrefix    = "domain:"
		keywordPrefix   = "keyword:"
		regexpPrefix    = "regexp:"
		includePrefix   = "include:"
		suffixPrefixLen = len(suffixPrefix)
	)

	var line string

	for {
		line, text = bytestrings.NextNonEmptyLine(text)
		if len(line) == 0 {
			break
		}

		if line[0] == '#' {
			continue
		}

		rule, lineTag, hasTag := strings.Cut(line, "@")
		if tag != "" && (!hasTag || lineTag != tag) {
			continue
		}
		rule = strings.TrimRight(rule, " \t")

		switch {
		case strings.HasPrefix(rule, suffixPrefix):
			rule = rule[suffixPrefixLen:]
		case strings.HasPrefix(rule, domainPrefix),
			strings.HasPrefix(rule, keywordPrefix),
			strings.HasPrefix(rule, regexpPrefix),
			strings.HasPrefix(rule, includePrefix):
			if !skipUnsupported {
				return nil, skipped, fmt.Errorf("unsupported rule: %s", line)
			}
			skipped++
			continue
		case strings.IndexByte(rule, ':') != -1:
			return nil, skipped, fmt.Errorf("invalid line: %s", line)
		}

		if len(rule) == 0 {
			return nil, skipped, fmt.Errorf("missing domain: %s", line)
		}

		domains = append(domains, domainset.Parse(rule))
	}

	return domains, skipped, nil
}
