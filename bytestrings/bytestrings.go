// Package bytestrings provides line splitting for text held in memory,
// such as memory-mapped list files.
package bytestrings

import "strings"

// NextLine returns the next line without its line ending, the remaining text,
// and whether a line was found. A final line without a line ending is returned as is.
func NextLine(text string) (line, rest string, ok bool) {
	if len(text) == 0 {
		return "", "", false
	}
	lfIndex := strings.IndexByte(text, '\n')
	if lfIndex == -1 {
		line, rest = text, ""
	} else {
		line, rest = text[:lfIndex], text[lfIndex+1:]
	}
	if len(line) > 0 && line[len(line)-1] == '\r' {
		line = line[:len(line)-1]
	}
	return line, rest, true
}

// NextNonEmptyLine returns the next non-empty line and the remaining text.
// The line is empty when the text has no more non-empty lines.
func NextNonEmptyLine(text string) (string, string) {
	for {
		line, rest, ok := NextLine(text)
		if !ok {
			return "", ""
		}
		text = rest
		if len(line) != 0 {
			return line, text
		}
	}
}
