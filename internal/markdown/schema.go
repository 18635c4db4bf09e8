package markdown

import (
	"regexp"
	"strings"

	"github.com/jcdickinson/kbpress/internal/schema"
)

const schemaDelimiter = "---"

// SplitSchema splits src at the first line consisting of exactly "---".
// The text before it is the body and the text after it the schema block.
// Without a delimiter the body is src unchanged and ok is false.
func SplitSchema(src string) (body, block string, ok bool) {
	lines := strings.Split(src, "\n")
	for i, line := range lines {
		if strings.TrimRight(line, "\r") == schemaDelimiter {
			return strings.Join(lines[:i], "\n"), strings.Join(lines[i+1:], "\n"), true
		}
	}
	return src, "", false
}

var (
	anchorLine = regexp.MustCompile(`^(<a\b[^>]*>\s*</a>\s*)+$`)
	anchorTag  = regexp.MustCompile(`<a\b[^>]*>\s*</a>`)
)

// ParseSchema reads a schema block line by line. A line starting with "##"
// opens a section named by the rest of the line. The next non-blank line
// that is not a bare anchor tag becomes the section's value and closes the
// section again, so each header captures at most one line. Lines outside
// an open section are ignored.
func ParseSchema(block string) schema.Sections {
	out := make(schema.Sections)
	key := ""
	for _, line := range strings.Split(block, "\n") {
		line = strings.TrimSpace(line)
		if line == "" || anchorLine.MatchString(line) {
			continue
		}
		if strings.HasPrefix(line, "##") {
			name := strings.TrimLeft(line, "#")
			key = strings.TrimSpace(anchorTag.ReplaceAllString(name, ""))
			continue
		}
		if key != "" {
			out[key] = append(out[key], line)
			key = ""
		}
	}
	return out
}
