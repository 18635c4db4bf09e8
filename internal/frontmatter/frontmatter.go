// Package frontmatter reads and writes the YAML header at the top of each
// generated markdown file.
package frontmatter

import (
	"bufio"
	"bytes"
	"fmt"
	"io"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

const delimiter = "---"

type Frontmatter struct {
	Title         *string `yaml:"title,omitempty"`
	TitleTemplate *string `yaml:"titleTemplate,omitempty"`
	Sidebar       string  `yaml:"sidebar"`
	Order         int     `yaml:"order"`
	Description   *string `yaml:"description,omitempty"`
	HaveContent   *bool   `yaml:"have_content,omitempty"`
}

// Content reports whether the file carries a body. Absent means true.
func (f Frontmatter) Content() bool {
	return f.HaveContent == nil || *f.HaveContent
}

// WriteTo writes the delimited header block.
func (f Frontmatter) WriteTo(w io.Writer) (int64, error) {
	data, err := yaml.Marshal(f)
	if err != nil {
		return 0, fmt.Errorf("encoding frontmatter: %w", err)
	}
	var buf bytes.Buffer
	buf.WriteString(delimiter + "\n")
	buf.Write(data)
	buf.WriteString(delimiter + "\n")
	return buf.WriteTo(w)
}

// String renders the header block.
func (f Frontmatter) String() string {
	var b strings.Builder
	f.WriteTo(&b)
	return b.String()
}

// Parse reads a header block from the start of r and returns it along with
// the remaining body. Input without a header yields a zero Frontmatter and
// the whole input as body. Only header lines are scanned; the body is read
// as is, so arbitrarily long lines such as inlined images are fine.
func Parse(r io.Reader) (Frontmatter, string, error) {
	var fm Frontmatter
	br := bufio.NewReader(r)

	first, err := br.ReadString('\n')
	if err != nil && err != io.EOF {
		return fm, "", fmt.Errorf("reading frontmatter: %w", err)
	}
	if !isDelimiter(first) {
		rest, err := io.ReadAll(br)
		if err != nil {
			return fm, "", fmt.Errorf("reading body: %w", err)
		}
		return fm, first + string(rest), nil
	}
	if err == io.EOF {
		return fm, "", fmt.Errorf("unterminated frontmatter block")
	}

	var header strings.Builder
	for {
		line, err := br.ReadString('\n')
		if isDelimiter(line) {
			break
		}
		if err == io.EOF {
			return fm, "", fmt.Errorf("unterminated frontmatter block")
		}
		if err != nil {
			return fm, "", fmt.Errorf("reading frontmatter: %w", err)
		}
		header.WriteString(strings.TrimRight(line, "\r\n"))
		header.WriteByte('\n')
	}

	body, err := io.ReadAll(br)
	if err != nil {
		return fm, "", fmt.Errorf("reading body: %w", err)
	}

	if header.Len() > 0 {
		if err := yaml.Unmarshal([]byte(header.String()), &fm); err != nil {
			return fm, "", fmt.Errorf("decoding frontmatter: %w", err)
		}
	}
	return fm, string(body), nil
}

func isDelimiter(line string) bool {
	return strings.TrimRight(line, " \r\n") == delimiter
}

// ReadFile parses the header of the file at path.
func ReadFile(path string) (Frontmatter, string, error) {
	f, err := os.Open(path)
	if err != nil {
		return Frontmatter{}, "", err
	}
	defer f.Close()
	return Parse(f)
}

// Ptr returns a pointer to v, for the optional fields.
func Ptr[T any](v T) *T {
	return &v
}
