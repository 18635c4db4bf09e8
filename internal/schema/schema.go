// Package schema collects the structured blocks found at the end of
// documents and folds them into a single report.
package schema

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/jcdickinson/kbpress/internal/fsutil"
)

// Sections maps a section name to the lines captured under it.
type Sections map[string][]string

// Table holds the sections of every document in a run, keyed by the
// document's output path. It is safe for concurrent use.
type Table struct {
	mu   sync.Mutex
	docs map[string]Sections
}

func NewTable() *Table {
	return &Table{docs: make(map[string]Sections)}
}

// Put records the sections for path, replacing any previous entry. Empty
// sections are ignored.
func (t *Table) Put(path string, s Sections) {
	clean := make(Sections, len(s))
	for k, v := range s {
		if len(v) > 0 {
			clean[k] = append([]string(nil), v...)
		}
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if len(clean) == 0 {
		delete(t.docs, path)
		return
	}
	t.docs[path] = clean
}

// DeletePrefix drops every document under the directory prefix.
func (t *Table) DeletePrefix(prefix string) int {
	prefix = strings.TrimSuffix(filepath.ToSlash(prefix), "/") + "/"
	t.mu.Lock()
	defer t.mu.Unlock()
	n := 0
	for p := range t.docs {
		if strings.HasPrefix(p, prefix) {
			delete(t.docs, p)
			n++
		}
	}
	return n
}

func (t *Table) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.docs)
}

// Snapshot returns a deep copy of the table.
func (t *Table) Snapshot() map[string]Sections {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make(map[string]Sections, len(t.docs))
	for p, s := range t.docs {
		cp := make(Sections, len(s))
		for k, v := range s {
			cp[k] = append([]string(nil), v...)
		}
		out[p] = cp
	}
	return out
}

// Keys names the two sections that are lifted into their own arrays.
type Keys struct {
	Intro    string
	Features string
}

var DefaultKeys = Keys{Intro: "首页介绍", Features: "首页特性"}

// Entry is one lifted value and the document it came from.
type Entry struct {
	Value string `json:"value"`
	Path  string `json:"path"`
}

type Report struct {
	Intro     []Entry             `json:"intro"`
	Features  []Entry             `json:"features"`
	Documents map[string]Sections `json:"documents,omitempty"`
}

// Aggregate folds the table into a report. Documents are visited in path
// order. Sections other than the two well-known ones are kept under
// Documents and logged as unused.
func Aggregate(t *Table, keys Keys, log *slog.Logger) Report {
	if keys.Intro == "" {
		keys.Intro = DefaultKeys.Intro
	}
	if keys.Features == "" {
		keys.Features = DefaultKeys.Features
	}

	docs := t.Snapshot()
	paths := make([]string, 0, len(docs))
	for p := range docs {
		paths = append(paths, p)
	}
	sort.Strings(paths)

	r := Report{Intro: []Entry{}, Features: []Entry{}}
	for _, p := range paths {
		s := docs[p]
		for _, v := range s[keys.Intro] {
			r.Intro = append(r.Intro, Entry{Value: v, Path: p})
		}
		for _, v := range s[keys.Features] {
			r.Features = append(r.Features, Entry{Value: v, Path: p})
		}
		delete(s, keys.Intro)
		delete(s, keys.Features)
		if len(s) == 0 {
			continue
		}

		unused := make([]string, 0, len(s))
		for k := range s {
			unused = append(unused, k)
		}
		sort.Strings(unused)
		if log != nil {
			log.Warn("unused schema sections", "path", p, "keys", unused)
		}
		if r.Documents == nil {
			r.Documents = make(map[string]Sections)
		}
		r.Documents[p] = s
	}
	return r
}

// WriteFile writes the report as indented JSON.
func WriteFile(path string, r Report) error {
	data, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding schema report: %w", err)
	}
	return fsutil.WriteFile(path, append(data, '\n'))
}
