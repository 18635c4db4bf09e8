// Package toc maps a knowledge-base outline onto a nested file layout.
package toc

import (
	"path"

	"github.com/jcdickinson/kbpress/internal/slug"
)

type Kind int

const (
	Doc Kind = iota
	Title
	Link
)

func (k Kind) String() string {
	switch k {
	case Doc:
		return "DOC"
	case Title:
		return "TITLE"
	case Link:
		return "LINK"
	}
	return "UNKNOWN"
}

// ParseKind maps the outline type names used by the API onto a Kind.
func ParseKind(s string) Kind {
	switch s {
	case "DOC", "doc":
		return Doc
	case "TITLE", "title":
		return Title
	}
	return Link
}

// Entry is one row of a namespace outline, in display order.
type Entry struct {
	Kind      Kind
	Level     int
	Title     string
	UUID      string
	ChildUUID string // non-empty when the entry opens a nested level
	DocID     int
	URL       string // slug other documents use to link here
}

// OpensSubtree reports whether the entry has children.
func (e Entry) OpensSubtree() bool {
	return e.ChildUUID != ""
}

// ResolvedPath pairs an outline entry with the file it is written to.
// Title entries resolve to a directory; Doc entries to a markdown file.
type ResolvedPath struct {
	Path  string
	Entry Entry
	Order int
}

// IsDir reports whether Path names a directory rather than a file.
func (r ResolvedPath) IsDir() bool {
	return r.Entry.Kind == Title
}

// Target is the file written for the entry. Directories hold an index.md.
func (r ResolvedPath) Target() string {
	if r.IsDir() {
		return path.Join(r.Path, "index.md")
	}
	return r.Path
}

// DropRoot discards the synthetic first entry that stands for the namespace
// itself. The remaining entries are returned with their levels untouched.
func DropRoot(entries []Entry) []Entry {
	if len(entries) == 0 {
		return entries
	}
	return entries[1:]
}

// Resolve walks entries in order and assigns each a slash-separated path
// under root. The directory stack starts as [root]; an entry at a lower
// level pops back to its level, and an entry with children pushes its own
// slug before its path is emitted. Link entries produce no path.
func Resolve(root string, entries []Entry) []ResolvedPath {
	stack := []string{root}
	level := 0

	out := make([]ResolvedPath, 0, len(entries))
	for i, e := range entries {
		if e.Kind == Link {
			continue
		}

		for e.Level < level && len(stack) > 1 {
			stack = stack[:len(stack)-1]
			level--
		}

		if e.OpensSubtree() {
			stack = append(stack, slug.Make(e.Title))
			level++
		}

		dir := path.Join(stack...)
		var p string
		switch {
		case e.Kind == Title:
			p = dir
		case e.OpensSubtree():
			p = path.Join(dir, "index.md")
		default:
			p = path.Join(dir, slug.Make(e.Title)+".md")
		}

		out = append(out, ResolvedPath{Path: p, Entry: e, Order: i})
	}
	return out
}

// Flat assigns every entry a file directly under root, for namespaces that
// are published without an outline.
func Flat(root string, entries []Entry) []ResolvedPath {
	out := make([]ResolvedPath, 0, len(entries))
	for i, e := range entries {
		if e.Kind == Link {
			continue
		}
		e.Kind = Doc
		e.ChildUUID = ""
		out = append(out, ResolvedPath{
			Path:  path.Join(root, slug.Make(e.Title)+".md"),
			Entry: e,
			Order: i,
		})
	}
	return out
}

// Dedupe drops every resolved path whose target is claimed again by a later
// entry, so each file is written exactly once. The dropped entries are
// returned separately so the caller can report them.
func Dedupe(paths []ResolvedPath) (kept, dropped []ResolvedPath) {
	last := make(map[string]int, len(paths))
	for i, p := range paths {
		last[p.Target()] = i
	}
	kept = make([]ResolvedPath, 0, len(paths))
	for i, p := range paths {
		if last[p.Target()] != i {
			dropped = append(dropped, p)
			continue
		}
		kept = append(kept, p)
	}
	return kept, dropped
}
