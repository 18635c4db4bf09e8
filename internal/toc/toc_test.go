package toc

import (
	"fmt"
	"path"
	"strings"
	"testing"

	"pgregory.net/rapid"
)

func paths(rs []ResolvedPath) []string {
	out := make([]string, len(rs))
	for i, r := range rs {
		out[i] = r.Path
	}
	return out
}

func TestResolve_RootedNamespace(t *testing.T) {
	t.Parallel()

	entries := DropRoot([]Entry{
		{Kind: Title, Level: 0, Title: "Root"},
		{Kind: Doc, Level: 1, Title: "Root", ChildUUID: "c1"},
		{Kind: Doc, Level: 1, Title: "Child"},
	})
	got := paths(Resolve("docs/root-ns", entries))
	want := []string{"docs/root-ns/root/index.md", "docs/root-ns/root/child.md"}
	if fmt.Sprint(got) != fmt.Sprint(want) {
		t.Errorf("got %v, want %v", got, want)
	}
}

func TestResolve_Nesting(t *testing.T) {
	t.Parallel()

	entries := []Entry{
		{Kind: Doc, Level: 0, Title: "Intro"},
		{Kind: Title, Level: 0, Title: "Guide", ChildUUID: "g"},
		{Kind: Doc, Level: 1, Title: "Install"},
		{Kind: Doc, Level: 1, Title: "Advanced Usage", ChildUUID: "a"},
		{Kind: Doc, Level: 2, Title: "Tuning"},
		{Kind: Link, Level: 2, Title: "External"},
		{Kind: Doc, Level: 1, Title: "FAQ"},
		{Kind: Doc, Level: 0, Title: "关于"},
	}
	got := Resolve("docs/ns", entries)
	want := []string{
		"docs/ns/intro.md",
		"docs/ns/guide",
		"docs/ns/guide/install.md",
		"docs/ns/guide/advanced-usage/index.md",
		"docs/ns/guide/advanced-usage/tuning.md",
		"docs/ns/guide/f-a-q.md",
		"docs/ns/guan-yu.md",
	}
	if fmt.Sprint(paths(got)) != fmt.Sprint(want) {
		t.Fatalf("got %v\nwant %v", paths(got), want)
	}

	if !got[1].IsDir() || got[1].Target() != "docs/ns/guide/index.md" {
		t.Errorf("title entry should resolve to a directory, got %+v", got[1])
	}
	// Order follows input position, links included.
	if got[6].Order != 7 {
		t.Errorf("last order = %d, want 7", got[6].Order)
	}
}

func TestResolve_PopsMultipleLevels(t *testing.T) {
	t.Parallel()

	entries := []Entry{
		{Kind: Doc, Level: 0, Title: "A", ChildUUID: "x"},
		{Kind: Doc, Level: 1, Title: "B", ChildUUID: "y"},
		{Kind: Doc, Level: 2, Title: "C"},
		{Kind: Doc, Level: 0, Title: "D"},
	}
	got := paths(Resolve("docs/ns", entries))
	if got[3] != "docs/ns/d.md" {
		t.Errorf("got %q, want docs/ns/d.md", got[3])
	}
}

func TestDropRoot_Empty(t *testing.T) {
	t.Parallel()
	if got := DropRoot(nil); len(got) != 0 {
		t.Errorf("got %v, want empty", got)
	}
}

func TestFlat(t *testing.T) {
	t.Parallel()

	got := Flat("docs/ns", []Entry{
		{Kind: Doc, Title: "One", ChildUUID: "ignored"},
		{Kind: Doc, Title: "Two"},
	})
	want := []string{"docs/ns/one.md", "docs/ns/two.md"}
	if fmt.Sprint(paths(got)) != fmt.Sprint(want) {
		t.Errorf("got %v, want %v", paths(got), want)
	}
	if got[0].Entry.OpensSubtree() {
		t.Error("flat entries should not open subtrees")
	}
}

func TestDedupe_LaterEntryWins(t *testing.T) {
	t.Parallel()

	resolved := Resolve("docs/ns", []Entry{
		{Kind: Doc, Level: 0, Title: "Setup", DocID: 1},
		{Kind: Doc, Level: 0, Title: "setup", DocID: 2},
		{Kind: Doc, Level: 0, Title: "Other", DocID: 3},
	})
	kept, dropped := Dedupe(resolved)
	if len(kept) != 2 || len(dropped) != 1 {
		t.Fatalf("kept %d dropped %d, want 2 and 1", len(kept), len(dropped))
	}
	if kept[0].Entry.DocID != 2 {
		t.Errorf("kept doc %d, want the later entry 2", kept[0].Entry.DocID)
	}
	if dropped[0].Entry.DocID != 1 {
		t.Errorf("dropped doc %d, want 1", dropped[0].Entry.DocID)
	}
}

func TestDedupe_TitleAndIndexCollide(t *testing.T) {
	t.Parallel()

	resolved := Resolve("docs/ns", []Entry{
		{Kind: Title, Level: 0, Title: "Part", ChildUUID: "p"},
		{Kind: Doc, Level: 1, Title: "Part", ChildUUID: "q"},
	})
	// Title -> docs/ns/part, Doc -> docs/ns/part/part/index.md: no collision.
	if kept, _ := Dedupe(resolved); len(kept) != 2 {
		t.Errorf("kept %d, want 2", len(kept))
	}
}

// node is a generated outline subtree.
type node struct {
	title    string
	children []*node
}

func genTree(t *rapid.T, depth int, counter *int) []*node {
	n := rapid.IntRange(0, 3).Draw(t, "width")
	out := make([]*node, n)
	for i := range out {
		*counter++
		nd := &node{title: fmt.Sprintf("n%d", *counter)}
		if depth < 4 {
			nd.children = genTree(t, depth+1, counter)
		}
		out[i] = nd
	}
	return out
}

type expected struct {
	entry Entry
	path  string
	dir   string
}

func flatten(nodes []*node, level int, dir string, out *[]expected) {
	for _, n := range nodes {
		e := Entry{Kind: Doc, Level: level, Title: n.title}
		if len(n.children) > 0 {
			e.ChildUUID = "u-" + n.title
			sub := path.Join(dir, n.title)
			*out = append(*out, expected{entry: e, path: path.Join(sub, "index.md"), dir: dir})
			flatten(n.children, level+1, sub, out)
			continue
		}
		*out = append(*out, expected{entry: e, path: path.Join(dir, n.title+".md"), dir: dir})
	}
}

func TestResolve_DepthMatchesLevel(t *testing.T) {
	t.Parallel()
	rapid.Check(t, func(t *rapid.T) {
		counter := 0
		tree := genTree(t, 0, &counter)

		var want []expected
		flatten(tree, 0, "docs/ns", &want)

		entries := make([]Entry, len(want))
		for i, w := range want {
			entries[i] = w.entry
		}

		got := Resolve("docs/ns", entries)
		if len(got) != len(want) {
			t.Fatalf("got %d paths, want %d", len(got), len(want))
		}
		for i, g := range got {
			if g.Path != want[i].path {
				t.Fatalf("entry %d (%s): got %q, want %q", i, g.Entry.Title, g.Path, want[i].path)
			}
			rel := strings.TrimPrefix(want[i].dir, "docs/ns")
			depth := strings.Count(rel, "/")
			if depth != g.Entry.Level {
				t.Fatalf("entry %d: parent depth %d, level %d", i, depth, g.Entry.Level)
			}
		}
	})
}
