package sidebar

import (
	"encoding/json"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/jcdickinson/kbpress/internal/frontmatter"
)

var discard = slog.New(slog.NewTextHandler(io.Discard, nil))

func writeDoc(t *testing.T, path string, fm frontmatter.Frontmatter, body string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte(fm.String()+body), 0644); err != nil {
		t.Fatal(err)
	}
}

func texts(items []Item) []string {
	out := make([]string, len(items))
	for i, it := range items {
		out[i] = it.Text
	}
	return out
}

func TestBuild_SortsByOrder(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	writeDoc(t, filepath.Join(root, "ns", "c.md"), frontmatter.Frontmatter{Sidebar: "Three", Order: 3}, "")
	writeDoc(t, filepath.Join(root, "ns", "a.md"), frontmatter.Frontmatter{Sidebar: "One", Order: 1}, "")
	writeDoc(t, filepath.Join(root, "ns", "b.md"), frontmatter.Frontmatter{Sidebar: "Two", Order: 2}, "")
	writeDoc(t, filepath.Join(root, "ns", "index.md"), frontmatter.Frontmatter{Sidebar: "Landing"}, "")

	sb, err := Build(root, discard)
	if err != nil {
		t.Fatal(err)
	}
	items := sb["/ns/"]
	got := texts(items)
	if len(got) != 3 || got[0] != "One" || got[1] != "Two" || got[2] != "Three" {
		t.Errorf("order = %v, want [One Two Three]", got)
	}
	if items[0].Link != "/ns/a.html" {
		t.Errorf("link = %q, want /ns/a.html", items[0].Link)
	}
}

func TestBuild_NestedDirectories(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	writeDoc(t, filepath.Join(root, "Guide", "index.md"), frontmatter.Frontmatter{Sidebar: "Guide"}, "")
	writeDoc(t, filepath.Join(root, "Guide", "Setup", "index.md"),
		frontmatter.Frontmatter{Sidebar: "Setup", Order: 2, HaveContent: frontmatter.Ptr(false)}, "")
	writeDoc(t, filepath.Join(root, "Guide", "Setup", "Install.md"), frontmatter.Frontmatter{Sidebar: "Install", Order: 0}, "")
	writeDoc(t, filepath.Join(root, "Guide", "intro.md"), frontmatter.Frontmatter{Sidebar: "Intro", Order: 1}, "")

	sb, err := Build(root, discard)
	if err != nil {
		t.Fatal(err)
	}
	items, ok := sb["/guide/"]
	if !ok {
		t.Fatalf("missing /guide/ key in %v", sb)
	}
	if len(items) != 2 || items[0].Text != "Intro" || items[1].Text != "Setup" {
		t.Fatalf("items = %v", texts(items))
	}
	dir := items[1]
	if dir.Link != "/guide/setup/" {
		t.Errorf("dir link = %q", dir.Link)
	}
	if dir.Collapsed == nil || *dir.Collapsed {
		t.Error("directories should be expanded")
	}
	if len(dir.Items) != 1 || dir.Items[0].Link != "/guide/setup/install.html" {
		t.Errorf("children = %+v", dir.Items)
	}
}

func TestBuild_SkipsHiddenAndPrivate(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	writeDoc(t, filepath.Join(root, ".vitepress", "x.md"), frontmatter.Frontmatter{}, "")
	writeDoc(t, filepath.Join(root, "_drafts", "x.md"), frontmatter.Frontmatter{}, "")
	writeDoc(t, filepath.Join(root, "ns", "x.md"), frontmatter.Frontmatter{Sidebar: "X"}, "")
	if err := os.WriteFile(filepath.Join(root, "nav.json"), []byte("[]"), 0644); err != nil {
		t.Fatal(err)
	}

	sb, err := Build(root, discard)
	if err != nil {
		t.Fatal(err)
	}
	if len(sb) != 1 {
		t.Errorf("got keys %v, want only /ns/", sb)
	}
}

func TestBuild_LabelFallbacks(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	writeDoc(t, filepath.Join(root, "ns", "a.md"), frontmatter.Frontmatter{Order: 1}, "# From *Heading*\n\ntext\n")
	if err := os.WriteFile(filepath.Join(root, "ns", "plain.md"), []byte("no header\n"), 0644); err != nil {
		t.Fatal(err)
	}

	sb, err := Build(root, discard)
	if err != nil {
		t.Fatal(err)
	}
	got := texts(sb["/ns/"])
	if len(got) != 2 || got[0] != "plain" || got[1] != "From Heading" {
		t.Errorf("labels = %v", got)
	}
}

func TestWalk_VanishedDirectory(t *testing.T) {
	t.Parallel()

	items, err := walk(filepath.Join(t.TempDir(), "gone"), "/gone", discard)
	if err != nil {
		t.Fatalf("walk on a removed directory: %v", err)
	}
	if len(items) != 0 {
		t.Errorf("items = %+v", items)
	}
}

func TestFirstHeading(t *testing.T) {
	t.Parallel()

	tests := []struct{ src, want string }{
		{"# Title\n", "Title"},
		{"text\n\n## Second `code`\n", "Second code"},
		{"Setext\n======\n", "Setext"},
		{"no heading\n", ""},
	}
	for _, tt := range tests {
		if got := FirstHeading([]byte(tt.src)); got != tt.want {
			t.Errorf("FirstHeading(%q) = %q, want %q", tt.src, got, tt.want)
		}
	}
}

func TestWriteFile_OmitsOrder(t *testing.T) {
	t.Parallel()

	p := filepath.Join(t.TempDir(), "sidebar.json")
	if err := WriteFile(p, Sidebar{"/ns/": {{Text: "A", Link: "/ns/a.html", Order: 9}}}); err != nil {
		t.Fatal(err)
	}
	data, err := os.ReadFile(p)
	if err != nil {
		t.Fatal(err)
	}
	var got map[string][]map[string]any
	if err := json.Unmarshal(data, &got); err != nil {
		t.Fatal(err)
	}
	item := got["/ns/"][0]
	if _, ok := item["order"]; ok {
		t.Errorf("order should not be serialized: %s", data)
	}
	if item["text"] != "A" {
		t.Errorf("text = %v", item["text"])
	}
}
