// Package sidebar rebuilds the navigation tree from the generated files.
package sidebar

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/jcdickinson/kbpress/internal/frontmatter"
	"github.com/jcdickinson/kbpress/internal/fsutil"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/text"
)

// Item is one entry of the sidebar. Order only drives sorting.
type Item struct {
	Text      string `json:"text"`
	Link      string `json:"link"`
	Items     []Item `json:"items,omitempty"`
	Collapsed *bool  `json:"collapsed,omitempty"`
	Order     int    `json:"-"`
}

// Sidebar maps a namespace link such as "/ns/" to its items.
type Sidebar map[string][]Item

// Build walks every top-level directory of root, skipping names starting
// with "." or "_", and returns the sidebar of each.
func Build(root string, log *slog.Logger) (Sidebar, error) {
	if log == nil {
		log = slog.Default()
	}
	entries, err := os.ReadDir(root)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", root, err)
	}

	out := make(Sidebar)
	for _, e := range entries {
		name := e.Name()
		if !e.IsDir() || strings.HasPrefix(name, ".") || strings.HasPrefix(name, "_") {
			continue
		}
		dir := filepath.Join(root, name)
		items, err := walk(dir, "/"+name, log)
		if err != nil {
			return nil, err
		}
		if _, err := os.Stat(dir); errors.Is(err, fs.ErrNotExist) {
			log.Debug("namespace removed while building sidebar", "dir", dir)
			continue
		}
		out[strings.ToLower("/"+name+"/")] = items
	}
	return out, nil
}

// walk treats a directory that vanished underneath it as empty, since a
// namespace may be regenerated while another one rebuilds the sidebar.
func walk(dir, base string, log *slog.Logger) ([]Item, error) {
	entries, err := os.ReadDir(dir)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", dir, err)
	}

	var items []Item
	for _, e := range entries {
		name := e.Name()
		if strings.HasPrefix(name, "index") || strings.HasPrefix(name, ".") {
			continue
		}
		p := filepath.Join(dir, name)

		if e.IsDir() {
			fm, body := readMeta(filepath.Join(p, "index.md"), log)
			children, err := walk(p, base+"/"+name, log)
			if err != nil {
				return nil, err
			}
			collapsed := false
			items = append(items, Item{
				Text:      label(fm, body, name),
				Link:      strings.ToLower(base + "/" + name + "/"),
				Items:     children,
				Collapsed: &collapsed,
				Order:     fm.Order,
			})
			continue
		}

		ext := filepath.Ext(name)
		if !strings.EqualFold(ext, ".md") {
			continue
		}
		stem := strings.TrimSuffix(name, ext)
		fm, body := readMeta(p, log)
		items = append(items, Item{
			Text:  label(fm, body, stem),
			Link:  strings.ToLower(base + "/" + stem + ".html"),
			Order: fm.Order,
		})
	}

	Sort(items)
	return items, nil
}

// Sort orders items by Order, keeping directory order for ties.
func Sort(items []Item) {
	sort.SliceStable(items, func(i, j int) bool {
		return items[i].Order < items[j].Order
	})
}

func readMeta(path string, log *slog.Logger) (frontmatter.Frontmatter, string) {
	fm, body, err := frontmatter.ReadFile(path)
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		log.Warn("reading frontmatter", "path", path, "error", err)
	}
	return fm, body
}

func label(fm frontmatter.Frontmatter, body, fallback string) string {
	if fm.Sidebar != "" {
		return fm.Sidebar
	}
	if h := FirstHeading([]byte(body)); h != "" {
		return h
	}
	return fallback
}

// FirstHeading returns the text of the first heading in a markdown body.
func FirstHeading(src []byte) string {
	doc := goldmark.DefaultParser().Parse(text.NewReader(src))

	var b strings.Builder
	ast.Walk(doc, func(n ast.Node, entering bool) (ast.WalkStatus, error) {
		if !entering || n.Kind() != ast.KindHeading {
			return ast.WalkContinue, nil
		}
		ast.Walk(n, func(c ast.Node, entering bool) (ast.WalkStatus, error) {
			if !entering {
				return ast.WalkContinue, nil
			}
			switch c := c.(type) {
			case *ast.Text:
				b.Write(c.Segment.Value(src))
				if c.SoftLineBreak() {
					b.WriteByte(' ')
				}
			case *ast.String:
				b.Write(c.Value)
			}
			return ast.WalkContinue, nil
		})
		return ast.WalkStop, nil
	})
	return strings.TrimSpace(b.String())
}

// WriteFile writes the sidebar as indented JSON.
func WriteFile(path string, s Sidebar) error {
	data, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding sidebar: %w", err)
	}
	return fsutil.WriteFile(path, append(data, '\n'))
}
