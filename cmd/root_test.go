package cmd

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/jcdickinson/kbpress/internal/config"
	"github.com/jcdickinson/kbpress/internal/markdown"
)

func TestGeneratorOptions_DefaultHostResolvesLinks(t *testing.T) {
	p := filepath.Join(t.TempDir(), "config.yml")
	if err := os.WriteFile(p, []byte("token: x\nnamespaces: [{target: grp/book, toc: false}]\n"), 0644); err != nil {
		t.Fatal(err)
	}
	cfg, err := config.Load(p)
	if err != nil {
		t.Fatal(err)
	}

	opts := generatorOptions(cfg)
	if len(opts.LinkHosts) != 1 || opts.LinkHosts[0] != "www.yuque.com" {
		t.Fatalf("link hosts = %v", opts.LinkHosts)
	}
	if len(opts.Namespaces) != 1 || opts.Namespaces[0].TOC {
		t.Errorf("namespaces = %+v", opts.Namespaces)
	}

	pass := &markdown.LinkPass{
		Index:      map[string]string{"abc": "docs/book/foo.md"},
		OutputRoot: opts.Output,
		Hosts:      opts.LinkHosts,
	}
	tree := markdown.Parse("[x](https://www.yuque.com/grp/book/abc)")
	err = tree.Walk(tree.Root(), func(id markdown.NodeID) error {
		return pass.Visit(context.Background(), tree, id)
	})
	if err != nil {
		t.Fatal(err)
	}
	if got := strings.TrimSpace(markdown.Render(tree)); got != "[x](/book/foo.md)" {
		t.Errorf("rendered = %q", got)
	}
}
