package markdown

import (
	"context"
	"net/url"
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// DefaultEmbedProviders are the hosts whose links become iframes.
var DefaultEmbedProviders = []string{"codepen.io"}

// EmbedPass replaces links to embeddable widget hosts with an iframe. The
// link text is dropped.
type EmbedPass struct {
	Providers []string
}

func (p *EmbedPass) Name() string { return "embed" }

func (p *EmbedPass) Visit(_ context.Context, t *Tree, id NodeID) error {
	v := t.Value(id)
	if v.Kind != KindLink {
		return nil
	}
	u, err := url.Parse(v.Destination)
	if err != nil || !p.matches(u.Hostname()) {
		return nil
	}

	frame, err := IFrame(v.Destination)
	if err != nil {
		return err
	}
	t.Replace(id, Value{Kind: KindHTMLBlock, Literal: frame})
	return nil
}

func (p *EmbedPass) matches(host string) bool {
	host = strings.ToLower(host)
	if host == "" {
		return false
	}
	providers := p.Providers
	if len(providers) == 0 {
		providers = DefaultEmbedProviders
	}
	for _, provider := range providers {
		provider = strings.ToLower(provider)
		if host == provider || strings.HasSuffix(host, "."+provider) {
			return true
		}
	}
	return false
}

// IFrame renders the widget markup for src.
func IFrame(src string) (string, error) {
	n := &html.Node{
		Type:     html.ElementNode,
		DataAtom: atom.Iframe,
		Data:     "iframe",
		Attr: []html.Attribute{
			{Key: "height", Val: "300"},
			{Key: "style", Val: "width: 100%;"},
			{Key: "scrolling", Val: "no"},
			{Key: "title", Val: "Untitled"},
			{Key: "src", Val: src},
			{Key: "frameborder", Val: "no"},
			{Key: "loading", Val: "lazy"},
			{Key: "allowtransparency", Val: "true"},
			{Key: "allowfullscreen", Val: "true"},
		},
	}
	var b strings.Builder
	if err := html.Render(&b, n); err != nil {
		return "", err
	}
	return b.String(), nil
}
