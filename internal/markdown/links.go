package markdown

import (
	"context"
	"log/slog"
	"net/url"
	"path"
	"strings"
)

// LinkPass points links at other documents of the same namespace to their
// generated files. The last path segment of a link is looked up in Index,
// which maps document slugs to output paths; misses are left untouched.
type LinkPass struct {
	Index map[string]string

	// OutputRoot is stripped from indexed paths to make them site-relative.
	OutputRoot string

	// Hosts restricts resolution to links on these hosts, given either as
	// bare host names or as base URLs. Relative links always qualify. Empty
	// means any host.
	Hosts []string

	Log *slog.Logger
}

func (p *LinkPass) Name() string { return "links" }

func (p *LinkPass) Visit(_ context.Context, t *Tree, id NodeID) error {
	v := t.Value(id)
	if v.Kind != KindLink || len(p.Index) == 0 {
		return nil
	}

	u, err := url.Parse(v.Destination)
	if err != nil {
		if p.Log != nil {
			p.Log.Debug("leaving unparseable link", "url", v.Destination, "error", err)
		}
		return nil
	}
	if u.Scheme != "" && u.Scheme != "http" && u.Scheme != "https" {
		return nil
	}
	if u.Host != "" && !p.hostAllowed(u.Hostname()) {
		return nil
	}

	key := path.Base(strings.TrimRight(u.Path, "/"))
	if key == "." || key == "/" || key == "" {
		return nil
	}
	target, ok := p.Index[key]
	if !ok {
		return nil
	}

	dest := SitePath(p.OutputRoot, target)
	if u.Fragment != "" {
		dest += "#" + u.Fragment
	}

	children := t.DetachChildren(id)
	t.SetDestination(id, dest)
	return t.AppendChildren(id, children...)
}

func (p *LinkPass) hostAllowed(host string) bool {
	if len(p.Hosts) == 0 {
		return true
	}
	for _, h := range p.Hosts {
		if strings.EqualFold(HostName(h), host) {
			return true
		}
	}
	return false
}

// HostName returns the host part of a base URL such as
// "https://www.yuque.com/", or h itself when it carries no scheme.
func HostName(h string) string {
	h = strings.TrimSpace(h)
	if !strings.Contains(h, "://") {
		h = "//" + h
	}
	u, err := url.Parse(h)
	if err != nil || u.Hostname() == "" {
		return strings.TrimSuffix(h, "/")
	}
	return u.Hostname()
}

// SitePath turns an output file path into an absolute site path by
// removing the output root.
func SitePath(root, p string) string {
	p = path.Clean(p)
	root = path.Clean(root)
	if root != "." && root != "/" {
		if p == root {
			return "/"
		}
		p = strings.TrimPrefix(p, root+"/")
	}
	return "/" + strings.TrimPrefix(p, "/")
}
