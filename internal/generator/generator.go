// Package generator turns configured namespaces into the markdown tree,
// navigation and metadata files consumed by the static-site build.
package generator

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path"
	"path/filepath"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/jcdickinson/kbpress/internal/frontmatter"
	"github.com/jcdickinson/kbpress/internal/fsutil"
	"github.com/jcdickinson/kbpress/internal/markdown"
	"github.com/jcdickinson/kbpress/internal/metrics"
	"github.com/jcdickinson/kbpress/internal/schema"
	"github.com/jcdickinson/kbpress/internal/sidebar"
	"github.com/jcdickinson/kbpress/internal/slug"
	"github.com/jcdickinson/kbpress/internal/toc"
	"github.com/jcdickinson/kbpress/internal/yuque"
	"golang.org/x/sync/errgroup"
)

// ErrUnknownRepo is returned by Regenerate for repo ids that no previous
// generation produced.
var ErrUnknownRepo = errors.New("unknown repo")

const (
	NavFile     = "nav.json"
	SidebarFile = "sidebar.json"
	SchemaFile  = "schema.json"
)

// API is the part of the knowledge-base client the generator needs.
type API interface {
	Repo(ctx context.Context, namespace string) (*yuque.Repo, error)
	TOC(ctx context.Context, namespace string) ([]yuque.TocItem, error)
	Docs(ctx context.Context, namespace string) ([]yuque.DocSummary, error)
	Doc(ctx context.Context, namespace, ref string) (*yuque.Doc, error)
}

// Recorder stores the outcome of each namespace run.
type Recorder interface {
	StartRun(namespace string) (string, error)
	FinishRun(id string, documents, failures int, runErr error) error
	RecordFailure(runID, path string, failure error) error
}

// Namespace is one knowledge base to publish.
type Namespace struct {
	Target string // "group/book"
	Text   string // nav label, defaults to the repo name
	Nav    string // "" default group, "true" standalone, anything else a group label
	TOC    bool   // follow the outline; otherwise every document lands in the root
}

type Options struct {
	Output     string // markdown root, e.g. "docs"
	DataDir    string // where nav.json, sidebar.json and schema.json go
	Namespaces []Namespace

	EmbedProviders []string
	LinkHosts      []string
	SchemaKeys     schema.Keys
	NavDefaultText string

	// StrictImages fails a document when any of its images cannot be
	// inlined.
	StrictImages bool

	NamespaceLimit int
	DocumentLimit  int

	// MetadataAttempts bounds how often repo metadata is requested before
	// the namespace is given up; RetryDelay separates the attempts.
	MetadataAttempts int
	RetryDelay       time.Duration

	Fetcher  markdown.ImageFetcher
	Recorder Recorder
	Metrics  *metrics.Metrics
	Log      *slog.Logger
}

type repoInfo struct {
	ns  Namespace
	dir string
}

type Generator struct {
	api    API
	opts   Options
	log    *slog.Logger
	schema *schema.Table
	index  *PathIndex

	mu    sync.RWMutex
	repos map[int]repoInfo

	// outputMu serializes the shared sidebar.json and schema.json writes.
	outputMu sync.Mutex
}

func New(api API, opts Options) *Generator {
	if opts.Output == "" {
		opts.Output = "docs"
	}
	if opts.DataDir == "" {
		opts.DataDir = "."
	}
	if opts.EmbedProviders == nil {
		opts.EmbedProviders = markdown.DefaultEmbedProviders
	}
	if opts.NamespaceLimit <= 0 {
		opts.NamespaceLimit = 4
	}
	if opts.DocumentLimit <= 0 {
		opts.DocumentLimit = 8
	}
	if opts.MetadataAttempts <= 0 {
		opts.MetadataAttempts = 2
	}
	if opts.RetryDelay <= 0 {
		opts.RetryDelay = 3 * time.Second
	}
	log := opts.Log
	if log == nil {
		log = slog.Default()
	}
	return &Generator{
		api:    api,
		opts:   opts,
		log:    log,
		schema: schema.NewTable(),
		index:  NewPathIndex(),
		repos:  make(map[int]repoInfo),
	}
}

// Schema returns the table shared by every rewrite of this generator.
func (g *Generator) Schema() *schema.Table { return g.schema }

// Repos returns repo id -> namespace for everything generated so far.
func (g *Generator) Repos() map[int]string {
	g.mu.RLock()
	defer g.mu.RUnlock()
	out := make(map[int]string, len(g.repos))
	for id, info := range g.repos {
		out[id] = info.ns.Target
	}
	return out
}

// GenerateAll generates every configured namespace, then writes nav.json,
// sidebar.json and schema.json. Any namespace whose metadata cannot be
// fetched fails the whole run.
func (g *Generator) GenerateAll(ctx context.Context) error {
	items := make([]NavItem, len(g.opts.Namespaces))

	eg, ctx := errgroup.WithContext(ctx)
	eg.SetLimit(g.opts.NamespaceLimit)
	for i, ns := range g.opts.Namespaces {
		eg.Go(func() error {
			item, err := g.GenerateOne(ctx, ns)
			if err != nil {
				return fmt.Errorf("generating %s: %w", ns.Target, err)
			}
			items[i] = item
			return nil
		})
	}
	if err := eg.Wait(); err != nil {
		return err
	}

	nav := BuildNav(g.opts.Namespaces, items, g.opts.NavDefaultText)
	if err := writeJSON(filepath.Join(g.opts.DataDir, NavFile), nav); err != nil {
		return err
	}
	g.log.Info("wrote navigation", "items", len(nav))

	if err := g.WriteSidebar(); err != nil {
		return err
	}
	return g.WriteSchema()
}

// GenerateOne writes a single namespace and returns its nav entry.
// Document failures are logged and skipped; only metadata, outline and
// cancellation errors are returned.
func (g *Generator) GenerateOne(ctx context.Context, ns Namespace) (item NavItem, err error) {
	start := time.Now()
	log := g.log.With("namespace", ns.Target)

	var runID string
	var written, failed atomic.Int64
	if g.opts.Recorder != nil {
		if runID, err = g.opts.Recorder.StartRun(ns.Target); err != nil {
			log.Warn("could not record run", "error", err)
		}
	}
	defer func() {
		if runID != "" {
			if ferr := g.opts.Recorder.FinishRun(runID, int(written.Load()), int(failed.Load()), err); ferr != nil {
				log.Warn("could not finish run", "error", ferr)
			}
		}
		g.opts.Metrics.Generation(ns.Target, time.Since(start).Seconds())
	}()

	repo, err := retry(ctx, g.opts.MetadataAttempts, g.opts.RetryDelay, log, func() (*yuque.Repo, error) {
		return g.api.Repo(ctx, ns.Target)
	})
	if err != nil {
		return NavItem{}, fmt.Errorf("fetching repo metadata: %w", err)
	}

	dirName := slug.Make(repo.Name)
	dir := path.Join(filepath.ToSlash(g.opts.Output), dirName)

	paths, err := g.resolve(ctx, ns, dir, log)
	if err != nil {
		return NavItem{}, err
	}

	kept, dropped := toc.Dedupe(paths)
	for _, p := range dropped {
		log.Warn("skipping entry whose path is reused later", "title", p.Entry.Title, "path", p.Target())
	}

	idx := make(map[string]string)
	for _, p := range kept {
		if p.Entry.Kind == toc.Doc && p.Entry.URL != "" {
			idx[p.Entry.URL] = p.Target()
		}
	}
	g.index.Set(ns.Target, idx)

	rw := g.rewriter(g.index.Snapshot(ns.Target), log)

	eg, ectx := errgroup.WithContext(ctx)
	eg.SetLimit(g.opts.DocumentLimit)
	for _, p := range kept {
		eg.Go(func() error {
			if err := g.writeEntry(ectx, ns.Target, rw, p); err != nil {
				if ctx.Err() != nil {
					return ctx.Err()
				}
				failed.Add(1)
				g.opts.Metrics.Document(ns.Target, "failed")
				log.Warn("skipping document", "title", p.Entry.Title, "path", p.Target(), "error", err)
				if runID != "" {
					if rerr := g.opts.Recorder.RecordFailure(runID, p.Target(), err); rerr != nil {
						log.Warn("could not record failure", "error", rerr)
					}
				}
				return nil
			}
			written.Add(1)
			g.opts.Metrics.Document(ns.Target, "ok")
			return nil
		})
	}
	if err := eg.Wait(); err != nil {
		return NavItem{}, err
	}

	if err := writeFile(path.Join(dir, "index.md"), []byte("# "+repo.Name+"\n"+repo.Description)); err != nil {
		return NavItem{}, err
	}

	g.mu.Lock()
	g.repos[repo.ID] = repoInfo{ns: ns, dir: dir}
	g.mu.Unlock()

	log.Info("generated namespace", "dir", dir, "documents", written.Load(), "failures", failed.Load(), "elapsed", time.Since(start))

	text := ns.Text
	if text == "" {
		text = repo.Name
	}
	return NavItem{Text: text, Link: "/" + dirName + "/"}, nil
}

func (g *Generator) resolve(ctx context.Context, ns Namespace, dir string, log *slog.Logger) ([]toc.ResolvedPath, error) {
	if ns.TOC {
		items, err := g.api.TOC(ctx, ns.Target)
		if err != nil {
			return nil, fmt.Errorf("fetching outline: %w", err)
		}
		return toc.Resolve(dir, toc.DropRoot(yuque.Entries(items))), nil
	}

	docs, err := g.api.Docs(ctx, ns.Target)
	if err != nil {
		return nil, fmt.Errorf("listing documents: %w", err)
	}
	entries := make([]toc.Entry, len(docs))
	for i, d := range docs {
		entries[i] = toc.Entry{Kind: toc.Doc, Title: d.Title, DocID: d.ID, URL: d.Slug}
	}
	log.Debug("no outline, publishing flat", "documents", len(entries))
	return toc.Flat(dir, entries), nil
}

func (g *Generator) rewriter(idx map[string]string, log *slog.Logger) *markdown.Rewriter {
	return &markdown.Rewriter{
		Passes: []markdown.Pass{
			&markdown.EmbedPass{Providers: g.opts.EmbedProviders},
			&markdown.ImagePass{Fetcher: g.opts.Fetcher, Observe: g.opts.Metrics.Image},
			&markdown.LinkPass{
				Index:      idx,
				OutputRoot: filepath.ToSlash(g.opts.Output),
				Hosts:      g.opts.LinkHosts,
				Log:        log,
			},
		},
		Schema: g.schema,
		Strict: g.opts.StrictImages,
		Log:    log,
	}
}

func (g *Generator) writeEntry(ctx context.Context, namespace string, rw *markdown.Rewriter, p toc.ResolvedPath) error {
	e := p.Entry
	if p.IsDir() {
		fm := frontmatter.Frontmatter{
			Sidebar:       e.Title,
			Order:         p.Order,
			HaveContent:   frontmatter.Ptr(false),
			TitleTemplate: frontmatter.Ptr(e.Title),
		}
		return writeFile(p.Target(), []byte(fm.String()))
	}

	ref := e.URL
	if e.DocID != 0 {
		ref = strconv.Itoa(e.DocID)
	}
	doc, err := g.api.Doc(ctx, namespace, ref)
	if err != nil {
		return fmt.Errorf("fetching document: %w", err)
	}

	res, err := rw.Rewrite(ctx, p.Target(), doc.Body)
	if err != nil {
		return fmt.Errorf("rewriting document: %w", err)
	}

	var buf bytes.Buffer
	fm := frontmatter.Frontmatter{
		Sidebar:       doc.Title,
		Order:         p.Order,
		TitleTemplate: frontmatter.Ptr(doc.Title),
	}
	if _, err := fm.WriteTo(&buf); err != nil {
		return err
	}
	buf.WriteString("# " + doc.Title + "\n")
	buf.WriteString(res.Body)
	return writeFile(p.Target(), buf.Bytes())
}

// Regenerate rebuilds the namespace behind repoID from scratch and
// refreshes sidebar.json and schema.json. Callers must not run two
// regenerations of the same id at once.
func (g *Generator) Regenerate(ctx context.Context, repoID int) error {
	g.mu.RLock()
	info, ok := g.repos[repoID]
	g.mu.RUnlock()
	if !ok {
		return fmt.Errorf("repo %d: %w", repoID, ErrUnknownRepo)
	}

	log := g.log.With("namespace", info.ns.Target, "repo", repoID)
	log.Info("regenerating")

	if err := g.Clean(info.dir); err != nil {
		g.opts.Metrics.Regeneration("failed")
		return err
	}
	g.schema.DeletePrefix(info.dir)
	g.index.Delete(info.ns.Target)

	if _, err := g.GenerateOne(ctx, info.ns); err != nil {
		g.opts.Metrics.Regeneration("failed")
		return fmt.Errorf("regenerating %s: %w", info.ns.Target, err)
	}
	if err := g.WriteSidebar(); err != nil {
		g.opts.Metrics.Regeneration("failed")
		return err
	}
	if err := g.WriteSchema(); err != nil {
		g.opts.Metrics.Regeneration("failed")
		return err
	}
	g.opts.Metrics.Regeneration("ok")
	return nil
}

// Clean removes a generated namespace directory.
func (g *Generator) Clean(dir string) error {
	g.log.Warn("removing dir", "dir", dir)
	if err := os.RemoveAll(filepath.FromSlash(dir)); err != nil {
		return fmt.Errorf("removing %s: %w", dir, err)
	}
	return nil
}

// WriteSidebar rebuilds sidebar.json from the files under the output root.
func (g *Generator) WriteSidebar() error {
	g.outputMu.Lock()
	defer g.outputMu.Unlock()

	sb, err := sidebar.Build(g.opts.Output, g.log)
	if err != nil {
		return fmt.Errorf("building sidebar: %w", err)
	}
	if err := sidebar.WriteFile(filepath.Join(g.opts.DataDir, SidebarFile), sb); err != nil {
		return err
	}
	g.log.Info("wrote sidebar", "sections", len(sb))
	return nil
}

// WriteSchema folds the schema table into schema.json.
func (g *Generator) WriteSchema() error {
	g.outputMu.Lock()
	defer g.outputMu.Unlock()

	report := schema.Aggregate(g.schema, g.opts.SchemaKeys, g.log)
	if err := schema.WriteFile(filepath.Join(g.opts.DataDir, SchemaFile), report); err != nil {
		return err
	}
	g.log.Info("wrote schema", "intro", len(report.Intro), "features", len(report.Features))
	return nil
}

func writeFile(p string, data []byte) error {
	return fsutil.WriteFile(filepath.FromSlash(p), data)
}

// retry calls fn up to attempts times, waiting delay between failures.
func retry[T any](ctx context.Context, attempts int, delay time.Duration, log *slog.Logger, fn func() (T, error)) (T, error) {
	var zero T
	var lastErr error
	for attempt := range attempts {
		if attempt > 0 {
			log.Warn("retrying", "attempt", attempt+1, "after", delay, "error", lastErr)
			select {
			case <-time.After(delay):
			case <-ctx.Done():
				return zero, ctx.Err()
			}
		}
		v, err := fn()
		if err == nil {
			return v, nil
		}
		lastErr = err
		if ctx.Err() != nil {
			break
		}
	}
	return zero, lastErr
}
