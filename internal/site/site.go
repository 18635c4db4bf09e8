// Package site prepares and builds the static site around the generated
// markdown tree.
package site

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"sync"
	"time"
)

// ErrMissingTool is returned by CheckEnv when a required program is not on PATH.
var ErrMissingTool = errors.New("missing tool")

// Attempts bounds dependency installs and builds.
const Attempts = 3

const defaultPackageJSON = `{
  "name": "kbpress-site",
  "version": "1.0.0",
  "private": true,
  "scripts": {
    "docs:dev": "vitepress dev docs",
    "docs:build": "vitepress build docs",
    "docs:preview": "vitepress preview docs"
  },
  "devDependencies": {
    "markdown-it-sub": "^2.0.0",
    "markdown-it-task-lists": "^2.1.1",
    "vitepress": "^1.6.3",
    "vue": "^3.5.13"
  }
}
`

// RunFunc runs one program to completion in dir.
type RunFunc func(ctx context.Context, dir, name string, args ...string) error

type Options struct {
	Root    string // project directory holding package.json
	Output  string // markdown root, relative to Root
	DataDir string // directory holding nav.json and sidebar.json, relative to Root

	Title       string
	Lang        string
	Description string
	Base        string
	Theme       string // git URL or local directory copied over Root

	BuildCommand string
	RetryDelay   time.Duration

	Log *slog.Logger
}

type Site struct {
	opts Options
	log  *slog.Logger

	// Run executes external programs. Tests replace it.
	Run      RunFunc
	LookPath func(string) (string, error)
}

func New(opts Options) *Site {
	if opts.Root == "" {
		opts.Root = "."
	}
	if opts.Output == "" {
		opts.Output = "docs"
	}
	if opts.DataDir == "" {
		opts.DataDir = "."
	}
	if opts.BuildCommand == "" {
		opts.BuildCommand = "npm run docs:build"
	}
	if opts.RetryDelay <= 0 {
		opts.RetryDelay = 3 * time.Second
	}
	log := opts.Log
	if log == nil {
		log = slog.Default()
	}
	s := &Site{opts: opts, log: log, LookPath: exec.LookPath}
	s.Run = s.exec
	return s
}

// DistDir is where the static-site build writes its output.
func (s *Site) DistDir() string {
	return filepath.Join(s.opts.Root, s.opts.Output, ".vitepress", "dist")
}

func (s *Site) configDir() string {
	return filepath.Join(s.opts.Root, s.opts.Output, ".vitepress")
}

// CheckEnv verifies git and node are installed and returns the first
// available package manager out of pnpm, yarn and npm.
func (s *Site) CheckEnv() (string, error) {
	for _, tool := range []string{"git", "node"} {
		s.log.Info("checking tool", "tool", tool)
		if _, err := s.LookPath(tool); err != nil {
			return "", fmt.Errorf("%s: %w", tool, ErrMissingTool)
		}
	}
	for _, pm := range []string{"pnpm", "yarn", "npm"} {
		if _, err := s.LookPath(pm); err == nil {
			s.log.Info("using package manager", "tool", pm)
			return pm, nil
		}
	}
	return "", fmt.Errorf("pnpm, yarn or npm: %w", ErrMissingTool)
}

// Prepare runs every step needed before the first build: environment
// check, theme, package.json, dependencies and config.js.
func (s *Site) Prepare(ctx context.Context) error {
	pm, err := s.CheckEnv()
	if err != nil {
		return err
	}
	if err := s.CloneTheme(ctx); err != nil {
		return err
	}
	if err := s.WritePackageJSON(); err != nil {
		return err
	}
	if err := s.InstallDeps(ctx, pm); err != nil {
		return err
	}
	return s.WriteConfigJS()
}

// CloneTheme fetches the configured theme into <root>/theme, unless it is
// already there, and copies it over the project root. A theme that names a
// local directory is copied directly.
func (s *Site) CloneTheme(ctx context.Context) error {
	theme := s.opts.Theme
	if theme == "" {
		return nil
	}

	themeDir := filepath.Join(s.opts.Root, "theme")
	if info, err := os.Stat(theme); err == nil && info.IsDir() {
		s.log.Info("copying local theme", "theme", theme)
		return copyDir(theme, s.opts.Root)
	}

	if _, err := os.Stat(themeDir); err == nil {
		s.log.Info("theme directory exists, skipping clone", "dir", themeDir)
	} else {
		s.log.Info("cloning theme", "repo", theme)
		if err := s.Run(ctx, s.opts.Root, "git", "clone", theme, "theme", "--depth", "1"); err != nil {
			return fmt.Errorf("cloning theme: %w", err)
		}
	}
	return copyDir(themeDir, s.opts.Root)
}

// WritePackageJSON writes a default package.json unless one exists.
func (s *Site) WritePackageJSON() error {
	p := filepath.Join(s.opts.Root, "package.json")
	if _, err := os.Stat(p); err == nil {
		s.log.Info("found existing package.json")
		return nil
	}
	s.log.Info("writing default package.json", "path", p)
	if err := os.WriteFile(p, []byte(defaultPackageJSON), 0644); err != nil {
		return fmt.Errorf("writing package.json: %w", err)
	}
	return nil
}

// InstallDeps runs "<pm> install", retrying failed attempts.
func (s *Site) InstallDeps(ctx context.Context, pm string) error {
	if err := s.retry(ctx, pm, "install"); err != nil {
		return fmt.Errorf("installing dependencies: %w", err)
	}
	return nil
}

// WriteConfigJS writes .vitepress/config.js importing nav.json and
// sidebar.json. An existing config.js is kept as config.old.js.
func (s *Site) WriteConfigJS() error {
	dir := s.configDir()
	p := filepath.Join(dir, "config.js")

	if _, err := os.Stat(p); err == nil {
		s.log.Info("renaming existing config.js to config.old.js")
		if err := os.Rename(p, filepath.Join(dir, "config.old.js")); err != nil {
			return fmt.Errorf("renaming config.js: %w", err)
		}
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("creating %s: %w", dir, err)
	}

	content, err := s.configJS()
	if err != nil {
		return err
	}
	if err := os.WriteFile(p, []byte(content), 0644); err != nil {
		return fmt.Errorf("writing config.js: %w", err)
	}
	s.log.Info("wrote config.js", "path", p)
	return nil
}

func (s *Site) configJS() (string, error) {
	rel, err := filepath.Rel(s.configDir(), filepath.Join(s.opts.Root, s.opts.DataDir))
	if err != nil {
		return "", fmt.Errorf("locating data dir: %w", err)
	}
	rel = filepath.ToSlash(rel)

	var b strings.Builder
	b.WriteString("import { defineConfig } from 'vitepress'\n")
	fmt.Fprintf(&b, "import nav from %s\n", jsString(rel+"/nav.json"))
	fmt.Fprintf(&b, "import sidebar from %s\n\n", jsString(rel+"/sidebar.json"))
	b.WriteString("import taskListPlugin from 'markdown-it-task-lists'\n")
	b.WriteString("import subPlugin from 'markdown-it-sub'\n\n")
	b.WriteString("export default defineConfig({\n")
	b.WriteString("  themeConfig: {\n    nav: [...nav],\n    sidebar: { ...sidebar },\n  },\n")
	b.WriteString("  markdown: {\n    config: (md) => {\n      md.use(taskListPlugin)\n      md.use(subPlugin)\n    },\n  },\n")
	fmt.Fprintf(&b, "  title: %s,\n", jsString(s.opts.Title))
	fmt.Fprintf(&b, "  lang: %s,\n", jsString(s.opts.Lang))
	fmt.Fprintf(&b, "  base: %s,\n", jsString(s.opts.Base))
	fmt.Fprintf(&b, "  description: %s,\n", jsString(s.opts.Description))
	b.WriteString("  appearance: true,\n})\n")
	return b.String(), nil
}

// jsString quotes s as a JavaScript string literal.
func jsString(s string) string {
	data, _ := json.Marshal(s)
	return string(data)
}

// Build runs the configured build command, retrying failed attempts.
func (s *Site) Build(ctx context.Context) error {
	fields := strings.Fields(s.opts.BuildCommand)
	if len(fields) == 0 {
		return fmt.Errorf("invalid build command %q", s.opts.BuildCommand)
	}
	s.log.Info("building site", "command", s.opts.BuildCommand)
	if err := s.retry(ctx, fields[0], fields[1:]...); err != nil {
		return fmt.Errorf("building site: %w", err)
	}
	s.log.Info("build finished")
	return nil
}

func (s *Site) retry(ctx context.Context, name string, args ...string) error {
	var lastErr error
	for attempt := range Attempts {
		if attempt > 0 {
			s.log.Warn("command failed, retrying", "command", name, "attempt", attempt+1, "error", lastErr)
			select {
			case <-time.After(s.opts.RetryDelay):
			case <-ctx.Done():
				return ctx.Err()
			}
		}
		lastErr = s.Run(ctx, s.opts.Root, name, args...)
		if lastErr == nil {
			return nil
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
	}
	return lastErr
}

// exec runs name, streaming its stdout and stderr to the logger line by line.
func (s *Site) exec(ctx context.Context, dir, name string, args ...string) error {
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Dir = dir

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return err
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return err
	}
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("starting %s: %w", name, err)
	}

	var wg sync.WaitGroup
	wg.Add(2)
	go s.pipe(&wg, stdout, name, slog.LevelInfo)
	go s.pipe(&wg, stderr, name, slog.LevelWarn)
	wg.Wait()

	if err := cmd.Wait(); err != nil {
		return fmt.Errorf("%s: %w", name, err)
	}
	return nil
}

func (s *Site) pipe(wg *sync.WaitGroup, r io.Reader, name string, level slog.Level) {
	defer wg.Done()
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 64*1024), 1024*1024)
	for sc.Scan() {
		s.log.Log(context.Background(), level, sc.Text(), "command", name)
	}
}

// copyDir copies the files under src into dst, skipping .git.
func copyDir(src, dst string) error {
	return filepath.WalkDir(src, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(src, p)
		if err != nil {
			return err
		}
		if d.IsDir() && d.Name() == ".git" {
			return filepath.SkipDir
		}
		target := filepath.Join(dst, rel)
		if d.IsDir() {
			return os.MkdirAll(target, 0755)
		}
		data, err := os.ReadFile(p)
		if err != nil {
			return err
		}
		return os.WriteFile(target, data, 0644)
	})
}
