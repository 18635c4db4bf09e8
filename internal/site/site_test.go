package site

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"
)

var discard = slog.New(slog.NewTextHandler(io.Discard, nil))

type call struct {
	dir  string
	name string
	args []string
}

type fakeRunner struct {
	mu    sync.Mutex
	calls []call
	fails int
}

func (f *fakeRunner) run(_ context.Context, dir, name string, args ...string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, call{dir, name, args})
	if f.fails > 0 {
		f.fails--
		return errors.New("exit status 1")
	}
	return nil
}

func newTestSite(t *testing.T, opts Options) (*Site, *fakeRunner) {
	t.Helper()
	if opts.Root == "" {
		opts.Root = t.TempDir()
	}
	opts.RetryDelay = time.Millisecond
	opts.Log = discard
	s := New(opts)
	r := &fakeRunner{}
	s.Run = r.run
	return s, r
}

func TestCheckEnv(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name      string
		installed []string
		want      string
		wantErr   bool
	}{
		{"prefers pnpm", []string{"git", "node", "npm", "pnpm", "yarn"}, "pnpm", false},
		{"yarn before npm", []string{"git", "node", "npm", "yarn"}, "yarn", false},
		{"npm only", []string{"git", "node", "npm"}, "npm", false},
		{"no package manager", []string{"git", "node"}, "", true},
		{"no node", []string{"git", "npm"}, "", true},
		{"no git", []string{"node", "npm"}, "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, _ := newTestSite(t, Options{})
			s.LookPath = func(name string) (string, error) {
				for _, n := range tt.installed {
					if n == name {
						return "/usr/bin/" + name, nil
					}
				}
				return "", errors.New("not found")
			}

			got, err := s.CheckEnv()
			if tt.wantErr {
				if !errors.Is(err, ErrMissingTool) {
					t.Fatalf("err = %v, want ErrMissingTool", err)
				}
				return
			}
			if err != nil {
				t.Fatal(err)
			}
			if got != tt.want {
				t.Errorf("package manager = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestBuild_SplitsAndRetries(t *testing.T) {
	t.Parallel()

	s, r := newTestSite(t, Options{BuildCommand: "pnpm run  docs:build"})
	r.fails = 2

	if err := s.Build(context.Background()); err != nil {
		t.Fatal(err)
	}
	if len(r.calls) != 3 {
		t.Fatalf("calls = %d, want 3", len(r.calls))
	}
	c := r.calls[2]
	if c.name != "pnpm" || strings.Join(c.args, " ") != "run docs:build" {
		t.Errorf("call = %+v", c)
	}
}

func TestBuild_GivesUp(t *testing.T) {
	t.Parallel()

	s, r := newTestSite(t, Options{})
	r.fails = 10

	if err := s.Build(context.Background()); err == nil {
		t.Fatal("expected error")
	}
	if len(r.calls) != Attempts {
		t.Errorf("calls = %d, want %d", len(r.calls), Attempts)
	}
}

func TestBuild_EmptyCommand(t *testing.T) {
	t.Parallel()

	s, _ := newTestSite(t, Options{BuildCommand: "   "})
	if err := s.Build(context.Background()); err == nil {
		t.Fatal("expected error")
	}
}

func TestInstallDeps(t *testing.T) {
	t.Parallel()

	s, r := newTestSite(t, Options{})
	r.fails = 1
	if err := s.InstallDeps(context.Background(), "yarn"); err != nil {
		t.Fatal(err)
	}
	if len(r.calls) != 2 || r.calls[1].name != "yarn" || r.calls[1].args[0] != "install" {
		t.Errorf("calls = %+v", r.calls)
	}
}

func TestWritePackageJSON_KeepsExisting(t *testing.T) {
	t.Parallel()

	s, _ := newTestSite(t, Options{})
	p := filepath.Join(s.opts.Root, "package.json")

	if err := s.WritePackageJSON(); err != nil {
		t.Fatal(err)
	}
	data, err := os.ReadFile(p)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(data), "vitepress build docs") {
		t.Errorf("default package.json = %s", data)
	}

	if err := os.WriteFile(p, []byte("{}"), 0644); err != nil {
		t.Fatal(err)
	}
	if err := s.WritePackageJSON(); err != nil {
		t.Fatal(err)
	}
	if data, _ := os.ReadFile(p); string(data) != "{}" {
		t.Errorf("existing package.json overwritten: %s", data)
	}
}

func TestWriteConfigJS(t *testing.T) {
	t.Parallel()

	s, _ := newTestSite(t, Options{Title: `My "KB"`, Lang: "zh-CN", Base: "/kb/"})
	dir := filepath.Join(s.opts.Root, "docs", ".vitepress")
	if err := os.MkdirAll(dir, 0755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, "config.js"), []byte("old"), 0644); err != nil {
		t.Fatal(err)
	}

	if err := s.WriteConfigJS(); err != nil {
		t.Fatal(err)
	}

	old, err := os.ReadFile(filepath.Join(dir, "config.old.js"))
	if err != nil || string(old) != "old" {
		t.Errorf("config.old.js = %q, %v", old, err)
	}
	data, err := os.ReadFile(filepath.Join(dir, "config.js"))
	if err != nil {
		t.Fatal(err)
	}
	js := string(data)
	for _, want := range []string{
		`import nav from "../../nav.json"`,
		`import sidebar from "../../sidebar.json"`,
		`title: "My \"KB\""`,
		`base: "/kb/"`,
	} {
		if !strings.Contains(js, want) {
			t.Errorf("config.js missing %q:\n%s", want, js)
		}
	}
}

func TestCloneTheme(t *testing.T) {
	t.Parallel()

	t.Run("no theme", func(t *testing.T) {
		s, r := newTestSite(t, Options{})
		if err := s.CloneTheme(context.Background()); err != nil {
			t.Fatal(err)
		}
		if len(r.calls) != 0 {
			t.Errorf("calls = %+v", r.calls)
		}
	})

	t.Run("local directory", func(t *testing.T) {
		theme := t.TempDir()
		if err := os.MkdirAll(filepath.Join(theme, "docs", ".vitepress", "theme"), 0755); err != nil {
			t.Fatal(err)
		}
		if err := os.WriteFile(filepath.Join(theme, "docs", ".vitepress", "theme", "index.js"), []byte("x"), 0644); err != nil {
			t.Fatal(err)
		}
		if err := os.MkdirAll(filepath.Join(theme, ".git"), 0755); err != nil {
			t.Fatal(err)
		}

		s, r := newTestSite(t, Options{Theme: theme})
		if err := s.CloneTheme(context.Background()); err != nil {
			t.Fatal(err)
		}
		if len(r.calls) != 0 {
			t.Errorf("git called for local theme: %+v", r.calls)
		}
		if _, err := os.Stat(filepath.Join(s.opts.Root, "docs", ".vitepress", "theme", "index.js")); err != nil {
			t.Errorf("theme not copied: %v", err)
		}
		if _, err := os.Stat(filepath.Join(s.opts.Root, ".git")); !os.IsNotExist(err) {
			t.Errorf(".git copied: %v", err)
		}
	})

	t.Run("remote clone", func(t *testing.T) {
		s, r := newTestSite(t, Options{Theme: "https://git.example.com/theme.git"})
		s.Run = func(ctx context.Context, dir, name string, args ...string) error {
			r.run(ctx, dir, name, args...)
			return os.MkdirAll(filepath.Join(dir, "theme"), 0755)
		}
		if err := s.CloneTheme(context.Background()); err != nil {
			t.Fatal(err)
		}
		if len(r.calls) != 1 || r.calls[0].name != "git" || r.calls[0].args[0] != "clone" {
			t.Errorf("calls = %+v", r.calls)
		}
	})
}

func TestExec_StreamsOutput(t *testing.T) {
	t.Parallel()

	if _, err := os.Stat("/bin/sh"); err != nil {
		t.Skip("no /bin/sh")
	}

	var buf strings.Builder
	var mu sync.Mutex
	log := slog.New(slog.NewTextHandler(writerFunc(func(p []byte) (int, error) {
		mu.Lock()
		defer mu.Unlock()
		return buf.Write(p)
	}), nil))

	s := New(Options{Root: t.TempDir(), Log: log})
	if err := s.Run(context.Background(), s.opts.Root, "/bin/sh", "-c", "echo hello; echo oops >&2"); err != nil {
		t.Fatal(err)
	}
	mu.Lock()
	out := buf.String()
	mu.Unlock()
	if !strings.Contains(out, "hello") || !strings.Contains(out, "level=WARN msg=oops") {
		t.Errorf("log output = %q", out)
	}

	if err := s.Run(context.Background(), s.opts.Root, "/bin/sh", "-c", "exit 3"); err == nil {
		t.Error("expected error for failing command")
	}
}

type writerFunc func([]byte) (int, error)

func (f writerFunc) Write(p []byte) (int, error) { return f(p) }
