package daemon

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/jcdickinson/kbpress/internal/db"
	"github.com/jcdickinson/kbpress/internal/generator"
	"github.com/jcdickinson/kbpress/internal/metrics"
	"github.com/jcdickinson/kbpress/internal/rpc"
	"github.com/robfig/cron/v3"
	"golang.org/x/sync/singleflight"
)

// Generator is the part of the generator the server drives.
type Generator interface {
	GenerateAll(ctx context.Context) error
	Regenerate(ctx context.Context, repoID int) error
	Repos() map[int]string
}

// Builder rebuilds the static site after the markdown changed.
type Builder interface {
	Build(ctx context.Context) error
}

// RunLister lists recorded generation runs.
type RunLister interface {
	ListRuns(limit int) ([]db.Run, error)
}

type Options struct {
	Addr     string
	Mount    string // URL prefix for the built site
	DistDir  string // built site served under Mount; empty disables it
	Schedule string // cron spec for full regenerations; empty disables it

	Builder Builder   // optional
	Runs    RunLister // optional
	Metrics *metrics.Metrics
	Log     *slog.Logger
}

type Server struct {
	gen  Generator
	opts Options
	log  *slog.Logger

	router     chi.Router
	httpServer *http.Server
	listener   net.Listener
	cron       *cron.Cron

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	group singleflight.Group

	// generation is held exclusively by full regenerations and shared by
	// single-repo ones.
	generation sync.RWMutex
	buildMu    sync.Mutex

	mu      sync.Mutex
	locks   map[int]*sync.Mutex
	pending map[int]bool
}

func NewServer(gen Generator, opts Options) (*Server, error) {
	log := opts.Log
	if log == nil {
		log = slog.Default()
	}
	ctx, cancel := context.WithCancel(context.Background())
	s := &Server{
		gen:     gen,
		opts:    opts,
		log:     log,
		ctx:     ctx,
		cancel:  cancel,
		locks:   make(map[int]*sync.Mutex),
		pending: make(map[int]bool),
	}

	if opts.Schedule != "" {
		s.cron = cron.New()
		if _, err := s.cron.AddFunc(opts.Schedule, s.scheduled); err != nil {
			cancel()
			return nil, fmt.Errorf("invalid schedule %q: %w", opts.Schedule, err)
		}
	}

	s.setupRoutes()
	return s, nil
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

func (s *Server) setupRoutes() {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestID)
	r.Use(RequestLogger(s.log))

	r.Get("/health", s.handleHealth)
	r.Post("/webhook", s.handleWebhook)
	r.Post("/regenerate", s.handleRegenerate)
	r.Get("/status", s.handleStatus)
	if s.opts.Metrics != nil {
		r.Handle("/metrics", s.opts.Metrics.Handler())
	}

	if s.opts.DistDir != "" {
		mount := strings.TrimSuffix(s.opts.Mount, "/")
		files := http.FileServer(http.Dir(s.opts.DistDir))
		if mount != "" {
			files = http.StripPrefix(mount, files)
		}
		r.Handle(mount+"/*", files)
	}

	s.router = r
}

// Start listens on the configured address and serves until Stop.
func (s *Server) Start() error {
	listener, err := net.Listen("tcp", s.opts.Addr)
	if err != nil {
		return fmt.Errorf("listening on %s: %w", s.opts.Addr, err)
	}
	s.listener = listener
	s.httpServer = &http.Server{Handler: s, ReadHeaderTimeout: 10 * time.Second}

	if s.cron != nil {
		s.cron.Start()
		s.log.Info("scheduled full regeneration", "schedule", s.opts.Schedule)
	}

	s.log.Info("listening", "addr", listener.Addr().String())
	if err := s.httpServer.Serve(listener); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("serving: %w", err)
	}
	return nil
}

// Stop shuts the HTTP server down, cancels queued regenerations and
// waits for running ones.
func (s *Server) Stop(ctx context.Context) error {
	var errs []error
	if s.httpServer != nil {
		if err := s.httpServer.Shutdown(ctx); err != nil {
			s.log.Warn("shutdown error", "error", err)
			errs = append(errs, err)
		}
	}
	if s.cron != nil {
		<-s.cron.Stop().Done()
	}
	s.cancel()

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		errs = append(errs, ctx.Err())
	}
	return errors.Join(errs...)
}

// repoLock returns the lock serializing regenerations of id. Callers only
// ask for ids the generator knows.
func (s *Server) repoLock(id int) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.locks[id]
	if !ok {
		l = &sync.Mutex{}
		s.locks[id] = l
	}
	return l
}

// Enqueue schedules a background regeneration of id. It reports false when
// one is already waiting; at most one run and one pending regeneration
// exist per id.
func (s *Server) Enqueue(id int) bool {
	s.mu.Lock()
	if s.pending[id] {
		s.mu.Unlock()
		return false
	}
	s.pending[id] = true
	s.mu.Unlock()

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		lock := s.repoLock(id)
		lock.Lock()
		defer lock.Unlock()

		s.mu.Lock()
		delete(s.pending, id)
		s.mu.Unlock()

		if _, err := s.Regenerate(s.ctx, id); err != nil {
			s.log.Error("regeneration failed", "repo", id, "error", err)
		}
	}()
	return true
}

// Regenerate rebuilds one repo and then the site. Concurrent calls for the
// same id share one run.
func (s *Server) Regenerate(ctx context.Context, id int) (bool, error) {
	v, err, _ := s.group.Do(strconv.Itoa(id), func() (interface{}, error) {
		s.generation.RLock()
		defer s.generation.RUnlock()

		if err := s.gen.Regenerate(ctx, id); err != nil {
			return false, err
		}
		return s.build(ctx)
	})
	built, _ := v.(bool)
	return built, err
}

// RegenerateAll regenerates every namespace and rebuilds the site.
func (s *Server) RegenerateAll(ctx context.Context) error {
	_, err, _ := s.group.Do("all", func() (interface{}, error) {
		s.generation.Lock()
		defer s.generation.Unlock()

		if err := s.gen.GenerateAll(ctx); err != nil {
			return nil, err
		}
		return s.build(ctx)
	})
	return err
}

func (s *Server) build(ctx context.Context) (bool, error) {
	if s.opts.Builder == nil {
		return false, nil
	}
	s.buildMu.Lock()
	defer s.buildMu.Unlock()
	if err := s.opts.Builder.Build(ctx); err != nil {
		return false, err
	}
	return true, nil
}

func (s *Server) scheduled() {
	s.wg.Add(1)
	defer s.wg.Done()
	s.log.Info("scheduled regeneration starting")
	if err := s.RegenerateAll(s.ctx); err != nil {
		s.log.Error("scheduled regeneration failed", "error", err)
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleWebhook(w http.ResponseWriter, r *http.Request) {
	var req rpc.WebhookRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	id := req.Data.BookID
	if _, ok := s.gen.Repos()[id]; !ok {
		writeError(w, http.StatusNotFound, fmt.Sprintf("unknown book %d", id))
		return
	}

	status := "queued"
	if !s.Enqueue(id) {
		status = "coalesced"
	}
	s.log.Info("webhook received", "repo", id, "status", status)
	writeJSON(w, http.StatusAccepted, rpc.WebhookResponse{BookID: id, Status: status})
}

func (s *Server) handleRegenerate(w http.ResponseWriter, r *http.Request) {
	var req rpc.RegenerateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	if _, ok := s.gen.Repos()[req.BookID]; !ok {
		writeError(w, http.StatusNotFound, fmt.Sprintf("unknown book %d", req.BookID))
		return
	}

	lock := s.repoLock(req.BookID)
	lock.Lock()
	built, err := s.Regenerate(r.Context(), req.BookID)
	lock.Unlock()

	if errors.Is(err, generator.ErrUnknownRepo) {
		writeError(w, http.StatusNotFound, err.Error())
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, rpc.RegenerateResponse{
		BookID:    req.BookID,
		Namespace: s.gen.Repos()[req.BookID],
		Built:     built,
	})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	resp := rpc.StatusResponse{Repos: []rpc.RepoStatus{}, Runs: []rpc.RunStatus{}}

	for id, ns := range s.gen.Repos() {
		resp.Repos = append(resp.Repos, rpc.RepoStatus{BookID: id, Namespace: ns})
	}
	sort.Slice(resp.Repos, func(i, j int) bool { return resp.Repos[i].BookID < resp.Repos[j].BookID })

	s.mu.Lock()
	for id := range s.pending {
		resp.Pending = append(resp.Pending, id)
	}
	s.mu.Unlock()
	sort.Ints(resp.Pending)

	if s.opts.Runs != nil {
		limit := 20
		if v, err := strconv.Atoi(r.URL.Query().Get("limit")); err == nil && v > 0 {
			limit = v
		}
		runs, err := s.opts.Runs.ListRuns(limit)
		if err != nil {
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		for _, run := range runs {
			resp.Runs = append(resp.Runs, rpc.RunStatus{
				ID:         run.ID,
				Namespace:  run.Namespace,
				StartedAt:  run.StartedAt,
				FinishedAt: run.FinishedAt,
				Documents:  run.Documents,
				Failures:   run.Failures,
				Error:      run.Error,
			})
		}
	}

	writeJSON(w, http.StatusOK, resp)
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
