package cmd

import (
	"fmt"
	"io"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/jcdickinson/kbpress/internal/cas"
	"github.com/jcdickinson/kbpress/internal/config"
	"github.com/jcdickinson/kbpress/internal/daemon"
	"github.com/jcdickinson/kbpress/internal/db"
	"github.com/jcdickinson/kbpress/internal/generator"
	"github.com/jcdickinson/kbpress/internal/images"
	"github.com/jcdickinson/kbpress/internal/markdown"
	"github.com/jcdickinson/kbpress/internal/metrics"
	"github.com/jcdickinson/kbpress/internal/schema"
	"github.com/jcdickinson/kbpress/internal/site"
	"github.com/jcdickinson/kbpress/internal/yuque"
	"github.com/spf13/cobra"
)

const version = "0.1.0"

var (
	configFile string
	debug      bool
)

var rootCmd = &cobra.Command{
	Use:          "kbpress",
	Short:        "Publish knowledge-base books as a VitePress site",
	SilenceUsage: true,
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		log.Fatalf("command failed: %v", err)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configFile, "config", "", "config file (default ./config.yml)")
	rootCmd.PersistentFlags().BoolVar(&debug, "debug", false, "log at debug level")

	rootCmd.AddCommand(generateCmd)
	rootCmd.AddCommand(buildCmd)
	rootCmd.AddCommand(sidebarCmd)
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(regenerateCmd)
	rootCmd.AddCommand(logsCmd)
	rootCmd.AddCommand(cacheCmd)
	rootCmd.AddCommand(mcpCmd)
}

func newLogger(w io.Writer) *slog.Logger {
	level := slog.LevelInfo
	if debug {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: level}))
}

func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(configFile)
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// app holds everything one generation run needs.
type app struct {
	cfg     *config.Config
	log     *slog.Logger
	gen     *generator.Generator
	site    *site.Site
	db      *db.DB
	metrics *metrics.Metrics
}

func newApp(cfg *config.Config, logger *slog.Logger) (*app, error) {
	database, err := db.New(config.DBPath())
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	var cache *cas.Store
	if cfg.Images.Cache {
		cache = cas.New(config.CASDir())
	}

	m := metrics.New()
	opts := generatorOptions(cfg)
	opts.Fetcher = images.NewFetcher(cache, logger)
	opts.Recorder = database
	opts.Metrics = m
	opts.Log = logger

	client := yuque.NewClient(cfg.Host, cfg.Token.Value, cfg.RateLimit)
	gen := generator.New(client, opts)

	return &app{
		cfg:     cfg,
		log:     logger,
		gen:     gen,
		site:    newSite(cfg, logger),
		db:      database,
		metrics: m,
	}, nil
}

// generatorOptions maps the config onto generator options. Links are only
// resolved on the configured knowledge-base host.
func generatorOptions(cfg *config.Config) generator.Options {
	namespaces := make([]generator.Namespace, len(cfg.Namespaces))
	for i, ns := range cfg.Namespaces {
		namespaces[i] = generator.Namespace{
			Target: ns.Target,
			Text:   ns.Text,
			Nav:    ns.Nav,
			TOC:    ns.UsesTOC(),
		}
	}

	return generator.Options{
		Output:         cfg.Output,
		DataDir:        cfg.DataDir,
		Namespaces:     namespaces,
		EmbedProviders: cfg.Embed.Providers,
		LinkHosts:      []string{markdown.HostName(cfg.Host)},
		SchemaKeys: schema.Keys{
			Intro:    cfg.Schema.IntroKey,
			Features: cfg.Schema.FeaturesKey,
		},
		NavDefaultText: cfg.Nav.DefaultText,
		StrictImages:   cfg.Images.Strict,
		NamespaceLimit: cfg.Concurrency.Namespaces,
		DocumentLimit:  cfg.Concurrency.Documents,
		RetryDelay:     cfg.RetryDelay,
	}
}

func (a *app) Close() error {
	return a.db.Close()
}

func newSite(cfg *config.Config, logger *slog.Logger) *site.Site {
	return site.New(site.Options{
		Root:         ".",
		Output:       cfg.Output,
		DataDir:      cfg.DataDir,
		Title:        cfg.Site.Title,
		Lang:         cfg.Site.Lang,
		Description:  cfg.Site.Description,
		Base:         cfg.Site.Base,
		Theme:        cfg.Site.Theme,
		BuildCommand: cfg.BuildCommand,
		RetryDelay:   cfg.RetryDelay,
		Log:          logger,
	})
}

// connectDaemon returns a client for the configured server, starting one
// in the background when nothing is listening.
func connectDaemon() (*daemon.Client, error) {
	cfg, err := config.Load(configFile)
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}
	return daemon.ConnectOrSpawn(cfg.Server.Addr, configFile)
}

func waitForSignal(errCh chan error) error {
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigs:
		slog.Info("received signal", "signal", sig.String())
		return nil
	case err := <-errCh:
		return err
	}
}
