package cmd

import (
	"context"
	"os"
	"os/signal"

	"github.com/jcdickinson/kbpress/internal/generator"
	"github.com/spf13/cobra"
)

var generateCmd = &cobra.Command{
	Use:   "generate",
	Short: "Generate markdown, nav.json, sidebar.json and schema.json for every namespace",
	RunE:  runGenerate,
}

var generateBuild bool

func init() {
	generateCmd.Flags().BoolVar(&generateBuild, "build", false, "prepare and build the site afterwards")
}

func runGenerate(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	a, err := newApp(cfg, newLogger(os.Stderr))
	if err != nil {
		return err
	}
	defer a.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	if err := a.gen.GenerateAll(ctx); err != nil {
		return err
	}
	if !generateBuild {
		return nil
	}
	if err := a.site.Prepare(ctx); err != nil {
		return err
	}
	return a.site.Build(ctx)
}

var buildCmd = &cobra.Command{
	Use:   "build",
	Short: "Prepare the site project and run the build command",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		s := newSite(cfg, newLogger(os.Stderr))

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
		defer stop()

		if err := s.Prepare(ctx); err != nil {
			return err
		}
		return s.Build(ctx)
	},
}

var sidebarCmd = &cobra.Command{
	Use:   "sidebar",
	Short: "Rebuild sidebar.json from the generated markdown tree",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		gen := generator.New(nil, generator.Options{
			Output:  cfg.Output,
			DataDir: cfg.DataDir,
			Log:     newLogger(os.Stderr),
		})
		return gen.WriteSidebar()
	},
}
