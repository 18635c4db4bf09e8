package cmd

import (
	"fmt"

	"github.com/jcdickinson/kbpress/internal/cas"
	"github.com/jcdickinson/kbpress/internal/config"
	"github.com/spf13/cobra"
)

var cacheCmd = &cobra.Command{
	Use:   "clear-cache",
	Short: "Remove every cached image",
	RunE: func(cmd *cobra.Command, args []string) error {
		store := cas.New(config.CASDir())
		if err := store.Clear(); err != nil {
			return fmt.Errorf("clearing cache: %w", err)
		}
		fmt.Println("image cache cleared:", store.Dir())
		return nil
	},
}
