package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/spf13/cobra"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show known books and recent generation runs",
	RunE:  runStatus,
}

var (
	statusJSON  bool
	statusLimit int
)

func init() {
	statusCmd.Flags().BoolVar(&statusJSON, "json", false, "output as JSON")
	statusCmd.Flags().IntVarP(&statusLimit, "limit", "n", 10, "number of runs to show")
}

func runStatus(cmd *cobra.Command, args []string) error {
	client, err := connectDaemon()
	if err != nil {
		return fmt.Errorf("connecting to server: %w", err)
	}

	resp, err := client.Status(context.Background(), statusLimit)
	if err != nil {
		return fmt.Errorf("status failed: %w", err)
	}

	if statusJSON {
		out, _ := json.MarshalIndent(resp, "", "  ")
		fmt.Println(string(out))
		return nil
	}

	if len(resp.Repos) == 0 {
		fmt.Println("no books generated")
	}
	for _, r := range resp.Repos {
		fmt.Printf("  %d  %s\n", r.BookID, r.Namespace)
	}
	if len(resp.Pending) > 0 {
		fmt.Printf("pending: %v\n", resp.Pending)
	}
	if len(resp.Runs) > 0 {
		fmt.Println("recent runs:")
	}
	for _, run := range resp.Runs {
		state := "running"
		switch {
		case run.Error != "":
			state = "failed: " + run.Error
		case run.FinishedAt != nil:
			state = fmt.Sprintf("%d written, %d failed in %s", run.Documents, run.Failures, run.FinishedAt.Sub(run.StartedAt).Round(time.Millisecond))
		}
		fmt.Printf("  %s  %s  [%s]\n", run.StartedAt.Local().Format("2006-01-02 15:04:05"), run.Namespace, state)
	}
	return nil
}

var regenerateCmd = &cobra.Command{
	Use:   "regenerate <book-id>",
	Short: "Regenerate one book on the running server and rebuild the site",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := strconv.Atoi(args[0])
		if err != nil {
			return fmt.Errorf("invalid book id %q: %w", args[0], err)
		}

		client, err := connectDaemon()
		if err != nil {
			return fmt.Errorf("connecting to server: %w", err)
		}

		resp, err := client.Regenerate(context.Background(), id)
		if err != nil {
			return fmt.Errorf("regenerate failed: %w", err)
		}
		state := "not built"
		if resp.Built {
			state = "built"
		}
		fmt.Printf("regenerated %s (%d), site %s\n", resp.Namespace, resp.BookID, state)
		return nil
	},
}
