package cmd

import (
	"fmt"
	"os"
	"os/exec"
	"strconv"

	"github.com/jcdickinson/kbpress/internal/config"
	"github.com/spf13/cobra"
)

var logsCmd = &cobra.Command{
	Use:   "logs",
	Short: "View the server log file",
	RunE:  runLogs,
}

var (
	logsFollow bool
	logsLines  int
	logsPath   bool
)

func init() {
	logsCmd.Flags().BoolVarP(&logsFollow, "follow", "f", false, "follow log output")
	logsCmd.Flags().IntVarP(&logsLines, "lines", "n", 50, "number of lines to show")
	logsCmd.Flags().BoolVar(&logsPath, "path", false, "print the log file path and exit")
}

func runLogs(cmd *cobra.Command, args []string) error {
	logPath := config.LogPath()
	if logsPath {
		fmt.Println(logPath)
		return nil
	}
	if _, err := os.Stat(logPath); os.IsNotExist(err) {
		fmt.Println("no log file found (start the server with serve --log-file)")
		return nil
	}

	tailArgs := []string{"-n", strconv.Itoa(logsLines)}
	if logsFollow {
		tailArgs = append(tailArgs, "-F")
	}
	tailArgs = append(tailArgs, logPath)

	tailCmd := exec.CommandContext(cmd.Context(), "tail", tailArgs...)
	tailCmd.Stdout = os.Stdout
	tailCmd.Stderr = os.Stderr

	if err := tailCmd.Run(); err != nil {
		return fmt.Errorf("tail failed: %w", err)
	}
	return nil
}
