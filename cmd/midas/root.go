package main

import (
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"

	"github.com/vango-go/midas/internal/dotenv"
	"github.com/vango-go/midas/pkg/gateway/config"
)

func newRootCmd(deps serveDeps, stdout, stderr io.Writer) *cobra.Command {
	var envFile string
	root := &cobra.Command{
		Use:   "midas",
		Short: "AR repair assistant",
		Long: `midas guides a repair through a camera feed, a vision chat model and a
running checklist of steps.

Configuration comes from MIDAS_* environment variables, optionally loaded
from a .env file first. Provider keys use their documented names
(OPENAI_API_KEY, GEMINI_API_KEY, CARTESIA_API_KEY, ELEVENLABS_API_KEY).`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return dotenv.LoadFile(envFile)
		},
	}
	root.SetOut(stdout)
	root.SetErr(stderr)
	root.PersistentFlags().StringVar(&envFile, "env-file", ".env", "dotenv file loaded before reading the environment")

	root.AddCommand(
		newServeCmd(deps, stderr),
		newSessionCmd(stdout, stderr),
		newDiagnoseCmd(stdout, stderr),
		newHistoryCmd(stdout),
	)
	return root
}

// newLogger builds the process logger from MIDAS_LOG_LEVEL and
// MIDAS_LOG_FORMAT.
func newLogger(cfg config.Config, w io.Writer) *slog.Logger {
	var level slog.Level
	switch cfg.LogLevel {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: level}
	if cfg.LogFormat == "json" {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}

var errStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#ff5f5f"))

func printErr(w io.Writer, err error) {
	fmt.Fprintln(w, errStyle.Render("midas:")+" "+strings.TrimSpace(err.Error()))
}
