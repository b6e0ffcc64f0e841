package main

import (
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/spf13/cobra"
)

var (
	configPath string
	modelPath  string
	database   string
	logLevel   string
	logFile    string
	noColor    bool
)

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "netconform",
		Short: "Reconcile a declared network security model against evidence",
		Long: `netconform loads the expected security topology of a networked product
and reconciles it against evidence from packet captures, port scans and
other tools, attaching a verdict to every host, service and connection.`,
		SilenceUsage: true,
	}

	flags := rootCmd.PersistentFlags()
	flags.StringVarP(&configPath, "config", "c", "", "Config file (default: search path)")
	flags.StringVarP(&modelPath, "model", "m", "", "Declared model YAML (overrides config)")
	flags.StringVar(&database, "db", "", "Database as driver:target, e.g. sqlite:./netconform.db or memory")
	flags.StringVar(&logLevel, "log-level", "", "Log level (DEBUG, INFO, WARN, ERROR)")
	flags.StringVar(&logFile, "log-file", "", "Log file path (default: stderr)")
	flags.BoolVar(&noColor, "no-color", false, "Disable colored output")

	rootCmd.AddCommand(
		newCheckCmd(),
		newReplayCmd(),
		newServeCmd(),
		newIDsCmd(),
		newInitCmd(),
	)
	return rootCmd
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

// setupLogger returns a text logger writing to stderr or, when it can be
// opened, to logFilePath
func setupLogger(level, logFilePath string) *slog.Logger {
	var logWriter io.Writer = os.Stderr
	if logFilePath != "" {
		f, err := os.OpenFile(logFilePath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
		if err == nil {
			logWriter = f
		}
	}

	var lvl slog.Level
	switch strings.ToUpper(level) {
	case "DEBUG":
		lvl = slog.LevelDebug
	case "WARN":
		lvl = slog.LevelWarn
	case "ERROR":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}

	return slog.New(slog.NewTextHandler(logWriter, &slog.HandlerOptions{Level: lvl}))
}
