package main

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"strings"

	"github.com/spf13/cobra"

	"netconform/internal/config"
)

type replayOptions struct {
	filterPath string
	enable     []string
	disable    []string
	save       bool
	properties bool
	jsonOut    bool
}

func newReplayCmd() *cobra.Command {
	var opts replayOptions
	cmd := &cobra.Command{
		Use:   "replay",
		Short: "Rebuild the model from the stored event log",
		Long: `replay resets the model, applies the source label filter and replays the
enabled part of the stored event log, then prints the verdict report.
The filter is read from the INI file named by sources.path or --filter.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runReplay(cmd, opts)
		},
	}

	cmd.Flags().StringVar(&opts.filterPath, "filter", "", "INI source label filter (default: sources.path)")
	cmd.Flags().StringSliceVar(&opts.enable, "enable", nil, "Enable a source label (repeatable)")
	cmd.Flags().StringSliceVar(&opts.disable, "disable", nil, "Disable a source label (repeatable)")
	cmd.Flags().BoolVar(&opts.save, "save", false, "Write the resulting label filter back to the INI file")
	cmd.Flags().BoolVarP(&opts.properties, "properties", "p", false, "List entity properties")
	cmd.Flags().BoolVar(&opts.jsonOut, "json", false, "Print the report as JSON")
	return cmd
}

func runReplay(cmd *cobra.Command, opts replayOptions) error {
	ctx := cmd.Context()
	a, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	path := opts.filterPath
	if path == "" {
		path = a.cfg.Sources.Path
	}
	filter, err := readFilter(path)
	if err != nil {
		return err
	}
	for _, l := range opts.enable {
		filter[strings.ToLower(l)] = true
	}
	for _, l := range opts.disable {
		filter[strings.ToLower(l)] = false
	}

	n, err := a.rec.Rebuild(ctx, filter)
	if err != nil {
		return err
	}
	slog.Info("Replayed event log", "events", n, "filter", filter)

	if opts.save {
		if path == "" {
			return fmt.Errorf("--save needs a filter file: set sources.path or pass --filter")
		}
		labels, err := a.rec.Labels(ctx)
		if err != nil {
			return err
		}
		if err := config.SaveSourceFilter(path, labels); err != nil {
			return fmt.Errorf("save source filter: %w", err)
		}
		slog.Info("Saved source filter", "path", path, "labels", len(labels))
	}

	rep, err := a.rec.Report(ctx)
	if err != nil {
		return err
	}
	return printReport(cmd.OutOrStdout(), rep, opts.jsonOut, opts.properties)
}

// readFilter loads the INI filter. A missing file is an empty filter.
func readFilter(path string) (map[string]bool, error) {
	if path == "" {
		return map[string]bool{}, nil
	}
	filter, err := config.LoadSourceFilter(path)
	if errors.Is(err, fs.ErrNotExist) {
		slog.Debug("No source filter file", "path", path)
		return map[string]bool{}, nil
	}
	return filter, err
}
