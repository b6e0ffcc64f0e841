package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/spf13/cobra"

	"netconform/internal/domain"
	"netconform/internal/report"
	"netconform/internal/service"
)

// errVerdictFail makes check exit non-zero in strict mode
var errVerdictFail = errors.New("system verdict is fail")

type checkOptions struct {
	evidence   []string
	nmap       []string
	scan       []string
	ports      string
	udp        bool
	label      string
	record     string
	sshProbe   bool
	properties bool
	jsonOut    bool
	strict     bool
}

func newCheckCmd() *cobra.Command {
	var opts checkOptions
	cmd := &cobra.Command{
		Use:   "check [evidence.jsonl|evidence.yaml...]",
		Short: "Import evidence and print the verdict report",
		Long: `check loads the declared model, imports the configured evidence files,
the files given as arguments and any nmap XML reports, runs a live nmap
scan when targets are given, then prints the verdict of every entity.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			opts.evidence = append(opts.evidence, args...)
			return runCheck(cmd, opts)
		},
	}

	cmd.Flags().StringSliceVar(&opts.nmap, "nmap", nil, "nmap XML report to import (repeatable)")
	cmd.Flags().StringSliceVar(&opts.scan, "scan", nil, "Scan a CIDR range or host with nmap (repeatable)")
	cmd.Flags().StringVar(&opts.ports, "ports", "", "Ports of the live scan, e.g. 22,80-443 (default: evidence.scan.ports)")
	cmd.Flags().BoolVar(&opts.udp, "udp", false, "Add a UDP scan to the live scan (requires root)")
	cmd.Flags().StringVar(&opts.label, "label", "", "Source label of imported events (default: file name)")
	cmd.Flags().StringVar(&opts.record, "record", "", "Append events collected from nmap and the SSH probe to this JSON Lines file")
	cmd.Flags().BoolVar(&opts.sshProbe, "ssh-probe", false, "Fetch host keys of SSH endpoints found by nmap")
	cmd.Flags().BoolVarP(&opts.properties, "properties", "p", false, "List entity properties")
	cmd.Flags().BoolVar(&opts.jsonOut, "json", false, "Print the report as JSON")
	cmd.Flags().BoolVar(&opts.strict, "strict", false, "Exit non-zero when the system verdict is fail")
	return cmd
}

func runCheck(cmd *cobra.Command, opts checkOptions) error {
	ctx := cmd.Context()
	a, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	files := append(append([]string(nil), a.cfg.Evidence.Files...), opts.evidence...)
	if _, err := a.importFiles(ctx, files, opts.label); err != nil {
		return err
	}

	scan := a.cfg.Evidence.Scan
	scan.Targets = append(append([]string(nil), scan.Targets...), opts.scan...)
	if opts.ports != "" {
		scan.Ports = opts.ports
	}
	scan.UDP = scan.UDP || opts.udp
	if _, err := a.collect(ctx, collectOptions{
		reports:  append(append([]string(nil), a.cfg.Evidence.Nmap...), opts.nmap...),
		scan:     scan,
		sshProbe: opts.sshProbe || a.cfg.Evidence.SSHProbe,
		record:   opts.record,
	}); err != nil {
		return err
	}

	rep, err := a.rec.Report(ctx)
	if err != nil {
		return err
	}
	if err := printReport(cmd.OutOrStdout(), rep, opts.jsonOut, opts.properties); err != nil {
		return err
	}

	if opts.strict && rep.Verdict == domain.VerdictFail {
		return errVerdictFail
	}
	return nil
}

func printReport(w io.Writer, rep *service.Report, jsonOut, properties bool) error {
	if jsonOut {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(rep)
	}
	slog.Debug("Rendering report", "entities", len(rep.Entities))
	if err := report.Render(w, rep, report.Options{Color: !noColor, Properties: properties}); err != nil {
		return fmt.Errorf("render report: %w", err)
	}
	return nil
}
