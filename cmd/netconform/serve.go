package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"netconform/internal/evidence"
	"netconform/internal/handler"
	"netconform/internal/hub"
	"netconform/internal/service"
	"netconform/internal/watcher"
)

type serveOptions struct {
	listen string
	watch  bool
	label  string
}

func newServeCmd() *cobra.Command {
	var opts serveOptions
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the HTTP API and the live change stream",
		Long: `serve keeps the reconciler running behind an HTTP API. Model changes are
streamed to SSE clients at /events and metrics are exposed at /metrics.
With --watch the configured evidence files are tailed and appended events
are submitted as they arrive.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd, opts)
		},
	}

	cmd.Flags().StringVarP(&opts.listen, "listen", "l", "", "HTTP listen address (default: server.listen)")
	cmd.Flags().BoolVarP(&opts.watch, "watch", "w", false, "Tail evidence files for appended events")
	cmd.Flags().StringVar(&opts.label, "label", "", "Source label of file evidence (default: file name)")
	return cmd
}

func runServe(cmd *cobra.Command, opts serveOptions) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := newApp(ctx, service.WithMetrics(service.NewMetrics()))
	if err != nil {
		return err
	}
	defer a.Close()

	sseHub := hub.New()
	go sseHub.Run(ctx)
	sseHub.Forward(ctx, a.rec.EventBus())

	var wg sync.WaitGroup
	if opts.watch || a.cfg.Evidence.Watch {
		debounce := a.cfg.Evidence.Debounce.Or(500 * time.Millisecond)
		for _, path := range a.cfg.Evidence.Files {
			tail := watcher.NewTailer(path, opts.label, submitLine(a.rec)).WithDebounce(debounce)
			wg.Add(1)
			go func() {
				defer wg.Done()
				if err := tail.Watch(ctx); err != nil && !errors.Is(err, context.Canceled) {
					slog.Error("Watcher stopped", "path", path, "error", err)
				}
			}()
		}
	} else if _, err := a.importFiles(ctx, a.cfg.Evidence.Files, opts.label); err != nil {
		return err
	}
	if _, err := a.collect(ctx, collectOptions{
		reports:  a.cfg.Evidence.Nmap,
		scan:     a.cfg.Evidence.Scan,
		sshProbe: a.cfg.Evidence.SSHProbe,
	}); err != nil {
		return err
	}

	mux := http.NewServeMux()
	handler.NewReconcileHandler(a.rec).Routes(mux)
	mux.Handle("GET /events", sseHub)

	listen := opts.listen
	if listen == "" {
		listen = a.cfg.Server.Listen
	}
	server := &http.Server{
		Addr:         listen,
		Handler:      handler.Chain(mux, handler.Recover, handler.Logger),
		ReadTimeout:  a.cfg.Server.ReadTimeout.Or(10 * time.Second),
		// SSE streams stay open, so no write timeout unless configured
		WriteTimeout: a.cfg.Server.WriteTimeout.Or(0),
		IdleTimeout:  60 * time.Second,
	}

	errc := make(chan error, 1)
	go func() {
		slog.Info("Server listening", "addr", listen)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errc <- err
		}
		close(errc)
	}()

	select {
	case err := <-errc:
		if err != nil {
			return err
		}
	case <-ctx.Done():
	}

	slog.Info("Shutting down server...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		slog.Warn("Server shutdown error", "error", err)
	}
	stop()
	wg.Wait()
	slog.Info("Server stopped")
	return nil
}

// submitLine adapts the reconciler to the tailer
func submitLine(rec *service.Reconciler) watcher.SubmitFunc {
	return func(ctx context.Context, data []byte, source *evidence.Source) error {
		_, err := rec.SubmitEncoded(ctx, data, source)
		return err
	}
}
