package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"slices"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/vanderheijden86/gridrows/pkg/metrics"
	"github.com/vanderheijden86/gridrows/pkg/watcher"
)

func newWatchCommand(o *rootOptions) *cobra.Command {
	var debounce time.Duration
	var metricsAddr string

	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Reprint the model whenever a data file changes",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			s, err := o.newSession(ctx)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if err := s.print(out); err != nil {
				return err
			}

			g, ctx := errgroup.WithContext(ctx)
			if metricsAddr != "" {
				srv, err := metricsServer(metricsAddr)
				if err != nil {
					return err
				}
				g.Go(func() error {
					if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
						return err
					}
					return nil
				})
				g.Go(func() error {
					<-ctx.Done()
					shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
					defer cancel()
					return srv.Shutdown(shutdownCtx)
				})
			}

			paths := slices.Clone(o.dataPaths)
			cfgPath := o.configFile()
			if cfgPath != "" {
				paths = append(paths, cfgPath)
			}
			w, err := watcher.New(paths, watcher.WithDebounce(debounce))
			if err != nil {
				return err
			}
			var cfgAbs string
			if cfgPath != "" {
				cfgAbs, _ = filepath.Abs(cfgPath)
			}

			reload := func(ctx context.Context, changed []string) error {
				return s.onChange(ctx, out, cfgAbs, changed)
			}
			onErr := func(err error) {
				o.logger.Warn("watch error", zap.Error(err))
			}
			g.Go(func() error {
				err := watcher.Run(ctx, w, reload, onErr)
				if errors.Is(err, context.Canceled) {
					return nil
				}
				return err
			})
			o.logger.Info("watching", zap.Strings("paths", w.Paths()))
			return g.Wait()
		},
	}
	cmd.Flags().DurationVar(&debounce, "debounce", watcher.DefaultDebounceDuration, "Quiet period before a change triggers a reload")
	cmd.Flags().StringVar(&metricsAddr, "metrics-addr", "", "Serve Prometheus pass timings on this address (e.g. :9090)")
	return cmd
}

// onChange handles one watcher batch. When the config fails to load the
// previous model stays in place, still picks up changed data and the config
// error is returned after the reprint.
func (s *session) onChange(ctx context.Context, out io.Writer, cfgAbs string, changed []string) error {
	var cfgErr error
	if cfgAbs != "" && slices.Contains(changed, cfgAbs) {
		if cfgErr = s.configure(); cfgErr != nil {
			if len(changed) == 1 {
				return cfgErr
			}
		} else {
			s.opts.logger.Info("config reloaded", zap.String("path", cfgAbs))
		}
	}
	if err := s.reload(ctx); err != nil {
		return errors.Join(cfgErr, err)
	}
	fmt.Fprintln(out)
	if err := s.print(out); err != nil {
		return err
	}
	return cfgErr
}

func metricsServer(addr string) (*http.Server, error) {
	reg := prometheus.NewRegistry()
	if err := metrics.Register(reg); err != nil {
		return nil, err
	}
	metrics.SetEnabled(true)
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	return &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}, nil
}
