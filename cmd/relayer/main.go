package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"github.com/vitwit/wakurelay"
	"github.com/vitwit/wakurelay/logger"
	"github.com/vitwit/wakurelay/metrics"
	"github.com/vitwit/wakurelay/utils"
)

var configPath string

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Runs the relayer.",
	Long:  `Subscribes to the waku relay network, broadcasts fees and relays transact requests until interrupted.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		if len(args) != 0 {
			return fmt.Errorf("trailing args detected")
		}
		cmd.SilenceUsage = true

		cfg, err := utils.LoadConfig(configPath)
		if err != nil {
			return err
		}
		log := logger.NewZapLogger(cfg.LogLevel)

		opts := []wakurelay.Option{wakurelay.WithLogger(log)}
		if cfg.MetricsAddr != "" {
			opts = append(opts, wakurelay.WithMetrics(metrics.NewPrometheusRecorder()))
		}

		r, err := wakurelay.New(cfg, opts...)
		if err != nil {
			return err
		}
		defer r.Close()

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		if cfg.MetricsAddr != "" {
			srv := serveMetrics(cfg.MetricsAddr, log)
			defer func() {
				shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				_ = srv.Shutdown(shutdownCtx)
			}()
		}

		log.Info("relayer starting", map[string]any{"chains": len(cfg.Chains), "waku": cfg.WakuURL})
		if err := r.Start(ctx); err != nil {
			log.Error("relayer stopped", map[string]any{"err": err})
			return err
		}
		log.Info("relayer stopped", nil)
		return nil
	},
}

func serveMetrics(addr string, log logger.Logger) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("metrics server failed", map[string]any{"addr": addr, "err": err})
		}
	}()
	return srv
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Prints version information.",
	Run: func(cmd *cobra.Command, args []string) {
		for k, v := range wakurelay.GetVersion() {
			fmt.Fprintf(cmd.OutOrStdout(), "%s: %v\n", k, v)
		}
	},
}

var mainCmd = &cobra.Command{Use: "relayer"}

func main() {
	runCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "path to the relayer config file")
	mainCmd.AddCommand(runCmd, versionCmd)

	if mainCmd.Execute() != nil {
		os.Exit(1)
	}
}
