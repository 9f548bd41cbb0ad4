// Package main provides the litgraph CLI: discovery, integration and maintenance
// of the publication table and knowledge graph.
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/athapong/litgraph/pkg/config"
	"github.com/athapong/litgraph/pkg/ingest"
	"github.com/athapong/litgraph/services"
)

var (
	envFile  string
	logLevel string

	logger = logrus.New()
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		logger.WithError(err).Error("Command failed")
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "litgraph",
	Short: "Literature knowledge graph builder",
	Long: `litgraph discovers publications around a seed set of DOIs through the
Semantic Scholar citation graph, stores them in an append-only partitioned
publication table and integrates each partition into a knowledge graph of
publications, sentences and lexical forms.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		level, err := logrus.ParseLevel(logLevel)
		if err != nil {
			return err
		}
		logger.SetLevel(level)
		logger.SetFormatter(&logrus.TextFormatter{
			FullTimestamp: true,
		})
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&envFile, "env", ".env", "Path to environment file")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "info", "Logging level (debug, info, warn, error)")
}

// openStack loads configuration, connects every backend and starts the
// metrics endpoint when METRICS_ADDR is set. The returned func releases it all.
func openStack(ctx context.Context) (*services.Stack, func(), error) {
	cfg, err := config.Load(envFile)
	if err != nil {
		return nil, nil, err
	}
	stack, err := services.Open(ctx, cfg, logger)
	if err != nil {
		return nil, nil, err
	}

	var srv *http.Server
	if cfg.MetricsAddr != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.Handler())
		srv = &http.Server{Addr: cfg.MetricsAddr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
		go func() {
			logger.WithField("addr", cfg.MetricsAddr).Info("Serving metrics")
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.WithError(err).Error("Metrics server stopped")
			}
		}()
	}

	closeAll := func() {
		if srv != nil {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = srv.Shutdown(shutdownCtx)
		}
		stack.Close(context.Background())
	}
	return stack, closeAll, nil
}

func logSummary(sum *ingest.Summary) {
	logger.WithFields(logrus.Fields{
		"run_id":        sum.RunID,
		"partitions":    sum.Partitions,
		"publications":  sum.Publications,
		"sentences":     sum.Sentences,
		"links":         sum.Links,
		"cooccurrences": sum.Cooccurrences,
		"synonyms":      sum.Synonyms,
	}).Info("Done")
}
