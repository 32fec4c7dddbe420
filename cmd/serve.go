package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"obesityboard/db"
	qhttp "obesityboard/http"
	"obesityboard/monitoring"
	"obesityboard/pipeline"
)

var (
	servePort  int
	serveData  string
	serveWatch bool
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Train once and serve the dashboard",
	RunE: func(cmd *cobra.Command, args []string) error {
		f := cmd.Flags()
		if f.Changed("port") {
			cfg.HTTP.Port = servePort
		}
		if f.Changed("data") {
			cfg.Dataset.Path = serveData
		}
		if f.Changed("watch") {
			cfg.Dataset.Watch = serveWatch
		}
		return serve(cmd.Context())
	},
}

func init() {
	serveCmd.Flags().IntVar(&servePort, "port", 0, "HTTP port (overrides config)")
	serveCmd.Flags().StringVar(&serveData, "data", "", "dataset CSV path (overrides config)")
	serveCmd.Flags().BoolVar(&serveWatch, "watch", false, "retrain when the dataset file changes")
	rootCmd.AddCommand(serveCmd)
}

func serve(parent context.Context) error {
	ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer stop()

	store, err := openStore(cfg)
	if err != nil {
		return err
	}
	if store != nil {
		defer store.Close()
	}

	dashboard := monitoring.NewDashboard()
	metrics := monitoring.NewMetricsCollector()
	metrics.Describe("model_accuracy", "Test-set accuracy of the current model")
	metrics.Describe("pipeline_runs_total", "Pipeline runs by outcome")

	publish := func(result *pipeline.Result) {
		version := dashboard.Swap(result)
		metrics.IncrCounter("pipeline_runs_total", 1, map[string]string{"outcome": "ok"})
		metrics.SetGauge("model_accuracy", result.Report.Accuracy, nil)
		metrics.SetGauge("dataset_rows", float64(len(result.Records)), nil)
		log.Info("snapshot published",
			zap.String("run_id", result.RunID),
			zap.Uint64("version", version),
			zap.Float64("accuracy", result.Report.Accuracy))
		if store != nil {
			if err := store.SaveRun(ctx, result); err != nil {
				log.Warn("save run", zap.Error(err))
			}
		}
		if err := saveBundle(result, cfg.Model.Path, log); err != nil {
			log.Warn("save model bundle", zap.Error(err))
		}
	}
	reload := func(ctx context.Context) (*pipeline.Result, error) {
		return runPipeline(ctx, cfg, log, pipeline.Options{})
	}

	result, err := reload(ctx)
	if err != nil {
		return err
	}
	publish(result)

	if cfg.Dataset.Watch {
		watcher := pipeline.NewWatcher(pipeline.WatcherConfig{
			Path:     cfg.Dataset.Path,
			Debounce: cfg.Dataset.Debounce(),
			OnResult: publish,
			OnError: func(err error) {
				dashboard.RecordFailure(err)
				metrics.IncrCounter("pipeline_runs_total", 1, map[string]string{"outcome": "error"})
			},
		}, reload, log)
		if err := watcher.Start(ctx); err != nil {
			return err
		}
		defer watcher.Stop()
	}

	hub := monitoring.NewWebSocketHub(cfg.HTTP.AllowedOrigins, log)
	go hub.Start()
	defer hub.Stop()
	go hub.Relay(ctx, dashboard)

	deps := qhttp.Deps{Dashboard: dashboard, Hub: hub, Metrics: metrics, Logger: log}
	if store != nil {
		deps.Runs = store
	}
	server, err := qhttp.NewServer(cfg.HTTP.Server(), deps)
	if err != nil {
		return err
	}

	errc := make(chan error, 1)
	go func() { errc <- server.Start() }()

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return server.Stop(shutdownCtx)
}

var _ qhttp.RunLister = (*db.Store)(nil)
