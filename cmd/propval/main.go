// Command propval trains the property valuation model and serves its
// predictions over HTTP.
//
//	propval train [config/training.yaml]
//	propval serve [--host 0.0.0.0] [--port 8000] [--env-file .env]
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"sort"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/YuminosukeSato/propval/api"
	"github.com/YuminosukeSato/propval/config"
	"github.com/YuminosukeSato/propval/pkg/log"
	"github.com/YuminosukeSato/propval/service"
	"github.com/YuminosukeSato/propval/training"
)

const (
	defaultConfigPath = "config/training.yaml"
	shutdownTimeout   = 10 * time.Second
)

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

func run(args []string, stdout, stderr io.Writer) int {
	if len(args) == 0 {
		usage(stderr)
		return 2
	}
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var err error
	switch args[0] {
	case "train":
		err = train(ctx, args[1:], stdout, stderr)
	case "serve":
		err = serve(ctx, args[1:], stderr)
	case "-h", "--help", "help":
		usage(stdout)
		return 0
	default:
		fmt.Fprintf(stderr, "unknown command %q\n", args[0])
		usage(stderr)
		return 2
	}
	if err != nil {
		fmt.Fprintln(stderr, err)
		return 1
	}
	return 0
}

func usage(w io.Writer) {
	fmt.Fprintln(w, "usage:")
	fmt.Fprintln(w, "  propval train [config-path]            (default "+defaultConfigPath+")")
	fmt.Fprintln(w, "  propval serve [--host H] [--port P] [--env-file F]")
}

// ===========================================================================
//
//	train
//
// ===========================================================================

func train(ctx context.Context, args []string, stdout, stderr io.Writer) error {
	fs := flag.NewFlagSet("train", flag.ContinueOnError)
	fs.SetOutput(stderr)
	logFile := fs.String("log-file", "", "also write logs to this file (rotated)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	path := defaultConfigPath
	if fs.NArg() > 0 {
		path = fs.Arg(0)
	}

	cfg, err := config.LoadTrainingConfig(path)
	if err != nil {
		return err
	}
	closeLog, err := setupLogging(cfg.LogLevel(), *logFile, stderr)
	if err != nil {
		return err
	}
	defer closeLog()

	res, err := training.Run(ctx, cfg)
	if err != nil {
		return err
	}

	fmt.Fprintf(stdout, "Training completed (run %s)\n", res.RunID)
	names := make([]string, 0, len(res.Metrics))
	for name := range res.Metrics {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		fmt.Fprintf(stdout, "  %s: %.6g\n", name, res.Metrics[name])
	}
	fmt.Fprintf(stdout, "Artifacts written to %s\n", cfg.ArtifactsDir())
	return nil
}

// ===========================================================================
//
//	serve
//
// ===========================================================================

func serve(ctx context.Context, args []string, stderr io.Writer) error {
	fs := flag.NewFlagSet("serve", flag.ContinueOnError)
	fs.SetOutput(stderr)
	host := fs.String("host", "", "listen host (default "+config.EnvPrefix+"_HOST or 0.0.0.0)")
	port := fs.Int("port", 0, "listen port (default "+config.EnvPrefix+"_PORT or 8000)")
	envFile := fs.String("env-file", ".env", "dotenv file with "+config.EnvPrefix+"_* defaults")
	logFile := fs.String("log-file", "", "also write logs to this file (rotated)")
	if err := fs.Parse(args); err != nil {
		return err
	}

	settings, err := config.LoadAPISettings(*envFile)
	if err != nil {
		return err
	}
	if *host != "" {
		settings.Host = *host
	}
	if *port != 0 {
		settings.Port = *port
	}
	if err := settings.Validate(); err != nil {
		return err
	}

	closeLog, err := setupLogging(settings.LogLevel, *logFile, stderr)
	if err != nil {
		return err
	}
	defer closeLog()
	logger := log.GetLoggerWithName("cmd.serve")

	svc := service.New(settings.ModelPath, settings.FeatureStorePath,
		service.WithPredictionCache(settings.PredictionCacheSize))
	if err := svc.Load(); err != nil {
		return err
	}

	gin.SetMode(gin.ReleaseMode)
	srv := api.NewServer(svc, settings.APIKey, settings.Host, settings.Port)

	errCh := make(chan error, 1)
	go func() { errCh <- srv.ListenAndServe() }()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		logger.Info("Shutdown signal received")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	return <-errCh
}

func setupLogging(level, file string, stderr io.Writer) (func(), error) {
	var opts []log.Option
	if file != "" {
		opts = append(opts, log.WithFile(file, 100, 3))
	}
	closer, err := log.SetupLogger(level, opts...)
	if err != nil {
		return nil, err
	}
	return func() {
		if err := closer(); err != nil {
			fmt.Fprintln(stderr, "closing log file:", err)
		}
	}, nil
}
