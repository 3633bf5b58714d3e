// Command orbit runs the warehouse robot coordination service.
//
// Logging:
//   - Base logger is created here with output format and level
//   - Logger is passed to all components via dependency injection
//   - No global slog configuration (no slog.SetDefault)
//   - Components scope loggers with their own attributes
package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	_ "net/http/pprof"
	"os"
	"os/signal"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/time/rate"

	"orbit/internal/archive"
	"orbit/internal/coordinator"
	"orbit/internal/logging"
	"orbit/internal/planner"
	"orbit/internal/reconcile"
	"orbit/internal/render"
	"orbit/internal/router"
	"orbit/internal/scan"
)

var version = "dev"

func main() {
	baseHandler := slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.LevelDebug, // Allow all levels; filtering done by ComponentFilterHandler
	})
	filterHandler := logging.NewComponentFilterHandler(baseHandler, slog.LevelInfo)
	logger := slog.New(filterHandler)

	rootCmd := &cobra.Command{
		Use:   "orbit",
		Short: "Warehouse robot coordination service",
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			pprofAddr, _ := cmd.Flags().GetString("pprof")
			if pprofAddr != "" {
				go func() {
					logger.Info("pprof server listening", "addr", pprofAddr)
					if err := http.ListenAndServe(pprofAddr, nil); err != nil {
						logger.Error("pprof server error", "error", err)
					}
				}()
			}
			return nil
		},
	}
	rootCmd.PersistentFlags().String("pprof", "", "pprof HTTP server address (e.g. localhost:6060). WARNING: exposes CPU/memory profiles and goroutine dumps; bind to loopback only, never expose publicly")

	serverCmd := &cobra.Command{
		Use:   "server",
		Short: "Start the orbit service",
		RunE: func(cmd *cobra.Command, args []string) error {
			opts, err := optionsFromCmd(cmd)
			if err != nil {
				return err
			}
			// The filter handler's default level is fixed at construction,
			// so the server logger is built after flag parsing.
			serverLogger := slog.New(logging.NewComponentFilterHandler(baseHandler, opts.logLevel))
			ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
			defer cancel()
			return run(ctx, serverLogger, opts)
		},
	}
	serverCmd.Flags().String("broker", envOr("ORBIT_BROKER", "mem://"), "broker url: mem://, mqtt://[user:pass@]host:port, mqtt5://[user:pass@]host:port, kafka://host[,host]/group")
	serverCmd.Flags().String("store", envOr("ORBIT_STORE", "mem://"), "inventory store url: mem:// or sqlite:///path/to/orbit.db")
	serverCmd.Flags().String("translate", envOr("ORBIT_TRANSLATE", "static://"), "job type source url: static://, file:///path/to/types.json, or sqlite:///path/to/types.db")
	serverCmd.Flags().String("blob", envOr("ORBIT_BLOB", "mem://"), "blob store url: mem://, file:///dir, azblob://, s3://bucket, or gs://bucket")
	serverCmd.Flags().String("archive-dir", envOr("ORBIT_ARCHIVE_DIR", ""), "directory for the message archive (empty disables archiving)")
	serverCmd.Flags().String("content-type", "application/json", "reply encoding: application/json or application/msgpack")
	serverCmd.Flags().Duration("render-refresh", 0, "periodic render rebuild interval (0 disables)")
	serverCmd.Flags().Duration("partial-sweep", 0, "periodic partial-detection sweep interval (0 disables)")
	serverCmd.Flags().Float64("publish-rate", 0, "outbound publish rate limit in messages/second (0 means unlimited)")
	serverCmd.Flags().String("log-level", "info", "default log level: debug, info, warn, or error")

	versionCmd := &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Println(version)
		},
	}

	rootCmd.AddCommand(serverCmd, versionCmd)

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// options carries the resolved server flags.
type options struct {
	brokerURL    string
	storeURL     string
	translateURL string
	blobURL      string
	archiveDir   string
	contentType  string
	renderEvery  time.Duration
	sweepEvery   time.Duration
	publishRate  float64
	logLevel     slog.Level
}

func optionsFromCmd(cmd *cobra.Command) (options, error) {
	var opts options
	opts.brokerURL, _ = cmd.Flags().GetString("broker")
	opts.storeURL, _ = cmd.Flags().GetString("store")
	opts.translateURL, _ = cmd.Flags().GetString("translate")
	opts.blobURL, _ = cmd.Flags().GetString("blob")
	opts.archiveDir, _ = cmd.Flags().GetString("archive-dir")
	opts.contentType, _ = cmd.Flags().GetString("content-type")
	opts.renderEvery, _ = cmd.Flags().GetDuration("render-refresh")
	opts.sweepEvery, _ = cmd.Flags().GetDuration("partial-sweep")
	opts.publishRate, _ = cmd.Flags().GetFloat64("publish-rate")

	levelStr, _ := cmd.Flags().GetString("log-level")
	level, err := logging.ParseLevel(levelStr)
	if err != nil {
		return options{}, err
	}
	opts.logLevel = level
	return opts, nil
}

func run(ctx context.Context, logger *slog.Logger, opts options) error {
	store, err := openStore(opts.storeURL)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer store.Close()
	logger.Info("opened inventory store", "url", opts.storeURL)

	blobs, err := openBlob(ctx, opts.blobURL, logger)
	if err != nil {
		return fmt.Errorf("open blob store: %w", err)
	}
	defer blobs.Close()

	types, err := openTranslate(ctx, opts.translateURL, logger)
	if err != nil {
		return fmt.Errorf("open job type source: %w", err)
	}
	if c, ok := types.(io.Closer); ok {
		defer c.Close()
	}

	conn, err := openBroker(ctx, opts.brokerURL, logger)
	if err != nil {
		return fmt.Errorf("open broker: %w", err)
	}
	logger.Info("connected to broker", "url", opts.brokerURL)

	var tap router.Tap
	if opts.archiveDir != "" {
		arc, err := archive.Open(archive.Config{Dir: opts.archiveDir, Logger: logger})
		if err != nil {
			return fmt.Errorf("open archive: %w", err)
		}
		tap = arc
		logger.Info("archiving messages", "dir", opts.archiveDir)
	}

	coord, err := coordinator.New(coordinator.Config{
		ContentType:   opts.contentType,
		RenderRefresh: opts.renderEvery,
		PartialSweep:  opts.sweepEvery,
		PublishRate:   rate.Limit(opts.publishRate),
	}, coordinator.Deps{
		Conn:       conn,
		Store:      store,
		Planner:    planner.New(planner.Config{Store: store, Types: types, Logger: logger}),
		Reconciler: reconcile.New(reconcile.Config{Store: store, Logger: logger}),
		Ingester:   scan.NewIngester(scan.IngesterConfig{Store: store, Blobs: blobs, Logger: logger}),
		Compiler:   scan.NewCompiler(scan.CompilerConfig{Store: store, Logger: logger}),
		Renders:    render.New(render.Config{Store: store, Logger: logger}),
		Archive:    tap,
		Logger:     logger,
	})
	if err != nil {
		return err
	}

	logger.Info("orbit started", "version", version)
	return coord.Run(ctx)
}

// envOr returns the environment value when set, the fallback otherwise.
func envOr(name, fallback string) string {
	if v := os.Getenv(name); v != "" {
		return v
	}
	return fallback
}
