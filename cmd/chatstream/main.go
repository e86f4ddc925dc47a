package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/mayurmacwan/chatstream-go/chatapi"
	"github.com/mayurmacwan/chatstream-go/config"
	"github.com/mayurmacwan/chatstream-go/upload"
	"github.com/sanity-io/litter"
	"github.com/spf13/cobra"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var (
	// Global flags
	verbose bool
	envFile string
	baseURL string
	dump    bool

	cfg            config.Config
	logger         *zap.Logger
	tracerProvider *sdktrace.TracerProvider
)

var rootCmd = &cobra.Command{
	Use:   "chatstream",
	Short: "Client for a streaming answer-serving backend",
	Long: `chatstream talks to a backend that streams answers as newline-delimited JSON.

It assembles streamed answers as they arrive, shows the agent's thinking steps
and citations, and uploads documents with automatic retries on network errors.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var files []string
		if envFile != "" {
			files = append(files, envFile)
		}
		var err error
		cfg, err = config.Load(files...)
		if err != nil {
			return fmt.Errorf("failed to load config: %w", err)
		}
		if baseURL != "" {
			cfg.BaseURL = baseURL
		}

		logger, err = newLogger(cfg.LogLevel, verbose)
		if err != nil {
			return fmt.Errorf("failed to initialize logger: %w", err)
		}

		if cfg.OTLPEndpoint != "" {
			tracerProvider, err = initTracing(cmd.Context(), cfg.OTLPEndpoint)
			if err != nil {
				return err
			}
			logger.Debug("trace export enabled", zap.String("endpoint", cfg.OTLPEndpoint))
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if tracerProvider != nil {
			if err := tracerProvider.Shutdown(context.Background()); err != nil {
				logger.Warn("failed to flush traces", zap.Error(err))
			}
			tracerProvider = nil
		}
		if logger != nil {
			_ = logger.Sync()
		}
	},
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable debug logging")
	rootCmd.PersistentFlags().StringVar(&envFile, "env-file", "", "Load environment from this file instead of .env")
	rootCmd.PersistentFlags().StringVar(&baseURL, "base-url", "", "Backend base URL (overrides CHATSTREAM_BASE_URL)")
	rootCmd.PersistentFlags().BoolVar(&dump, "dump", false, "Dump results as Go values")

	rootCmd.AddCommand(askCmd, chatCmd, uploadCmd, documentsCmd, thinkingCmd, decodeCmd)
}

// newLogger builds a production logger at level, or debug when verbose.
func newLogger(level string, verbose bool) (*zap.Logger, error) {
	config := zap.NewProductionConfig()
	lvl, err := zapcore.ParseLevel(level)
	if err != nil {
		lvl = zapcore.InfoLevel
	}
	if verbose {
		lvl = zapcore.DebugLevel
	}
	config.Level = zap.NewAtomicLevelAt(lvl)
	return config.Build()
}

func newClient(notify func(string)) *chatapi.Client {
	return chatapi.NewClient(chatapi.ClientOptions{
		BaseURL:          cfg.BaseURL,
		HTTPClient:       &http.Client{Timeout: cfg.Timeout},
		Logger:           logger,
		SnapshotInterval: cfg.SnapshotInterval,
		Uploader: upload.NewController(
			upload.WithRetryDelay(cfg.UploadRetryDelay),
			upload.WithMaxBytes(cfg.UploadMaxBytes),
			upload.WithNotify(notify),
			upload.WithLogger(logger),
		),
	})
}

func dumpValue(cmd *cobra.Command, v any) {
	fmt.Fprintln(cmd.OutOrStdout(), litter.Sdump(v))
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
