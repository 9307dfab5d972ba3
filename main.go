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
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"
)

const shutdownTimeout = 10 * time.Second

var (
	settingsPath string
	apiKey       string
	promptPath   string
	templatePath string
	debugMode    bool
	listenAddr   string
	outputPath   string
)

var rootCmd = &cobra.Command{
	Use:   "article-extractor",
	Short: "Extract full article text for every URL in a spreadsheet",
	Long: `Reads a spreadsheet of article names and URLs, asks Gemini for the body
text of each article and collects the results into one text file.`,
	SilenceUsage: true,
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the upload page and batch API",
	Args:  cobra.NoArgs,
	RunE:  runServe,
}

var extractCmd = &cobra.Command{
	Use:   "extract <spreadsheet>",
	Short: "Process a spreadsheet and write the extracted text to a file",
	Args:  cobra.ExactArgs(1),
	RunE:  runExtract,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&settingsPath, "config", "", "Path to settings YAML (default: ./settings.yaml if present)")
	rootCmd.PersistentFlags().StringVar(&apiKey, "api-key", "", "Gemini API key (default: $API_KEY)")
	rootCmd.PersistentFlags().StringVar(&promptPath, "prompt", "", "Path to custom extraction prompt template")
	rootCmd.PersistentFlags().StringVar(&templatePath, "template", "", "Path to custom export block template")
	rootCmd.PersistentFlags().BoolVar(&debugMode, "debug", false, "Enable debug logging")

	serveCmd.Flags().StringVar(&listenAddr, "addr", "", "Listen address (default from settings)")
	extractCmd.Flags().StringVarP(&outputPath, "output", "o", "", "Output file (default from settings)")

	rootCmd.AddCommand(serveCmd, extractCmd)
}

// app bundles the components shared by both commands
type app struct {
	config    *Config
	logger    Logger
	metrics   *Metrics
	processor *BatchProcessor
	exporter  *ExportWriter
}

func loadConfig() (*Config, error) {
	overrides := &ConfigOverrides{}
	if settingsPath != "" {
		overrides.SettingsPath = &settingsPath
	}
	if promptPath != "" {
		overrides.PromptPath = &promptPath
	}
	if templatePath != "" {
		overrides.TemplatePath = &templatePath
	}

	cfg, err := NewConfig(overrides)
	if err != nil {
		return nil, err
	}
	if apiKey != "" {
		cfg.Settings.Agent.APIKey = apiKey
	}
	if debugMode {
		cfg.Settings.Log.Level = "debug"
		cfg.Settings.Log.Development = true
	}
	return cfg, nil
}

func newApp(ctx context.Context, cfg *Config, logger Logger) (*app, error) {
	var generator Generator
	agent, err := NewGeminiAgent(ctx, cfg.Settings.Agent)
	switch {
	case errors.Is(err, ErrMissingCredential):
		logger.Warn("API key not set, every article will fail until API_KEY is configured")
	case err != nil:
		return nil, fmt.Errorf("creating agent: %w", err)
	default:
		generator = agent
	}

	prompt, err := cfg.GetPrompt()
	if err != nil {
		return nil, err
	}
	fetcher, err := NewArticleFetcher(generator, prompt, cfg.Settings.Fetcher.MinContentChars, logger)
	if err != nil {
		return nil, err
	}

	blockTemplate, err := cfg.GetTemplate()
	if err != nil {
		return nil, err
	}
	exporter, err := NewExportWriter(blockTemplate, cfg.Settings.Export)
	if err != nil {
		return nil, err
	}

	metrics := NewMetrics()
	retrying := NewRetryingFetcher(fetcher, cfg.Settings.Retry, logger, metrics)

	return &app{
		config:    cfg,
		logger:    logger,
		metrics:   metrics,
		processor: NewBatchProcessor(retrying, cfg.Settings.Spreadsheet, logger, metrics),
		exporter:  exporter,
	}, nil
}

func setup(ctx context.Context) (*app, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}

	logger, err := NewLogger(cfg.Settings.Log)
	if err != nil {
		return nil, err
	}

	a, err := newApp(ctx, cfg, logger)
	if err != nil {
		_ = logger.Sync()
		return nil, err
	}
	return a, nil
}

func runServe(cmd *cobra.Command, _ []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := setup(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = a.logger.Sync() }()

	addr := a.config.Settings.Server.Addr
	if listenAddr != "" {
		addr = listenAddr
	}
	if !debugMode {
		gin.SetMode(gin.ReleaseMode)
	}

	handler := NewBatchHandler(ctx, a.processor, a.exporter, a.config.Settings.Spreadsheet, a.config.Settings.Server.MaxUploadMB, a.logger)
	srv := &http.Server{
		Addr:              addr,
		Handler:           NewRouter(handler, a.metrics, a.logger),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		a.logger.Info("Server listening", String("addr", addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("server: %w", err)
		}
	case <-ctx.Done():
	}

	a.logger.Info("Shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		a.logger.Error("Server shutdown failed", Err(err))
	}

	// the cancelled context makes remaining fetches fail fast
	a.processor.Wait()
	return nil
}

func runExtract(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := setup(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = a.logger.Sync() }()

	path := args[0]
	a.processor.OnChange(func(s Snapshot) {
		a.logger.Debug("Batch progress",
			String("phase", string(s.Phase)),
			Int("succeeded", s.Summary.Succeeded),
			Int("failed", s.Summary.Failed),
			Int("total", s.Summary.Total),
		)
	})

	open := func() (io.ReadCloser, error) { return os.Open(path) }
	if err := a.processor.Submit(ctx, filepath.Base(path), open); err != nil {
		return fmt.Errorf("%s: %w", UserMessage(err, a.config.Settings.Spreadsheet), err)
	}
	a.processor.Wait()

	snap := a.processor.Snapshot()
	for _, r := range snap.Records {
		if r.Status == StatusFailed {
			a.logger.Warn("Article not extracted", String("name", r.Name), String("url", r.URL), String("reason", r.Error))
		}
	}

	data, err := a.exporter.Export(snap.Records)
	if err != nil {
		return fmt.Errorf("exporting %d records: %w", len(snap.Records), err)
	}

	out := outputPath
	if out == "" {
		out = a.exporter.Filename()
	}
	if err := os.WriteFile(out, data, 0644); err != nil {
		return fmt.Errorf("writing %s: %w", out, err)
	}

	a.logger.Info("Export written",
		String("path", out),
		Int("succeeded", snap.Summary.Succeeded),
		Int("failed", snap.Summary.Failed),
	)
	return nil
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
}
