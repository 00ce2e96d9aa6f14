package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/lukman83/kidkazz-catalog/config"
	"github.com/lukman83/kidkazz-catalog/internal/cache"
	"github.com/lukman83/kidkazz-catalog/internal/httputil"
	"github.com/lukman83/kidkazz-catalog/internal/imagery"
	"github.com/lukman83/kidkazz-catalog/internal/instrument"
	"github.com/lukman83/kidkazz-catalog/internal/logging"
	"github.com/lukman83/kidkazz-catalog/internal/ozon"
	"github.com/lukman83/kidkazz-catalog/internal/pipeline"
	"github.com/lukman83/kidkazz-catalog/internal/platform"
	"github.com/lukman83/kidkazz-catalog/internal/store"
	"github.com/lukman83/kidkazz-catalog/internal/transport"
	"github.com/lukman83/kidkazz-catalog/internal/wildberries"
)

var (
	cfg    *config.Config
	logger *slog.Logger
)

var rootCmd = &cobra.Command{
	Use:               "kidkazz-catalog",
	Short:             "KidKazz Catalog - marketplace product catalog with image resolution",
	Long:              "Searches Wildberries and Ozon, normalizes prices and stock, resolves a working product image and stores the result.",
	SilenceUsage:      true,
	PersistentPreRunE: initConfig,
}

func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		stop()
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	flags := rootCmd.PersistentFlags()
	flags.String("config", "", "Path to a TOML config file (default ./kidkazz.toml or $KIDKAZZ_CONFIG)")
	flags.String("platform", "", "Target marketplace: wildberries (wb), ozon (oz)")
	flags.String("delay-profile", "", "Delay profile: cautious, normal, aggressive, none")
	flags.Bool("respect-robots", true, "Respect robots.txt rules")
	flags.Bool("headless", false, "Allow the headless browser fallback for Ozon")
	flags.String("store", "", "Store driver: memory, sqlite, postgres")
	flags.String("db", "", "SQLite database path")
	flags.String("log-level", "", "Log level: debug, info, warn, error")
	flags.String("log-format", "", "Log format: console, json")
}

func initConfig(cmd *cobra.Command, _ []string) error {
	path, _ := cmd.Flags().GetString("config")
	loaded, err := config.Load(path)
	if err != nil {
		return err
	}
	cfg = loaded

	// Override from flags
	flags := cmd.Flags()
	if v, _ := flags.GetString("platform"); v != "" {
		cfg.General.DefaultPlatform = v
	}
	if v, _ := flags.GetString("delay-profile"); v != "" {
		cfg.General.DelayProfile = v
	}
	if flags.Changed("respect-robots") {
		cfg.General.RespectRobots, _ = flags.GetBool("respect-robots")
	}
	if v, _ := flags.GetBool("headless"); v {
		cfg.General.Headless = true
	}
	if v, _ := flags.GetString("store"); v != "" {
		cfg.Store.Driver = v
	}
	if v, _ := flags.GetString("db"); v != "" {
		cfg.Store.Path = v
	}
	if v, _ := flags.GetString("log-level"); v != "" {
		cfg.Log.Level = v
	}
	if v, _ := flags.GetString("log-format"); v != "" {
		cfg.Log.Format = v
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	logger, err = logging.New(logging.Options{Level: cfg.Log.Level, Format: cfg.Log.Format, Output: os.Stderr})
	return err
}

// app is everything a command needs, built from cfg.
type app struct {
	pipeline *pipeline.Pipeline
	inst     *instrument.Instrumenter
	store    store.Store
	stop     context.CancelFunc
}

func (a *app) Close() error {
	a.stop()
	return a.store.Close()
}

// buildHTTPClient creates the polite client used for search, detail and
// hint traffic.
func buildHTTPClient() *http.Client {
	polite := transport.New(httputil.NewBaseTransport(10), &http.Client{}, transport.Options{
		RespectRobots: cfg.General.RespectRobots,
		DelayProfile:  transport.DelayProfile(cfg.General.DelayProfile),
		RatePerSecond: cfg.Rate.RatePerSecond,
		RateBurst:     cfg.Rate.RateBurst,
		Logger:        logger,
	})
	return httputil.NewHTTPClient(polite)
}

// buildRegistry registers all available marketplace adapters.
func buildRegistry() *platform.Registry {
	client := buildHTTPClient()
	return platform.NewRegistry(
		wildberries.New(client, wildberries.Options{MaxRetries: cfg.Rate.MaxRetries, Logger: logger}),
		ozon.New(client, ozon.Options{Headless: cfg.General.Headless, MaxRetries: cfg.Rate.MaxRetries, Logger: logger}),
	)
}

func newApp(ctx context.Context) (*app, error) {
	if cfg == nil {
		return nil, errors.New("configuration not loaded")
	}
	st, err := store.Open(ctx, store.Config{Driver: cfg.Store.Driver, Path: cfg.Store.Path, DSN: cfg.Store.DSN}, logger)
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}

	janitorCtx, stop := context.WithCancel(context.Background())
	mem := cache.NewMemory()
	go mem.RunJanitor(janitorCtx, cfg.Images.CacheJanitorEvery.Duration)
	c := cache.New(mem, logger)

	img := cfg.Images
	// resolve_retries = 0 turns top-level retries off.
	retries := img.ResolveRetries
	if retries == 0 {
		retries = -1
	}
	inst := instrument.New(nil, logger)
	cdn := httputil.NewCDNClient(img.CDNConnsPerHost)
	resolver := imagery.NewResolver(
		imagery.NewGenerator(c, imagery.GeneratorOptions{
			MaxCandidates: img.MaxCandidates,
			MaxHints:      img.MaxHints,
			TemplateTTL:   img.ValidationTTL.Duration,
		}),
		imagery.NewHints(c, img.HintTTL.Duration, logger),
		imagery.NewValidator(cdn, c, imagery.ValidatorOptions{
			ProbeTimeout:  img.ProbeTimeout.Duration,
			BatchSize:     img.BatchSize,
			MaxConcurrent: img.MaxProbes,
			CacheTTL:      img.ValidationTTL.Duration,
			Logger:        logger,
		}),
		imagery.NewAcquirer(cdn, c, imagery.AcquirerOptions{
			TopN:          img.TopN,
			Timeout:       img.DownloadTimeout.Duration,
			Attempts:      img.DownloadAttempts,
			MaxConcurrent: img.MaxDownloads,
			CacheTTL:      img.ValidationTTL.Duration,
			Logger:        logger,
		}),
		imagery.ResolverOptions{
			Budget:          img.Budget.Duration,
			MaxRetries:      retries,
			FallbackTimeout: img.FallbackTimeout.Duration,
			Logger:          logger,
			Instrumenter:    inst,
		},
	)

	p := pipeline.New(buildRegistry(), resolver, st, pipeline.Options{
		MaxConcurrent: cfg.Rate.MaxConcurrent,
		Logger:        logger,
		Instrumenter:  inst,
	})
	return &app{pipeline: p, inst: inst, store: st, stop: stop}, nil
}

// platformFlag returns the --platform value or the configured default.
func platformFlag(cmd *cobra.Command) string {
	if v, _ := cmd.Flags().GetString("platform"); v != "" {
		return v
	}
	return cfg.General.DefaultPlatform
}
