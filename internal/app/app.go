package app

import (
	"context"
	"errors"
	"fmt"
	"os/signal"
	"strings"
	"syscall"

	"github.com/rs/zerolog"

	"spotplot/internal/alerting"
	"spotplot/internal/chart"
	"spotplot/internal/config"
	"spotplot/internal/fetcher"
	"spotplot/internal/scheduler"
	"spotplot/internal/service"
	"spotplot/internal/storage"
)

// Source names accepted by --source.
const (
	SourceEC2     = "ec2"
	SourceFile    = "file"
	SourceArchive = "archive"
)

// App aggregates configuration and shared dependencies for the CLI commands.
type App struct {
	Config *config.Config
	Logger zerolog.Logger
}

// NewApp constructs a new application handle.
func NewApp(cfg *config.Config, logger zerolog.Logger) *App {
	return &App{Config: cfg, Logger: logger.With().Str("component", "app").Logger()}
}

// PlotOptions hold per-invocation parameters for plot and watch.
type PlotOptions struct {
	Source    string
	InputPath string
	CSVPath   string
}

// ShowOptions configure the show command.
type ShowOptions struct {
	Limit        int
	InstanceType string
}

func (a *App) newSource(ctx context.Context, opts PlotOptions, store *storage.Store) (fetcher.SpotPriceSource, error) {
	switch strings.ToLower(opts.Source) {
	case "", SourceEC2:
		return fetcher.NewEC2(ctx, fetcher.EC2Options{
			Region:     a.Config.Spot.Region,
			MaxResults: a.Config.Spot.MaxResults,
			MaxPages:   a.Config.Spot.MaxPages,
			Timeout:    a.Config.Spot.RequestTimeout,
		}, a.Logger)
	case SourceFile:
		if opts.InputPath == "" {
			return nil, errors.New("--input is required with --source file")
		}
		return fetcher.NewFile(opts.InputPath, a.Logger), nil
	case SourceArchive:
		if store == nil {
			return nil, errors.New("database.dsn not configured; cannot read from archive")
		}
		return fetcher.NewArchive(store), nil
	default:
		return nil, fmt.Errorf("unknown source %q (want ec2, file or archive)", opts.Source)
	}
}

func (a *App) newNotifier() alerting.Notifier {
	if a.Config.Alerting.Telegram.Enabled {
		cfg := a.Config.Alerting.Telegram
		return alerting.NewTelegramNotifier(cfg.BotToken, cfg.ChatID, cfg.APIBase, cfg.Timeout, a.Logger)
	}
	return nil
}

func (a *App) openStore(ctx context.Context) (*storage.Store, func(), error) {
	if a.Config.Database.DSN == "" {
		return nil, nil, nil
	}

	pool, err := storage.NewPool(ctx, a.Config.Database)
	if err != nil {
		return nil, nil, err
	}

	store := storage.NewStore(pool)
	if err := store.EnsureSchema(ctx); err != nil {
		store.Close()
		return nil, nil, err
	}

	closer := func() {
		store.Close()
	}
	return store, closer, nil
}

func (a *App) serviceOptions(opts PlotOptions) service.Options {
	return service.Options{
		Params:             a.Config.FilterParameters(),
		Region:             a.Config.Spot.Region,
		ProductDescription: a.Config.Spot.ProductDescription,
		ImagePath:          a.Config.Plot.ImageName,
		CSVPath:            opts.CSVPath,
		Chart: chart.Options{
			Width:      a.Config.Plot.Width,
			Height:     a.Config.Plot.Height,
			TimeFormat: a.Config.Plot.TimeFormat,
		},
		ShowMean:       a.Config.Plot.ShowMean,
		ArchiveFetched: !strings.EqualFold(opts.Source, SourceArchive),
		LockKey:        a.Config.Scheduler.AdvisoryLockKey,
	}
}

func (a *App) newService(ctx context.Context, opts PlotOptions) (*service.Service, func(), error) {
	store, closeStore, err := a.openStore(ctx)
	if err != nil {
		return nil, nil, err
	}
	cleanup := func() {
		if closeStore != nil {
			closeStore()
		}
	}

	source, err := a.newSource(ctx, opts, store)
	if err != nil {
		cleanup()
		return nil, nil, err
	}

	var archive storage.PriceArchive
	if store != nil {
		archive = store
	}

	svc := service.New(a.serviceOptions(opts), source, archive, a.newNotifier(), a.Logger)
	return svc, cleanup, nil
}

// Plot fetches, filters, and renders once.
func (a *App) Plot(ctx context.Context, opts PlotOptions) error {
	ctx, cancel := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	svc, cleanup, err := a.newService(ctx, opts)
	if err != nil {
		return err
	}
	defer cleanup()

	if _, err := svc.RunOnce(ctx); err != nil {
		return err
	}

	a.Logger.Info().Msg("done")
	return nil
}

// Watch re-renders the chart on the scheduler interval until interrupted.
func (a *App) Watch(ctx context.Context, opts PlotOptions) error {
	ctx, cancel := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	svc, cleanup, err := a.newService(ctx, opts)
	if err != nil {
		return err
	}
	defer cleanup()

	if a.Config.Database.DSN == "" {
		a.Logger.Warn().Msg("database.dsn not configured; archive and advisory lock disabled")
	}

	sched := scheduler.New(scheduler.Options{
		Interval:       a.Config.Scheduler.Interval,
		AlignToStart:   a.Config.Scheduler.AlignToBucket,
		StartupDelay:   a.Config.Scheduler.StartupDelay,
		RunImmediately: true,
	}, a.Logger)

	a.Logger.Info().Dur("interval", a.Config.Scheduler.Interval).Msg("starting watch")
	err = svc.Watch(ctx, sched)
	if err != nil && !errors.Is(err, context.Canceled) {
		a.Logger.Error().Err(err).Msg("watch terminated with error")
		return err
	}

	a.Logger.Info().Msg("watch stopped")
	return nil
}
