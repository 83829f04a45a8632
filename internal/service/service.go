package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"spotplot/internal/alerting"
	"spotplot/internal/chart"
	"spotplot/internal/fetcher"
	"spotplot/internal/pricing"
	"spotplot/internal/scheduler"
	"spotplot/internal/storage"
)

// Options configure a plot run.
type Options struct {
	Params             pricing.FilterParameters
	Region             string
	ProductDescription string
	ImagePath          string
	// CSVPath additionally writes the plotted points when set.
	CSVPath  string
	Chart    chart.Options
	ShowMean bool
	// ArchiveFetched stores fetched observations when an archive is attached.
	ArchiveFetched bool
	LockKey        int64
}

// Result describes what a run produced.
type Result struct {
	Observations int
	Aggregate    *pricing.Aggregate
	Filter       *pricing.FilterResult
	Series       []*pricing.ZoneSeries
	ImagePath    string
	CSVPath      string
	Report       alerting.Report
}

// Service orchestrates fetching, archiving, filtering, and rendering.
type Service struct {
	opts     Options
	source   fetcher.SpotPriceSource
	archive  storage.PriceArchive
	notifier alerting.Notifier
	locker   storage.AdvisoryLocker
	logger   zerolog.Logger
	now      func() time.Time
}

// New constructs the plot service. archive and notifier may be nil.
func New(opts Options, source fetcher.SpotPriceSource, archive storage.PriceArchive, notifier alerting.Notifier, logger zerolog.Logger) *Service {
	var locker storage.AdvisoryLocker
	if l, ok := archive.(storage.AdvisoryLocker); ok {
		locker = l
	}

	return &Service{
		opts:     opts,
		source:   source,
		archive:  archive,
		notifier: notifier,
		locker:   locker,
		logger:   logger.With().Str("component", "service").Logger(),
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// Watch re-renders on every scheduler tick until ctx is cancelled.
func (s *Service) Watch(ctx context.Context, sched *scheduler.Scheduler) error {
	if sched == nil {
		return fmt.Errorf("scheduler not configured")
	}
	return sched.Run(ctx, s.ProcessAt)
}

// ProcessAt runs the pipeline for a window ending at at, skipping when another
// instance holds the advisory lock.
func (s *Service) ProcessAt(ctx context.Context, at time.Time) error {
	unlock, proceed, err := s.acquireLock(ctx)
	if err != nil {
		return err
	}
	if !proceed {
		s.logger.Debug().Time("run_at", at).Msg("skip run because advisory lock held elsewhere")
		return nil
	}
	if unlock != nil {
		defer unlock()
	}

	_, err = s.runAt(ctx, at)
	return err
}

// RunOnce runs the pipeline for the window ending now.
func (s *Service) RunOnce(ctx context.Context) (*Result, error) {
	return s.runAt(ctx, s.now())
}

func (s *Service) runAt(ctx context.Context, at time.Time) (*Result, error) {
	if s.source == nil {
		return nil, errors.New("spot price source not configured")
	}

	params := s.opts.Params
	from, to := params.Window(at)
	query := fetcher.Query{
		Region:             s.opts.Region,
		InstanceType:       params.InstanceType,
		ProductDescription: s.opts.ProductDescription,
		From:               from,
		To:                 to,
	}

	s.logger.Info().Str("instance_type", query.InstanceType).
		Time("from", query.From).
		Time("to", query.To).
		Msg("getting spot instance prices")

	observations, err := s.source.FetchSpotPrices(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("fetch spot prices: %w", err)
	}
	if len(observations) == 0 {
		return nil, fmt.Errorf("%w for %s; check instance type, region and product description", pricing.ErrEmptyInput, params.InstanceType)
	}
	s.logger.Info().Int("count", len(observations)).Msg("number of prices")

	s.archiveObservations(ctx, observations)

	res := &Result{Observations: len(observations)}
	report := alerting.Report{
		GeneratedAt:  at,
		Region:       s.opts.Region,
		InstanceType: params.InstanceType,
		Observations: len(observations),
	}

	var mean decimal.Decimal
	meanLabel := "mean"
	if params.HasTargetZone() {
		filtered, err := pricing.FilterOutliers(observations, params.TargetZone, params.OutlierMultiplier)
		if err != nil {
			return nil, err
		}
		s.logger.Info().Str("zone", params.TargetZone).
			Int("total", filtered.Total).
			Int("retained", filtered.Retained).
			Int("dropped", filtered.Dropped()).
			Str("max_allowed", filtered.MaxAllowed.StringFixed(4)).
			Str("mean_before", filtered.MeanBefore.StringFixed(4)).
			Str("mean_after", filtered.MeanAfter.StringFixed(4)).
			Msg("outliers removed")

		res.Filter = filtered
		res.Series = []*pricing.ZoneSeries{&filtered.Series}
		mean = filtered.MeanAfter
		meanLabel = "mean after filter"

		report.Zone = params.TargetZone
		report.Zones = []string{params.TargetZone}
		report.Observations = filtered.Total
		report.Retained = filtered.Retained
		report.MeanBefore = filtered.MeanBefore
		report.MeanAfter = filtered.MeanAfter
	} else {
		agg, err := pricing.AggregateByZone(observations)
		if err != nil {
			return nil, err
		}
		for _, zone := range agg.Zones.Zones() {
			s.logger.Info().Str("zone", zone).Msg("adding az")
		}

		res.Aggregate = agg
		res.Series = agg.Zones.Series()
		mean = agg.Mean()

		report.Zones = agg.Zones.Zones()
		report.Retained = len(observations)
		report.MeanBefore = mean
		report.MeanAfter = mean
	}

	if err := s.render(res, mean, meanLabel); err != nil {
		return nil, err
	}
	report.ImagePath = res.ImagePath

	s.logger.Info().Str("mean", mean.StringFixed(4)).Msg("average price")

	if s.notifier != nil {
		if err := s.notifier.Notify(ctx, report); err != nil {
			s.logger.Error().Err(err).Msg("failed to send report")
		}
	}

	res.Report = report
	return res, nil
}

func (s *Service) render(res *Result, mean decimal.Decimal, meanLabel string) error {
	lines := make([]chart.Line, 0, len(res.Series))
	for _, series := range res.Series {
		lines = append(lines, chart.LineFromZoneSeries(series))
	}

	opts := s.opts.Chart
	if opts.Title == "" {
		opts.Title = fmt.Sprintf("%s spot price, %s, last %d days", s.opts.Params.InstanceType, s.opts.Region, s.opts.Params.DaysLookback)
	}
	if s.opts.ShowMean {
		m := mean.InexactFloat64()
		opts.Mean = &m
		opts.MeanLabel = meanLabel
	}

	if s.opts.ImagePath != "" {
		if err := chart.WritePNG(s.opts.ImagePath, opts, lines); err != nil {
			return fmt.Errorf("write image: %w", err)
		}
		res.ImagePath = s.opts.ImagePath
		s.logger.Info().Str("path", s.opts.ImagePath).Msg("writing image")
	}

	if s.opts.CSVPath != "" {
		if err := writeSeriesCSV(s.opts.CSVPath, res.Series); err != nil {
			return fmt.Errorf("write csv: %w", err)
		}
		res.CSVPath = s.opts.CSVPath
		s.logger.Info().Str("path", s.opts.CSVPath).Msg("writing csv")
	}
	return nil
}

func (s *Service) archiveObservations(ctx context.Context, observations []pricing.Observation) {
	if s.archive == nil || !s.opts.ArchiveFetched {
		return
	}
	market := storage.Market{
		Region:             s.opts.Region,
		InstanceType:       s.opts.Params.InstanceType,
		ProductDescription: s.opts.ProductDescription,
	}
	if err := s.archive.UpsertPrices(ctx, market.Records(observations)); err != nil {
		s.logger.Error().Err(err).Msg("failed to archive spot prices")
		return
	}

	event := s.logger.Info().Int("count", len(observations))
	if total, err := s.archive.CountPrices(ctx); err != nil {
		s.logger.Warn().Err(err).Msg("failed to count archived spot prices")
	} else {
		event = event.Int64("archive_total", total)
	}
	event.Msg("spot prices archived")
}

func (s *Service) acquireLock(ctx context.Context) (func(), bool, error) {
	if s.opts.LockKey == 0 || s.locker == nil {
		return nil, true, nil
	}
	unlock, acquired, err := s.locker.TryAdvisoryLock(ctx, s.opts.LockKey)
	if err != nil {
		return nil, false, fmt.Errorf("acquire advisory lock: %w", err)
	}
	if !acquired {
		return nil, false, nil
	}
	return unlock, true, nil
}
