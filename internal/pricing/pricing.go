// Package pricing turns raw spot price observations into per-zone series
// and applies the single-zone outlier clip.
package pricing

import (
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

var (
	// ErrEmptyInput indicates the price source returned no observations at all.
	ErrEmptyInput = errors.New("pricing: no observations")
	// ErrNoDataForZone indicates a zone selection matched nothing.
	ErrNoDataForZone = errors.New("pricing: no data for zone")
	// ErrInvalidMultiplier indicates a non-positive outlier multiplier.
	ErrInvalidMultiplier = errors.New("pricing: outlier multiplier must be greater than zero")
)

// Stage identifies which pass of the outlier filter came up empty.
type Stage string

const (
	StageBeforeFilter Stage = "before_filter"
	StageAfterFilter  Stage = "after_filter"
)

// NoDataForZoneError carries the zone and filter pass that produced no rows.
type NoDataForZoneError struct {
	Zone  string
	Stage Stage
}

func (e *NoDataForZoneError) Error() string {
	if e.Stage == StageAfterFilter {
		return fmt.Sprintf("pricing: no prices left for zone %q after outlier removal", e.Zone)
	}
	return fmt.Sprintf("pricing: no prices for zone %q", e.Zone)
}

// Is lets errors.Is match ErrNoDataForZone.
func (e *NoDataForZoneError) Is(target error) bool {
	return target == ErrNoDataForZone
}

// Observation is a single spot price point as returned by the source.
type Observation struct {
	Timestamp time.Time
	Price     decimal.Decimal
	Zone      string
}

// FilterParameters groups the run settings that shape the series.
type FilterParameters struct {
	OutlierMultiplier decimal.Decimal
	DaysLookback      int
	InstanceType      string
	TargetZone        string
}

// HasTargetZone reports whether the run is restricted to one zone.
func (p FilterParameters) HasTargetZone() bool {
	return p.TargetZone != ""
}

// Window returns the [from, to) range covered by DaysLookback ending at at.
func (p FilterParameters) Window(at time.Time) (time.Time, time.Time) {
	return at.AddDate(0, 0, -p.DaysLookback), at
}

// ZoneSeries holds the time ordered prices of one availability zone.
type ZoneSeries struct {
	Zone       string
	Timestamps []time.Time
	Prices     []decimal.Decimal
}

func (s *ZoneSeries) append(ts time.Time, price decimal.Decimal) {
	s.Timestamps = append(s.Timestamps, ts)
	s.Prices = append(s.Prices, price)
}

// Len returns the number of points in the series.
func (s *ZoneSeries) Len() int {
	return len(s.Prices)
}

// Mean returns the average price of the series, zero when empty.
func (s *ZoneSeries) Mean() decimal.Decimal {
	return mean(s.Prices)
}

// ZoneSet maps zones to their series and remembers first-seen order.
type ZoneSet struct {
	order  []string
	series map[string]*ZoneSeries
}

func newZoneSet() *ZoneSet {
	return &ZoneSet{series: make(map[string]*ZoneSeries)}
}

// Zones returns zone identifiers in first-seen order.
func (z *ZoneSet) Zones() []string {
	out := make([]string, len(z.order))
	copy(out, z.order)
	return out
}

// Get returns the series for zone.
func (z *ZoneSet) Get(zone string) (*ZoneSeries, bool) {
	s, ok := z.series[zone]
	return s, ok
}

// Len returns the number of zones.
func (z *ZoneSet) Len() int {
	return len(z.order)
}

// Series returns every series in first-seen zone order.
func (z *ZoneSet) Series() []*ZoneSeries {
	out := make([]*ZoneSeries, 0, len(z.order))
	for _, zone := range z.order {
		out = append(out, z.series[zone])
	}
	return out
}

func (z *ZoneSet) add(obs Observation) {
	s, ok := z.series[obs.Zone]
	if !ok {
		s = &ZoneSeries{Zone: obs.Zone}
		z.series[obs.Zone] = s
		z.order = append(z.order, obs.Zone)
	}
	s.append(obs.Timestamp, obs.Price)
}

// Aggregate is the unfiltered per-zone view of a run.
type Aggregate struct {
	Zones     *ZoneSet
	AllPrices []decimal.Decimal
}

// Mean returns the average over every zone.
func (a *Aggregate) Mean() decimal.Decimal {
	return mean(a.AllPrices)
}

// AggregateByZone groups observations by zone without filtering.
func AggregateByZone(observations []Observation) (*Aggregate, error) {
	if len(observations) == 0 {
		return nil, ErrEmptyInput
	}

	agg := &Aggregate{
		Zones:     newZoneSet(),
		AllPrices: make([]decimal.Decimal, 0, len(observations)),
	}
	for _, obs := range observations {
		agg.Zones.add(obs)
		agg.AllPrices = append(agg.AllPrices, obs.Price)
	}
	return agg, nil
}

// FilterResult is the outcome of a single-zone outlier clip.
type FilterResult struct {
	Series     ZoneSeries
	MeanBefore decimal.Decimal
	MeanAfter  decimal.Decimal
	MaxAllowed decimal.Decimal
	Total      int
	Retained   int
}

// Dropped returns how many zone observations were clipped.
func (r *FilterResult) Dropped() int {
	return r.Total - r.Retained
}

// FilterOutliers keeps the observations of zone priced strictly below
// mean*multiplier. Prices under the mean are never dropped. The bound is
// checked exactly as price*n < sum*multiplier; MeanBefore and MaxAllowed
// are rounded and only reported.
func FilterOutliers(observations []Observation, zone string, multiplier decimal.Decimal) (*FilterResult, error) {
	if !multiplier.IsPositive() {
		return nil, ErrInvalidMultiplier
	}

	inZone := make([]decimal.Decimal, 0, len(observations))
	for _, obs := range observations {
		if obs.Zone == zone {
			inZone = append(inZone, obs.Price)
		}
	}
	if len(inZone) == 0 {
		return nil, &NoDataForZoneError{Zone: zone, Stage: StageBeforeFilter}
	}

	sum := decimal.Sum(inZone[0], inZone[1:]...)
	n := decimal.NewFromInt(int64(len(inZone)))
	limit := sum.Mul(multiplier)
	meanBefore := sum.Div(n)
	maxAllowed := meanBefore.Mul(multiplier)

	res := &FilterResult{
		Series:     ZoneSeries{Zone: zone},
		MeanBefore: meanBefore,
		MaxAllowed: maxAllowed,
		Total:      len(inZone),
	}
	for _, obs := range observations {
		if obs.Zone != zone || !obs.Price.Mul(n).LessThan(limit) {
			continue
		}
		res.Series.append(obs.Timestamp, obs.Price)
	}
	if res.Series.Len() == 0 {
		return nil, &NoDataForZoneError{Zone: zone, Stage: StageAfterFilter}
	}

	res.Retained = res.Series.Len()
	res.MeanAfter = res.Series.Mean()
	return res, nil
}

// Observations turns a series back into observations, e.g. to re-filter it.
func (s *ZoneSeries) Observations() []Observation {
	out := make([]Observation, len(s.Prices))
	for i := range s.Prices {
		out[i] = Observation{Timestamp: s.Timestamps[i], Price: s.Prices[i], Zone: s.Zone}
	}
	return out
}

func mean(values []decimal.Decimal) decimal.Decimal {
	if len(values) == 0 {
		return decimal.Zero
	}
	return decimal.Sum(values[0], values[1:]...).Div(decimal.NewFromInt(int64(len(values))))
}
