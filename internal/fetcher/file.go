package fetcher

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"spotplot/internal/pricing"
)

var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.000Z0700",
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
}

// File replays the JSON written by `aws ec2 describe-spot-price-history`.
// The query window is not applied; a replay file is plotted as captured.
type File struct {
	path   string
	logger zerolog.Logger
}

// NewFile builds a replay source reading path.
func NewFile(path string, logger zerolog.Logger) *File {
	return &File{path: path, logger: logger.With().Str("component", "file_fetcher").Logger()}
}

type spotPriceHistoryDocument struct {
	SpotPriceHistory []spotPriceRecord `json:"SpotPriceHistory"`
}

type spotPriceRecord struct {
	AvailabilityZone   string `json:"AvailabilityZone"`
	InstanceType       string `json:"InstanceType"`
	ProductDescription string `json:"ProductDescription"`
	SpotPrice          string `json:"SpotPrice"`
	Timestamp          string `json:"Timestamp"`
}

// FetchSpotPrices reads the file and keeps records matching the query's
// instance type and product description. Records without those fields match.
func (f *File) FetchSpotPrices(ctx context.Context, q Query) ([]pricing.Observation, error) {
	if f.path == "" {
		return nil, errors.New("replay file path not configured")
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	payload, err := os.ReadFile(f.path)
	if err != nil {
		return nil, fmt.Errorf("read replay file: %w", err)
	}

	var doc spotPriceHistoryDocument
	if err := json.Unmarshal(payload, &doc); err != nil {
		return nil, fmt.Errorf("decode replay file: %w", err)
	}

	observations := make([]pricing.Observation, 0, len(doc.SpotPriceHistory))
	skipped := 0
	for i, rec := range doc.SpotPriceHistory {
		if !matches(rec.InstanceType, q.InstanceType) || !matches(rec.ProductDescription, q.ProductDescription) {
			skipped++
			continue
		}
		obs, err := rec.observation()
		if err != nil {
			return nil, fmt.Errorf("record %d: %w", i, err)
		}
		observations = append(observations, obs)
	}

	f.logger.Debug().Str("path", f.path).
		Int("observations", len(observations)).
		Int("skipped", skipped).
		Msg("replay file loaded")

	return observations, nil
}

func (r spotPriceRecord) observation() (pricing.Observation, error) {
	price, err := decimal.NewFromString(r.SpotPrice)
	if err != nil {
		return pricing.Observation{}, fmt.Errorf("parse spot price %q: %w", r.SpotPrice, err)
	}
	ts, err := ParseTimestamp(r.Timestamp)
	if err != nil {
		return pricing.Observation{}, err
	}
	return pricing.Observation{Timestamp: ts, Price: price, Zone: r.AvailabilityZone}, nil
}

// ParseTimestamp accepts the ISO 8601 variants the EC2 API and CLI emit.
// Values without an offset are taken as UTC.
func ParseTimestamp(v string) (time.Time, error) {
	for _, layout := range timestampLayouts {
		if ts, err := time.Parse(layout, v); err == nil {
			return ts.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognised timestamp %q", v)
}

func matches(value, want string) bool {
	return value == "" || want == "" || value == want
}

var _ SpotPriceSource = (*File)(nil)
