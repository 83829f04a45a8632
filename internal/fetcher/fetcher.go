package fetcher

import (
	"context"
	"time"

	"spotplot/internal/pricing"
)

// Query selects the spot market and time window to retrieve.
type Query struct {
	// Region scopes archive reads; live EC2 reads use the client's region.
	Region             string
	InstanceType       string
	ProductDescription string
	From               time.Time
	To                 time.Time
}

// SpotPriceSource retrieves spot price observations for a query.
type SpotPriceSource interface {
	FetchSpotPrices(ctx context.Context, q Query) ([]pricing.Observation, error)
}
