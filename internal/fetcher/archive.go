package fetcher

import (
	"context"
	"errors"
	"time"

	"spotplot/internal/pricing"
)

// ArchiveReader lists stored observations.
type ArchiveReader interface {
	ListObservationsBetween(ctx context.Context, region, instanceType, productDescription string, from, to time.Time) ([]pricing.Observation, error)
}

// Archive serves observations previously saved to the database.
type Archive struct {
	reader ArchiveReader
}

// NewArchive wraps reader as a SpotPriceSource.
func NewArchive(reader ArchiveReader) *Archive {
	return &Archive{reader: reader}
}

// FetchSpotPrices returns archived observations inside the query window.
func (a *Archive) FetchSpotPrices(ctx context.Context, q Query) ([]pricing.Observation, error) {
	if a.reader == nil {
		return nil, errors.New("archive not configured")
	}
	return a.reader.ListObservationsBetween(ctx, q.Region, q.InstanceType, q.ProductDescription, q.From, q.To)
}

var _ SpotPriceSource = (*Archive)(nil)
