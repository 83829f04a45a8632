package fetcher

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"spotplot/internal/pricing"
)

type fakeArchive struct {
	gotRegion, gotType, gotProduct string
	gotFrom, gotTo                 time.Time
	rows                           []pricing.Observation
}

func (f *fakeArchive) ListObservationsBetween(ctx context.Context, region, instanceType, productDescription string, from, to time.Time) ([]pricing.Observation, error) {
	f.gotRegion, f.gotType, f.gotProduct, f.gotFrom, f.gotTo = region, instanceType, productDescription, from, to
	return f.rows, nil
}

func TestArchiveForwardsQuery(t *testing.T) {
	reader := &fakeArchive{rows: []pricing.Observation{{Zone: "us-west-1a", Price: decimal.NewFromInt(1)}}}
	q := testQuery()
	q.Region = "us-west-1"

	obs, err := NewArchive(reader).FetchSpotPrices(context.Background(), q)
	require.NoError(t, err)
	assert.Len(t, obs, 1)

	assert.Equal(t, "us-west-1", reader.gotRegion)
	assert.Equal(t, q.InstanceType, reader.gotType)
	assert.Equal(t, q.ProductDescription, reader.gotProduct)
	assert.True(t, reader.gotFrom.Equal(q.From))
	assert.True(t, reader.gotTo.Equal(q.To))
}

func TestArchiveNotConfigured(t *testing.T) {
	_, err := NewArchive(nil).FetchSpotPrices(context.Background(), testQuery())
	assert.Error(t, err)
}
