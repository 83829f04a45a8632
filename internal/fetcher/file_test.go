package fetcher

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const replayJSON = `{
  "SpotPriceHistory": [
    {"AvailabilityZone": "us-west-1a", "InstanceType": "c3.xlarge", "ProductDescription": "Linux/UNIX", "SpotPrice": "0.210000", "Timestamp": "2024-03-07T12:00:00.000Z"},
    {"AvailabilityZone": "us-west-1b", "InstanceType": "c3.xlarge", "ProductDescription": "Linux/UNIX", "SpotPrice": "0.190000", "Timestamp": "2024-03-07T11:00:00+00:00"},
    {"AvailabilityZone": "us-west-1a", "InstanceType": "m5.large", "ProductDescription": "Linux/UNIX", "SpotPrice": "0.050000", "Timestamp": "2024-03-07T10:00:00.000Z"},
    {"AvailabilityZone": "us-west-1a", "InstanceType": "c3.xlarge", "ProductDescription": "Windows", "SpotPrice": "0.410000", "Timestamp": "2024-03-07T09:00:00.000Z"}
  ]
}`

func writeReplay(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "history.json")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestFileFetchFiltersByQuery(t *testing.T) {
	f := NewFile(writeReplay(t, replayJSON), noopLogger())

	obs, err := f.FetchSpotPrices(context.Background(), testQuery())
	require.NoError(t, err)
	require.Len(t, obs, 2)

	assert.Equal(t, "us-west-1b", obs[1].Zone)
	assert.Equal(t, "0.19", obs[1].Price.String())
	assert.True(t, obs[1].Timestamp.Equal(time.Date(2024, 3, 7, 11, 0, 0, 0, time.UTC)), "timestamp %s", obs[1].Timestamp)
}

func TestFileFetchErrors(t *testing.T) {
	ctx := context.Background()

	_, err := NewFile("", noopLogger()).FetchSpotPrices(ctx, testQuery())
	assert.Error(t, err, "empty path")

	missing := filepath.Join(t.TempDir(), "missing.json")
	_, err = NewFile(missing, noopLogger()).FetchSpotPrices(ctx, testQuery())
	assert.Error(t, err, "missing file")

	bad := writeReplay(t, `{"SpotPriceHistory": [{"SpotPrice": "0.1", "Timestamp": "yesterday"}]}`)
	_, err = NewFile(bad, noopLogger()).FetchSpotPrices(ctx, testQuery())
	assert.Error(t, err, "bad timestamp")
}

func TestParseTimestamp(t *testing.T) {
	want := time.Date(2024, 3, 7, 12, 30, 0, 0, time.UTC)
	for _, in := range []string{
		"2024-03-07T12:30:00Z",
		"2024-03-07T12:30:00.000Z",
		"2024-03-07T14:30:00+02:00",
		"2024-03-07T12:30:00.000+0000",
		"2024-03-07T12:30:00",
		"2024-03-07 12:30:00",
	} {
		got, err := ParseTimestamp(in)
		require.NoError(t, err, in)
		assert.True(t, got.Equal(want), "%s parsed as %s", in, got)
	}
}
