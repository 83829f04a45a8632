package fetcher

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ec2"
	"github.com/aws/aws-sdk-go-v2/service/ec2/types"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func noopLogger() zerolog.Logger {
	return zerolog.Nop()
}

type fakeEC2 struct {
	pages  []*ec2.DescribeSpotPriceHistoryOutput
	inputs []*ec2.DescribeSpotPriceHistoryInput
	err    error
}

func (f *fakeEC2) DescribeSpotPriceHistory(ctx context.Context, params *ec2.DescribeSpotPriceHistoryInput, optFns ...func(*ec2.Options)) (*ec2.DescribeSpotPriceHistoryOutput, error) {
	f.inputs = append(f.inputs, params)
	if f.err != nil {
		return nil, f.err
	}
	idx := len(f.inputs) - 1
	if idx >= len(f.pages) {
		return &ec2.DescribeSpotPriceHistoryOutput{}, nil
	}
	return f.pages[idx], nil
}

func spot(zone, price string, ts time.Time) types.SpotPrice {
	return types.SpotPrice{
		AvailabilityZone:   aws.String(zone),
		InstanceType:       types.InstanceType("c3.xlarge"),
		ProductDescription: types.RIProductDescription("Linux/UNIX"),
		SpotPrice:          aws.String(price),
		Timestamp:          aws.Time(ts),
	}
}

func testQuery() Query {
	to := time.Date(2024, 3, 8, 0, 0, 0, 0, time.UTC)
	return Query{
		InstanceType:       "c3.xlarge",
		ProductDescription: "Linux/UNIX",
		From:               to.AddDate(0, 0, -7),
		To:                 to,
	}
}

func twoPages() []*ec2.DescribeSpotPriceHistoryOutput {
	ts := time.Date(2024, 3, 7, 12, 0, 0, 0, time.UTC)
	return []*ec2.DescribeSpotPriceHistoryOutput{
		{
			SpotPriceHistory: []types.SpotPrice{
				spot("us-west-1a", "0.210000", ts),
				spot("us-west-1b", "0.190000", ts.Add(-time.Hour)),
			},
			NextToken: aws.String("page-2"),
		},
		{
			SpotPriceHistory: []types.SpotPrice{
				spot("us-west-1a", "0.205000", ts.Add(-2*time.Hour)),
			},
		},
	}
}

func TestEC2FetchAllPages(t *testing.T) {
	client := &fakeEC2{pages: twoPages()}
	f := NewEC2WithClient(client, EC2Options{Region: "us-west-1", MaxResults: 2}, noopLogger())

	obs, err := f.FetchSpotPrices(context.Background(), testQuery())
	require.NoError(t, err)
	require.Len(t, obs, 3)
	assert.Equal(t, "us-west-1a", obs[0].Zone)
	assert.Equal(t, "0.21", obs[0].Price.String())
	require.Len(t, client.inputs, 2)

	first := client.inputs[0]
	assert.EqualValues(t, 2, aws.ToInt32(first.MaxResults))
	assert.Equal(t, []types.InstanceType{"c3.xlarge"}, first.InstanceTypes)
	assert.Equal(t, []string{"Linux/UNIX"}, first.ProductDescriptions)
	assert.Equal(t, "page-2", aws.ToString(client.inputs[1].NextToken))
}

func TestEC2FetchStopsAtPageLimit(t *testing.T) {
	client := &fakeEC2{pages: twoPages()}
	f := NewEC2WithClient(client, EC2Options{Region: "us-west-1", MaxPages: 1}, noopLogger())

	obs, err := f.FetchSpotPrices(context.Background(), testQuery())
	require.NoError(t, err)
	assert.Len(t, obs, 2)
	assert.Len(t, client.inputs, 1)
}

func TestEC2FetchAPIError(t *testing.T) {
	client := &fakeEC2{err: errors.New("UnauthorizedOperation")}
	f := NewEC2WithClient(client, EC2Options{Region: "us-west-1"}, noopLogger())

	_, err := f.FetchSpotPrices(context.Background(), testQuery())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "UnauthorizedOperation")
}

func TestEC2FetchBadPrice(t *testing.T) {
	ts := time.Date(2024, 3, 7, 12, 0, 0, 0, time.UTC)
	client := &fakeEC2{pages: []*ec2.DescribeSpotPriceHistoryOutput{
		{SpotPriceHistory: []types.SpotPrice{spot("us-west-1a", "n/a", ts)}},
	}}
	f := NewEC2WithClient(client, EC2Options{Region: "us-west-1"}, noopLogger())

	_, err := f.FetchSpotPrices(context.Background(), testQuery())
	assert.Error(t, err)
}

func TestEC2FetchValidatesQuery(t *testing.T) {
	f := NewEC2WithClient(&fakeEC2{}, EC2Options{Region: "us-west-1"}, noopLogger())

	q := testQuery()
	q.InstanceType = ""
	_, err := f.FetchSpotPrices(context.Background(), q)
	assert.Error(t, err, "missing instance type")

	q = testQuery()
	q.From = q.To
	_, err = f.FetchSpotPrices(context.Background(), q)
	assert.Error(t, err, "empty window")
}

func TestNewEC2RequiresRegion(t *testing.T) {
	_, err := NewEC2(context.Background(), EC2Options{}, noopLogger())
	assert.Error(t, err)
}
