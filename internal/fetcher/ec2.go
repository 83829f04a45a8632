package fetcher

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/ec2"
	"github.com/aws/aws-sdk-go-v2/service/ec2/types"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"spotplot/internal/pricing"
)

// DescribeSpotPriceHistoryAPI is the slice of the EC2 client the fetcher needs.
type DescribeSpotPriceHistoryAPI interface {
	DescribeSpotPriceHistory(ctx context.Context, params *ec2.DescribeSpotPriceHistoryInput, optFns ...func(*ec2.Options)) (*ec2.DescribeSpotPriceHistoryOutput, error)
}

// EC2Options parameterise the EC2 spot price fetcher.
type EC2Options struct {
	Region     string
	MaxResults int32
	// MaxPages caps the number of pages read; zero reads every page.
	MaxPages int
	Timeout  time.Duration
}

// EC2 fetches spot price history from the EC2 API.
type EC2 struct {
	opts   EC2Options
	client DescribeSpotPriceHistoryAPI
	logger zerolog.Logger
}

// NewEC2 loads the default AWS credential chain for opts.Region and builds a fetcher.
func NewEC2(ctx context.Context, opts EC2Options, logger zerolog.Logger) (*EC2, error) {
	if opts.Region == "" {
		return nil, errors.New("aws region not configured")
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(opts.Region))
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}

	return NewEC2WithClient(ec2.NewFromConfig(awsCfg), opts, logger), nil
}

// NewEC2WithClient builds a fetcher around an existing client.
func NewEC2WithClient(client DescribeSpotPriceHistoryAPI, opts EC2Options, logger zerolog.Logger) *EC2 {
	if opts.MaxResults <= 0 {
		opts.MaxResults = 1000
	}
	return &EC2{
		opts:   opts,
		client: client,
		logger: logger.With().Str("component", "ec2_fetcher").Str("region", opts.Region).Logger(),
	}
}

// FetchSpotPrices pages through DescribeSpotPriceHistory for the query window.
func (e *EC2) FetchSpotPrices(ctx context.Context, q Query) ([]pricing.Observation, error) {
	if q.InstanceType == "" {
		return nil, errors.New("instance type not configured")
	}
	if !q.From.Before(q.To) {
		return nil, errors.New("query window is empty")
	}

	if e.opts.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.opts.Timeout)
		defer cancel()
	}

	input := &ec2.DescribeSpotPriceHistoryInput{
		StartTime:     aws.Time(q.From.UTC()),
		EndTime:       aws.Time(q.To.UTC()),
		InstanceTypes: []types.InstanceType{types.InstanceType(q.InstanceType)},
		MaxResults:    aws.Int32(e.opts.MaxResults),
	}
	if q.ProductDescription != "" {
		input.ProductDescriptions = []string{q.ProductDescription}
	}

	paginator := ec2.NewDescribeSpotPriceHistoryPaginator(e.client, input)

	observations := make([]pricing.Observation, 0, e.opts.MaxResults)
	pages := 0
	for paginator.HasMorePages() {
		if e.opts.MaxPages > 0 && pages >= e.opts.MaxPages {
			e.logger.Debug().Int("pages", pages).Msg("page limit reached; remaining history skipped")
			break
		}

		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("describe spot price history: %w", err)
		}
		pages++

		for _, sp := range page.SpotPriceHistory {
			obs, err := observationFromSpotPrice(sp)
			if err != nil {
				return nil, err
			}
			observations = append(observations, obs)
		}
	}

	e.logger.Debug().
		Str("instance_type", q.InstanceType).
		Int("pages", pages).
		Int("observations", len(observations)).
		Msg("spot price history fetched")

	return observations, nil
}

func observationFromSpotPrice(sp types.SpotPrice) (pricing.Observation, error) {
	raw := aws.ToString(sp.SpotPrice)
	price, err := decimal.NewFromString(raw)
	if err != nil {
		return pricing.Observation{}, fmt.Errorf("parse spot price %q: %w", raw, err)
	}
	if sp.Timestamp == nil {
		return pricing.Observation{}, errors.New("spot price record without timestamp")
	}
	return pricing.Observation{
		Timestamp: aws.ToTime(sp.Timestamp).UTC(),
		Price:     price,
		Zone:      aws.ToString(sp.AvailabilityZone),
	}, nil
}

var _ SpotPriceSource = (*EC2)(nil)
var _ DescribeSpotPriceHistoryAPI = (*ec2.Client)(nil)
