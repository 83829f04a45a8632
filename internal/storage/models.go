package storage

import (
	"time"

	"github.com/shopspring/decimal"

	"spotplot/internal/pricing"
)

// PriceRecord is an archived spot price observation.
type PriceRecord struct {
	ObservedAt         time.Time
	Region             string
	AvailabilityZone   string
	InstanceType       string
	ProductDescription string
	Price              decimal.Decimal
	CreatedAt          time.Time
}

// Observation converts the record to the processor representation.
func (r PriceRecord) Observation() pricing.Observation {
	return pricing.Observation{
		Timestamp: r.ObservedAt,
		Price:     r.Price,
		Zone:      r.AvailabilityZone,
	}
}

// Market identifies the spot market a batch of observations belongs to.
type Market struct {
	Region             string
	InstanceType       string
	ProductDescription string
}

// Records tags observations with their market.
func (m Market) Records(observations []pricing.Observation) []PriceRecord {
	records := make([]PriceRecord, 0, len(observations))
	for _, obs := range observations {
		records = append(records, PriceRecord{
			ObservedAt:         obs.Timestamp.UTC(),
			Region:             m.Region,
			AvailabilityZone:   obs.Zone,
			InstanceType:       m.InstanceType,
			ProductDescription: m.ProductDescription,
			Price:              obs.Price,
		})
	}
	return records
}
