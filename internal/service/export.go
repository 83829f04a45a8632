package service

import (
	"encoding/csv"
	"os"
	"path/filepath"
	"time"

	"spotplot/internal/pricing"
)

func writeSeriesCSV(path string, series []*pricing.ZoneSeries) error {
	if err := ensureDir(path); err != nil {
		return err
	}

	file, err := os.Create(path)
	if err != nil {
		return err
	}
	defer file.Close()

	writer := csv.NewWriter(file)

	if err := writer.Write([]string{"availability_zone", "timestamp", "price"}); err != nil {
		return err
	}
	for _, s := range series {
		for i := range s.Prices {
			record := []string{
				s.Zone,
				s.Timestamps[i].UTC().Format(time.RFC3339),
				s.Prices[i].String(),
			}
			if err := writer.Write(record); err != nil {
				return err
			}
		}
	}

	writer.Flush()
	if err := writer.Error(); err != nil {
		return err
	}
	return file.Close()
}

func ensureDir(path string) error {
	dir := filepath.Dir(path)
	if dir == "." || dir == "" {
		return nil
	}
	return os.MkdirAll(dir, 0o755)
}
