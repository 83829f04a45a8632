package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"text/tabwriter"
	"time"

	"spotplot/internal/storage"
)

// Show prints the most recent archived spot prices.
func (a *App) Show(ctx context.Context, opts ShowOptions) error {
	store, closeStore, err := a.openStore(ctx)
	if err != nil {
		return err
	}
	if store == nil {
		return errors.New("database not configured; cannot show archived prices")
	}
	if closeStore != nil {
		defer closeStore()
	}

	records, err := store.ListRecentPrices(ctx, opts.InstanceType, opts.Limit)
	if err != nil {
		return err
	}
	return printRecords(os.Stdout, records)
}

func printRecords(out io.Writer, records []storage.PriceRecord) error {
	if len(records) == 0 {
		_, err := fmt.Fprintln(out, "no archived prices found")
		return err
	}

	writer := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(writer, "Time (UTC)\tRegion\tZone\tInstance\tProduct\tPrice")

	for _, rec := range records {
		fmt.Fprintf(
			writer,
			"%s\t%s\t%s\t%s\t%s\t%s\n",
			rec.ObservedAt.UTC().Format(time.RFC3339),
			rec.Region,
			rec.AvailabilityZone,
			rec.InstanceType,
			rec.ProductDescription,
			rec.Price.StringFixed(6),
		)
	}

	return writer.Flush()
}
