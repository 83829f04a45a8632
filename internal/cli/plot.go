package cli

import (
	"github.com/spf13/cobra"

	"spotplot/internal/app"
)

var (
	plotSource string
	plotInput  string
	plotCSV    string
)

var plotCmd = &cobra.Command{
	Use:   "plot",
	Short: "Fetch spot price history and render it to a PNG",
	RunE: func(cmd *cobra.Command, args []string) error {
		return getApp().Plot(cmd.Context(), plotOptions())
	},
}

func plotOptions() app.PlotOptions {
	return app.PlotOptions{
		Source:    plotSource,
		InputPath: plotInput,
		CSVPath:   plotCSV,
	}
}

func addSourceFlags(cmd *cobra.Command) {
	cmd.Flags().StringVar(&plotSource, "source", app.SourceEC2, "Price source: ec2, file or archive")
	cmd.Flags().StringVar(&plotInput, "input", "", "describe-spot-price-history JSON file (with --source file)")
	cmd.Flags().StringVar(&plotCSV, "csv", "", "Also write the plotted points as CSV")
}

func init() {
	addSourceFlags(plotCmd)
}
