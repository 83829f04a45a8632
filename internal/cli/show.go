package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"spotplot/internal/app"
)

var (
	showLimit int
	showAll   bool
)

var showCmd = &cobra.Command{
	Use:   "show",
	Short: "Display recently archived spot prices",
	RunE: func(cmd *cobra.Command, args []string) error {
		if showLimit <= 0 {
			return fmt.Errorf("--limit must be greater than zero")
		}

		a := getApp()
		opts := app.ShowOptions{Limit: showLimit}
		if !showAll {
			opts.InstanceType = a.Config.Spot.InstanceType
		}

		return a.Show(cmd.Context(), opts)
	},
}

func init() {
	showCmd.Flags().IntVar(&showLimit, "limit", 20, "Number of prices to display")
	showCmd.Flags().BoolVar(&showAll, "all", false, "Include every instance type")
}
