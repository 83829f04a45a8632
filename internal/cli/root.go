package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"spotplot/internal/app"
	"spotplot/internal/config"
	"spotplot/internal/logging"
)

var (
	cfgFile   string
	logLevel  string
	appHandle *app.App

	overrideRegion       string
	overrideInstanceType string
	overrideZone         string
	overrideDays         int
	overrideMultiplier   float64
	overrideOutput       string
)

var rootCmd = &cobra.Command{
	Use:          "spotplot",
	Short:        "Plot EC2 spot price history per availability zone",
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if appHandle != nil {
			return nil
		}

		cfg, err := config.Load(cfgFile)
		if err != nil {
			return err
		}

		if err := applyOverrides(cfg, cmd.Flags()); err != nil {
			return err
		}

		logger := logging.NewLogger(cfg.Logging)
		appHandle = app.NewApp(cfg, logger)
		return nil
	},
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	flags := rootCmd.PersistentFlags()
	flags.StringVar(&cfgFile, "config", "", "Path to configuration file (default ./spotplot.yaml)")
	flags.StringVar(&logLevel, "log-level", "", "Override log level defined in config")
	flags.StringVar(&overrideRegion, "region", "", "AWS region")
	flags.StringVar(&overrideInstanceType, "instance-type", "", "EC2 instance type")
	flags.StringVar(&overrideZone, "zone", "", "Restrict to one availability zone and clip outliers")
	flags.IntVar(&overrideDays, "days", 0, "History length in days")
	flags.Float64Var(&overrideMultiplier, "multiplier", 0, "Outlier multiplier applied to the zone mean")
	flags.StringVarP(&overrideOutput, "output", "o", "", "Path of the PNG to write")

	rootCmd.AddCommand(plotCmd)
	rootCmd.AddCommand(watchCmd)
	rootCmd.AddCommand(showCmd)
	rootCmd.AddCommand(versionCmd)
}

// applyOverrides copies explicitly set flags over the loaded config and re-validates it.
func applyOverrides(cfg *config.Config, flags *pflag.FlagSet) error {
	if logLevel != "" {
		cfg.Logging.Level = logLevel
	}
	if flags.Changed("region") {
		cfg.Spot.Region = overrideRegion
	}
	if flags.Changed("instance-type") {
		cfg.Spot.InstanceType = overrideInstanceType
	}
	if flags.Changed("zone") {
		cfg.Spot.AvailabilityZone = overrideZone
	}
	if flags.Changed("days") {
		cfg.Spot.HistoryLengthDays = overrideDays
	}
	if flags.Changed("multiplier") {
		cfg.Spot.OutliersMultiplier = overrideMultiplier
	}
	if flags.Changed("output") {
		cfg.Plot.ImageName = overrideOutput
	}
	return cfg.Validate()
}

func getApp() *app.App {
	if appHandle == nil {
		panic("application not initialized; PersistentPreRunE not executed")
	}
	return appHandle
}
