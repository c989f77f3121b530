package main

import (
	"context"
	"io"
	"os"
	"os/signal"
	"sync/atomic"
	"time"

	jsoniter "github.com/json-iterator/go"
	audit "github.com/kirkpatrickprice/analysis-toolkit-sub003"
	"github.com/kirkpatrickprice/analysis-toolkit-sub003/pkg/captures"
	"github.com/prometheus/common/log"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// runCmd represents the run command
var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the rule library against a directory of system captures",
	Long: `Run command loads audit rules, enumerates capture files and aggregates
extraction results into a JSON report. For example:

	analysis-toolkit run --rules-dir ./rules --captures-dir ./captures
	`,
	Run: run,
}

func run(cmd *cobra.Command, args []string) {
	ruleset, err := audit.NewRuleset(audit.Config{
		Directory: viper.GetStringSlice("rules.dir"),
	})
	if err != nil {
		log.Fatal(err)
	}
	logrus.Infof("Found %d rules, %d ok, %d failed",
		ruleset.Total, ruleset.Ok, ruleset.Failed)

	src, err := captures.NewSource(viper.GetStringSlice("audit.captures.dir")...)
	if err != nil {
		logrus.Fatal(err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	var done int64
	start := time.Now()
	report, err := audit.Aggregate(ctx, ruleset, src, audit.AggregateConfig{
		Workers: viper.GetInt("audit.workers"),
		Progress: func(system string) {
			logrus.Debugf("collected %s (%d done)", system, atomic.AddInt64(&done, 1))
		},
	})
	if err != nil {
		logrus.Fatal(err)
	}
	logrus.Infof("Aggregated %d systems, %d records, %d errors in %s",
		len(report.SystemTotals), report.TotalRecords(), len(report.Errors),
		time.Since(start))

	out := io.WriteCloser(os.Stdout)
	if path := viper.GetString("audit.output"); path != "" {
		handle, err := os.Create(path)
		if err != nil {
			logrus.Fatal(err)
		}
		out = handle
		defer handle.Close()
	}
	enc := json.NewEncoder(out)
	if viper.GetBool("audit.pretty") {
		enc.SetIndent("", "  ")
	}
	if err := enc.Encode(report); err != nil {
		logrus.Fatal(err)
	}

	if viper.GetBool("audit.strict") && len(report.Errors) > 0 {
		for _, e := range report.Errors {
			logrus.Warnf("%s %s: %s", e.System, e.Rule, e.Message)
		}
		os.Exit(1)
	}
}

func init() {
	rootCmd.AddCommand(runCmd)

	runCmd.PersistentFlags().Int("workers", 4,
		`Number of workers for capture collection.`)
	viper.BindPFlag("audit.workers",
		runCmd.PersistentFlags().Lookup("workers"))

	runCmd.PersistentFlags().StringSlice("captures-dir", []string{},
		`Directories that contain system capture files.`)
	viper.BindPFlag("audit.captures.dir",
		runCmd.PersistentFlags().Lookup("captures-dir"))

	runCmd.PersistentFlags().String("output", "",
		`Report output file. Defaults to stdout.`)
	viper.BindPFlag("audit.output",
		runCmd.PersistentFlags().Lookup("output"))

	runCmd.PersistentFlags().Bool("pretty", false,
		`Indent report JSON output.`)
	viper.BindPFlag("audit.pretty",
		runCmd.PersistentFlags().Lookup("pretty"))

	runCmd.PersistentFlags().Bool("strict", false,
		`Exit non-zero when the report contains collection or pattern errors.`)
	viper.BindPFlag("audit.strict",
		runCmd.PersistentFlags().Lookup("strict"))
}
