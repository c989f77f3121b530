package main

import (
	audit "github.com/kirkpatrickprice/analysis-toolkit-sub003"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

type counts struct {
	ok, fail int
}

// parseCmd represents the parse command
var parseCmd = &cobra.Command{
	Use:   "parse",
	Short: "Parse a rule library for testing",
	Long:  `Recursively parses audit rule yaml files from filesystem and provides detailed feedback to the user about rule validity.`,
	Run:   parse,
}

func parse(cmd *cobra.Command, args []string) {
	files, err := audit.NewRuleFileList(viper.GetStringSlice("rules.dir"))
	if err != nil {
		logrus.Fatal(err)
	}
	for _, f := range files {
		logrus.Info(f)
	}
	logrus.Info("Parsing rule yaml files")
	rules, err := audit.NewRuleList(files, true)
	if err != nil {
		switch err.(type) {
		case audit.ErrBulkParseYaml:
			logrus.Error(err)
		default:
			logrus.Fatal(err)
		}
	}
	logrus.Infof("Got %d rules from yaml", len(rules))
	logrus.Info("Compiling rules")
	c := &counts{}
	seen := make(map[string]string)
loop:
	for _, raw := range rules {
		logrus.Trace(raw.Path)
		if prev, ok := seen[raw.ID]; ok {
			c.fail++
			logrus.Errorf("%s", audit.ErrDuplicateRuleID{ID: raw.ID, Path: prev})
			continue loop
		}
		_, err := audit.NewSearch(raw)
		if err != nil {
			c.fail++
			logrus.Errorf("%s: %s", raw.Path, err)
			continue loop
		}
		seen[raw.ID] = raw.Path
		logrus.Infof("%s: %s ok", raw.Path, raw.ID)
		c.ok++
	}
	logrus.Infof("OK: %d; FAIL: %d", c.ok, c.fail)
}

func init() {
	rootCmd.AddCommand(parseCmd)
}
