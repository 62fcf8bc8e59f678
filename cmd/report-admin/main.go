package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/bpsreport/report-server/config"
	"github.com/bpsreport/report-server/globals"
	"github.com/bpsreport/report-server/persistence"
	"github.com/bpsreport/report-server/upload"
	"github.com/hashicorp/go-hclog"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
)

// A very simple CLI tool for the administration of persisted reports.

var (
	configPath = pflag.StringP("config", "c", "", "path to config file or directory")

	persister persistence.Persister
)

func main() {
	flagSet := config.GetFlagSet()
	pflag.CommandLine.AddFlagSet(flagSet)
	pflag.Parse()

	globalConfig, err := config.ReadConfiguration(*configPath, flagSet)
	if err != nil {
		panic(err)
	}
	if globalConfig.LogLevel != "" {
		globals.AppLogger.SetLevel(hclog.LevelFromString(globalConfig.LogLevel))
	}

	persister, err = persistence.NewPersister(globalConfig)
	if err != nil {
		panic(err)
	}
	defer persister.Close()

	rootCmd := &cobra.Command{
		Use:   "report-admin",
		Short: "Administration of persisted reports",
	}

	listCmd := &cobra.Command{
		Use:   "list",
		Short: "List all reports, newest first",
		RunE: func(cmd *cobra.Command, args []string) error {
			reports, err := persister.GetReports()
			if err != nil {
				return err
			}
			for _, report := range reports {
				fmt.Printf("%s  %-20s %-18s %s (%d responses)\n",
					report.CreatedAt.Format("2006-01-02 15:04:05"),
					report.GrowId, report.Category, report.Id, len(report.Responses))
			}
			return nil
		},
	}

	showCmd := &cobra.Command{
		Use:   "show <id>",
		Short: "Print one report including its conversation as JSON",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			report, err := persister.GetReport(args[0])
			if err != nil {
				return err
			}
			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			return enc.Encode(report)
		},
	}

	deleteCmd := &cobra.Command{
		Use:   "delete <id>",
		Short: "Delete a report and its uploaded images",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			report, err := persister.GetReport(args[0])
			if err != nil {
				return err
			}
			uploads, err := upload.NewStore(globalConfig.UploadsConfig.Dir)
			if err != nil {
				return err
			}
			uploads.RemoveReportImages(report)
			return persister.DeleteReport(args[0])
		},
	}

	rootCmd.AddCommand(listCmd, showCmd, deleteCmd)
	// global flags were already consumed by pflag above
	rootCmd.SetArgs(pflag.Args())
	if err := rootCmd.Execute(); err != nil {
		globals.AppLogger.Error("command failed", "error", err)
		os.Exit(1)
	}
}
