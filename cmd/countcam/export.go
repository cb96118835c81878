package main

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/thehanda/countcam-app/pkg/report"
)

var (
	exportMode   string
	exportOut    string
	exportSource string
)

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Download the visitor log as CSV",
	RunE: func(cmd *cobra.Command, args []string) error {
		mode, err := report.ParseMode(exportMode)
		if err != nil {
			return err
		}
		source, err := parseSourceFilter(exportSource)
		if err != nil {
			return err
		}

		if exportOut == "-" {
			return api.Export(cmd.Context(), mode, source, cmd.OutOrStdout())
		}
		path := exportOut
		if path == "" {
			path = report.FileName(mode, time.Now())
		}
		f, err := os.Create(path)
		if err != nil {
			return err
		}
		if err := api.Export(cmd.Context(), mode, source, f); err != nil {
			f.Close()
			os.Remove(path)
			return err
		}
		if err := f.Close(); err != nil {
			return err
		}
		fmt.Fprintf(cmd.ErrOrStderr(), "Wrote %s\n", path)
		return nil
	},
}

func init() {
	exportCmd.Flags().StringVarP(&exportMode, "mode", "m", string(report.ModeRaw), "Export mode: raw or hourly")
	exportCmd.Flags().StringVarP(&exportOut, "out", "o", "", "Output file, or - for stdout (default: generated name)")
	exportCmd.Flags().StringVar(&exportSource, "source", "", "Only export records from this upload source (ui or api)")
	rootCmd.AddCommand(exportCmd)
}
