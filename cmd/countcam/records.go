package main

import (
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/thehanda/countcam-app/pkg/models"
)

var recordsSource string

var recordsCmd = &cobra.Command{
	Use:   "records",
	Short: "List the visitor log, newest first",
	RunE: func(cmd *cobra.Command, args []string) error {
		source, err := parseSourceFilter(recordsSource)
		if err != nil {
			return err
		}
		records, err := api.Records(cmd.Context(), source)
		if err != nil {
			return err
		}
		printRecords(cmd.OutOrStdout(), records)
		return nil
	},
}

func init() {
	recordsCmd.Flags().StringVar(&recordsSource, "source", "", "Only show records from this upload source (ui or api)")
	rootCmd.AddCommand(recordsCmd)
}

func parseSourceFilter(s string) (models.UploadSource, error) {
	if s == "" {
		return "", nil
	}
	src, ok := models.ParseUploadSource(s)
	if !ok {
		return "", fmt.Errorf("invalid --source %q", s)
	}
	return src, nil
}

func printRecords(out io.Writer, records []models.VisitorLogRecord) {
	if len(records) == 0 {
		fmt.Fprintln(out, "No records found.")
		return
	}

	w := tabwriter.NewWriter(out, 0, 0, 3, ' ', 0)
	fmt.Fprintln(w, "PROCESSED\tRECORDED\tFILE\tLOCATION\tDIRECTION\tCOUNT\tSOURCE")
	fmt.Fprintln(w, "---------\t--------\t----\t--------\t---------\t-----\t------")
	for _, r := range records {
		recorded := "-"
		if r.RecordingStartDateTime != nil {
			recorded = r.RecordingStartDateTime.Format("2006-01-02 15:04")
		}
		direction := string(r.CountedDirection)
		if r.DirectionMismatch {
			direction += " (mismatch)"
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%d\t%s\n",
			r.ProcessingTimestamp.Local().Format(time.DateTime), recorded, r.VideoFileName,
			r.LocationName, direction, r.VisitorCount, r.UploadSource)
	}
	w.Flush()
}
