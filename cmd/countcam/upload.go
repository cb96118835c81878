package main

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"

	"github.com/thehanda/countcam-app/pkg/batch"
	"github.com/thehanda/countcam-app/pkg/metadata"
	"github.com/thehanda/countcam-app/pkg/models"
)

type uploadOptions struct {
	Direction    string
	Date         string
	Time         string
	Timezone     string
	LocationName string
	Source       string
}

var uploadOpts uploadOptions

var uploadCmd = &cobra.Command{
	Use:   "upload FILE...",
	Short: "Count visitors in one or more clips, one after another",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runUpload(cmd, args, uploadOpts)
	},
}

func init() {
	uploadCmd.Flags().StringVarP(&uploadOpts.Direction, "direction", "d", string(models.DirectionBoth), "Direction to count: entering, exiting or both")
	uploadCmd.Flags().StringVar(&uploadOpts.Date, "date", "", "Recording date (YYYY-MM-DD) for files whose names carry no timestamp")
	uploadCmd.Flags().StringVar(&uploadOpts.Time, "time", "00:00", "Recording time (HH:mm[:ss]) used with --date")
	uploadCmd.Flags().StringVar(&uploadOpts.Timezone, "tz", "", "IANA zone for file name and --date timestamps (default: local)")
	uploadCmd.Flags().StringVarP(&uploadOpts.LocationName, "location", "l", "", "Location name stored with each record")
	uploadCmd.Flags().StringVar(&uploadOpts.Source, "source", string(models.SourceUI), "Upload source tag: ui or api")
	rootCmd.AddCommand(uploadCmd)
}

func runUpload(cmd *cobra.Command, files []string, opts uploadOptions) error {
	direction, ok := models.ParseDirection(opts.Direction)
	if !ok {
		return fmt.Errorf("invalid --direction %q", opts.Direction)
	}
	source, ok := models.ParseUploadSource(opts.Source)
	if !ok {
		return fmt.Errorf("invalid --source %q", opts.Source)
	}
	loc := time.Local
	if opts.Timezone != "" {
		var err error
		if loc, err = time.LoadLocation(opts.Timezone); err != nil {
			return fmt.Errorf("invalid --tz: %w", err)
		}
	}
	var fallback *time.Time
	if opts.Date != "" {
		t, err := metadata.ParseDateTime(opts.Date, opts.Time, loc)
		if err != nil {
			return err
		}
		fallback = &t
	}

	controller := batch.NewController(api)
	if err := controller.Select(files); err != nil {
		return err
	}

	bar := progressbar.NewOptions(len(files),
		progressbar.OptionSetDescription("Uploading"),
		progressbar.OptionSetWriter(os.Stderr),
		progressbar.OptionShowCount(),
		progressbar.OptionClearOnFinish(),
	)
	summary, err := controller.Run(cmd.Context(), batch.Options{
		Direction:    direction,
		Fallback:     fallback,
		Location:     loc,
		UploadSource: source,
		LocationName: opts.LocationName,
		OnProgress: func(p batch.Progress) {
			if p.CurrentFile != "" {
				bar.Describe(p.CurrentFile)
			}
			_ = bar.Set(p.Completed)
		},
	})
	_ = bar.Finish()
	if err != nil {
		return err
	}

	printResults(cmd.OutOrStdout(), summary)
	if summary.Failed > 0 {
		return fmt.Errorf("%s", summary)
	}
	return nil
}

func printResults(w io.Writer, summary batch.Summary) {
	for _, r := range summary.Results {
		if r.Err != nil {
			fmt.Fprintf(w, "FAIL  %s: %v\n", r.File, r.Err)
			continue
		}
		fmt.Fprintf(w, "OK    %s: %d visitors (%s)\n", r.File, r.Record.VisitorCount, r.Record.CountedDirection)
	}
	fmt.Fprintln(w, summary)
}
