package cmd

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
	"github.com/tanq16/utools/internal/history"
	"github.com/tanq16/utools/internal/output"
	"github.com/tanq16/utools/internal/utils"
)

func newHistoryCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "history",
		Short: "Inspect, compact and sync download history files",
	}
	cmd.AddCommand(newHistoryStatsCmd())
	cmd.AddCommand(newHistoryCompactCmd())
	cmd.AddCommand(newHistoryPushCmd())
	cmd.AddCommand(newHistoryPullCmd())
	return cmd
}

func newHistoryStatsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "stats FILE",
		Short: "Count records, unique ids and malformed lines",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := newStore(args[0], "title")
			if err != nil {
				return err
			}
			scan, err := store.Records()
			if err != nil {
				return err
			}
			st := history.Summarize(scan)
			output.PrintHeader(args[0])
			fmt.Printf("  %s %s\n", output.FDebug("records   "), output.FInfo(fmt.Sprint(st.Records)))
			fmt.Printf("  %s %s\n", output.FDebug("unique ids"), output.FInfo(fmt.Sprint(st.UniqueIDs)))
			fmt.Printf("  %s %s\n", output.FDebug("duplicates"), output.FInfo(fmt.Sprint(st.Duplicates)))
			if st.Malformed > 0 {
				fmt.Printf("  %s %s %s\n", output.FDebug("malformed "), output.FWarning(fmt.Sprint(st.Malformed)), output.FDebug(fmt.Sprint(scan.Malformed)))
			}
			collections := st.Collections()
			if len(collections) > 0 {
				output.PrintHeader("Collections")
				for _, name := range collections {
					fmt.Printf("  %s %s\n", output.FDetail(fmt.Sprintf("%5d", st.ByCollection[name])), name)
				}
			}
			return nil
		},
	}
}

func newHistoryCompactCmd() *cobra.Command {
	var out string
	cmd := &cobra.Command{
		Use:   "compact FILE",
		Short: "Write a copy keeping only the latest record of every id",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			input := args[0]
			if out == "" {
				ext := filepath.Ext(input)
				out = strings.TrimSuffix(input, ext) + ".compact" + ext
				if _, err := os.Stat(out); err == nil {
					out = utils.RenewOutputPath(out)
				}
			}
			if filepath.Clean(out) == filepath.Clean(input) {
				return errors.New("refusing to compact in place, choose a different --output")
			}
			store, err := newStore(input, "title")
			if err != nil {
				return err
			}
			scan, err := store.Records()
			if err != nil {
				return err
			}
			records := history.Compact(scan.Records)
			if err := history.WriteFile(out, records); err != nil {
				return err
			}
			log.Info().
				Int("records", len(scan.Records)).
				Int("kept", len(records)).
				Int("malformed_dropped", len(scan.Malformed)).
				Str("output", out).
				Msg("history compacted")
			return nil
		},
	}
	cmd.Flags().StringVarP(&out, "output", "o", "", "Output file (default <name>.compact<ext>)")
	return cmd
}

func newHistoryPushCmd() *cobra.Command {
	var profile string
	cmd := &cobra.Command{
		Use:   "push FILE s3://bucket/key",
		Short: "Upload a history file to S3",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			s3sync, err := history.NewS3Sync(cmd.Context(), profile, log)
			if err != nil {
				return err
			}
			return s3sync.Push(cmd.Context(), args[0], args[1])
		},
	}
	cmd.Flags().StringVar(&profile, "profile", "", "AWS shared config profile (default AWS_PROFILE or default)")
	return cmd
}

func newHistoryPullCmd() *cobra.Command {
	var profile string
	cmd := &cobra.Command{
		Use:   "pull s3://bucket/key FILE",
		Short: "Download a history file from S3, replacing the local copy",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			s3sync, err := history.NewS3Sync(cmd.Context(), profile, log)
			if err != nil {
				return err
			}
			return s3sync.Pull(cmd.Context(), args[0], args[1])
		},
	}
	cmd.Flags().StringVar(&profile, "profile", "", "AWS shared config profile (default AWS_PROFILE or default)")
	return cmd
}
