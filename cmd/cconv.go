package cmd

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"github.com/tanq16/utools/internal/cconv"
)

func newCConvCmd() *cobra.Command {
	var kind string
	var batchMode, noBackup bool
	cmd := &cobra.Command{
		Use:   "cconv INPUT [OUTPUT]",
		Short: "Convert Chinese text in EPUB and TXT files between simplified and traditional",
		Args:  cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			conv, err := cconv.NewConverter(orDefault(kind, cfg.EPUB.DefaultConversion), log)
			if err != nil {
				return err
			}
			svc := cconv.NewService(conv, cconv.Options{
				Backup:       cfg.EPUB.CreateBackup && !noBackup,
				BackupSuffix: cfg.BackupSuffix,
			}, log)
			input := args[0]
			if batchMode {
				info, err := os.Stat(input)
				if err != nil || !info.IsDir() {
					return fmt.Errorf("batch input must be a directory: %s", input)
				}
				output := cconv.DefaultOutput(input, true)
				if len(args) == 2 {
					output = args[1]
				}
				res, err := svc.ConvertBatch(input, output)
				if err != nil {
					return err
				}
				for name, err := range res.Failed {
					log.Error().Err(err).Str("file", name).Msg("not converted")
				}
				return nil
			}
			output := cconv.DefaultOutput(input, false)
			if len(args) == 2 {
				output = args[1]
			}
			st, err := svc.ConvertFile(input, output)
			if err != nil {
				return err
			}
			log.Info().
				Int("files", st.FilesProcessed).
				Int("texts", st.TextsConverted).
				Int("errors", st.Errors).
				Msg("done")
			return nil
		},
	}
	cmd.Flags().StringVarP(&kind, "type", "t", "", "Conversion: "+strings.Join(cconv.ConversionTypes, ", ")+" (default EPUB_DEFAULT_CONVERSION)")
	cmd.Flags().BoolVarP(&batchMode, "batch", "b", false, "Convert every .epub and .txt file in the INPUT directory")
	cmd.Flags().BoolVar(&noBackup, "no-backup", false, "Do not keep a copy of the input")
	return cmd
}
