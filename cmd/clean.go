package cmd

import (
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"github.com/tanq16/utools/internal/output"
	"github.com/tanq16/utools/internal/utils"
)

func newCleanCmd() *cobra.Command {
	var all bool
	cmd := &cobra.Command{
		Use:   "clean [PATH]",
		Short: "Clean up temporary files",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := "."
			if len(args) == 1 {
				path = args[0]
			}
			if all {
				if err := os.RemoveAll(filepath.Join(path, utils.TempDirName)); err != nil {
					return err
				}
			} else if err := utils.Clean(path); err != nil {
				return err
			}
			output.PrintSuccess("Temporary files cleaned up")
			return nil
		},
	}
	cmd.Flags().BoolVar(&all, "all", false, "Also remove the downloaded yt-dlp binary")
	return cmd
}
