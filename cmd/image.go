package cmd

import (
	"os"

	"github.com/spf13/cobra"
	"github.com/tanq16/utools/internal/imagetool"
	"github.com/tanq16/utools/internal/ytdlp"
)

func newImageCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "image",
		Short: "Video frame extraction, camera capture and coordinate marking",
	}
	cmd.AddCommand(newImageFrameCmd())
	cmd.AddCommand(newImageCaptureCmd())
	cmd.AddCommand(newImageMarkCmd())
	return cmd
}

func newImageTool(needProbe bool) (*imagetool.Tool, error) {
	ffmpeg, err := ytdlp.EnsureFFmpeg()
	if err != nil {
		return nil, err
	}
	var ffprobe string
	if needProbe {
		if ffprobe, err = ytdlp.EnsureFFprobe(); err != nil {
			return nil, err
		}
	}
	return imagetool.New(ffmpeg, ffprobe, log), nil
}

func newImageFrameCmd() *cobra.Command {
	var video, outputDir string
	var seconds int
	cmd := &cobra.Command{
		Use:   "frame -v VIDEO -t SECONDS [-o DIR]",
		Short: "Save the frame at a given second of a video",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			tool, err := newImageTool(true)
			if err != nil {
				return err
			}
			path, err := tool.Frame(cmd.Context(), video, seconds, orDefault(outputDir, cfg.Image.DefaultOutputDir))
			if err != nil {
				return err
			}
			log.Info().Msgf("Frame at %d seconds saved as %s", seconds, path)
			return nil
		},
	}
	cmd.Flags().StringVarP(&video, "video", "v", "", "Input video file")
	cmd.Flags().IntVarP(&seconds, "time", "t", 0, "Time in seconds of the frame")
	cmd.Flags().StringVarP(&outputDir, "output", "o", "", "Output directory (default IMAGE_TOOL_DEFAULT_OUTPUT_DIR)")
	cmd.MarkFlagRequired("video")
	cmd.MarkFlagRequired("time")
	return cmd
}

func newImageCaptureCmd() *cobra.Command {
	var camera int
	var device, saveDir string
	cmd := &cobra.Command{
		Use:   "capture [-c INDEX] [--device NAME] [-s DIR]",
		Short: "Save camera stills with 's', quit with 'q'",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			tool, err := newImageTool(false)
			if err != nil {
				return err
			}
			if !cmd.Flags().Changed("camera") {
				camera = cfg.Image.DefaultCameraIndex
			}
			_, err = tool.Capture(cmd.Context(), camera, orDefault(device, cfg.Image.CameraDevice), orDefault(saveDir, cfg.Image.DefaultSaveDir), os.Stdin)
			return err
		},
	}
	cmd.Flags().IntVarP(&camera, "camera", "c", 0, "Camera index (default IMAGE_TOOL_DEFAULT_CAMERA_INDEX)")
	cmd.Flags().StringVar(&device, "device", "", "Camera device path or name, required on Windows (default IMAGE_TOOL_CAMERA_DEVICE)")
	cmd.Flags().StringVarP(&saveDir, "save-dir", "s", "", "Directory for captured images (default IMAGE_TOOL_DEFAULT_SAVE_DIR)")
	return cmd
}

func newImageMarkCmd() *cobra.Command {
	var ratio float64
	var outputDir string
	cmd := &cobra.Command{
		Use:   "mark IMAGE X,Y...",
		Short: "Mark display coordinates on a resized image and report the original coordinates",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			points, err := imagetool.ParsePoints(args[1:])
			if err != nil {
				return err
			}
			if !cmd.Flags().Changed("ratio") {
				ratio = cfg.Image.DefaultResizeRatio
			}
			_, err = imagetool.Mark(args[0], points, ratio, orDefault(outputDir, cfg.Image.DefaultOutputDir), log)
			return err
		},
	}
	cmd.Flags().Float64Var(&ratio, "ratio", 0.5, "Resize ratio of the display image (default IMAGE_TOOL_DEFAULT_RESIZE_RATIO)")
	cmd.Flags().StringVarP(&outputDir, "output", "o", "", "Output directory (default IMAGE_TOOL_DEFAULT_OUTPUT_DIR)")
	return cmd
}
