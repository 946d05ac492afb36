package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/dudu/faceoverlay/internal/pipeline"
	"github.com/dudu/faceoverlay/internal/render"
	"github.com/dudu/faceoverlay/internal/ui"
)

// Version is the application version.
const Version = "0.1.0"

// Options holds settings shared by the live and replay commands
type Options struct {
	LogLevel      string
	DisplayWidth  int
	DisplayHeight int
	Blend         float64
	ModelWidth    float64
	WindowsOnly   bool
	Outline       bool
	Background    float64
	Feather       int
	NoFPS         bool
}

// pipelineConfig builds the pipeline settings from the shared flags
func (o Options) pipelineConfig() (pipeline.Config, error) {
	config := pipeline.DefaultConfig()
	config.DisplayWidth = o.DisplayWidth
	config.DisplayHeight = o.DisplayHeight
	config.Blend = o.Blend
	config.ModelWidth = o.ModelWidth
	config.TrackObject = !o.WindowsOnly
	for i := range config.Styles {
		config.Styles[i].Outline = o.Outline
	}
	return config, config.Validate()
}

// renderOptions builds the compositor settings from the shared flags
func (o Options) renderOptions() render.Options {
	r := render.DefaultOptions(o.DisplayWidth, o.DisplayHeight)
	r.Background = o.Background
	r.Feather = o.Feather
	r.Gizmo = !o.WindowsOnly
	return r
}

// newWindow opens the preview window at the display size
func (o Options) newWindow(name string) *ui.Window {
	window := ui.NewWindow(name, o.DisplayWidth, o.DisplayHeight)
	window.SetShowFPS(!o.NoFPS)
	return window
}

// logger creates the stderr text logger at the requested level
func (o Options) logger() (*slog.Logger, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(o.LogLevel)); err != nil {
		return nil, fmt.Errorf("invalid --log-level %q: %w", o.LogLevel, err)
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})), nil
}

func newRootCmd() *cobra.Command {
	opts := Options{}
	live := liveOptions{}

	rootCmd := &cobra.Command{
		Use:   "faceoverlay",
		Short: "Clip a live camera feed into eye and mouth windows that follow your face",
		Long: `faceoverlay tracks face mesh landmarks on a camera feed, paints the video only
inside eye and mouth shaped windows, and follows the head pose with a stabilized gizmo.

Press 'q' or ESC in the preview window to quit.`,
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
		Args:          cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			live.applyEnv()
			return runLive(cmd.Context(), opts, live)
		},
	}
	rootCmd.SetVersionTemplate(`{{printf "%s\n" .Version}}`)

	defaults := pipeline.DefaultConfig()
	pf := rootCmd.PersistentFlags()
	pf.StringVar(&opts.LogLevel, "log-level", "info", "Log level: debug, info, warn or error")
	pf.IntVar(&opts.DisplayWidth, "width", defaults.DisplayWidth, "Display width in pixels")
	pf.IntVar(&opts.DisplayHeight, "height", defaults.DisplayHeight, "Display height in pixels")
	pf.Float64Var(&opts.Blend, "blend", defaults.Blend, "Pose smoothing factor in (0, 1], higher follows faster")
	pf.Float64Var(&opts.ModelWidth, "model-width", defaults.ModelWidth, "Width of the tracked object at scale 1")
	pf.BoolVar(&opts.WindowsOnly, "windows-only", false, "Draw the windows without tracking the head pose")
	pf.BoolVar(&opts.Outline, "outline", false, "Outline the eye and mouth windows")
	pf.Float64Var(&opts.Background, "background", 0, "Brightness of the video outside the windows, 0 to 1")
	pf.IntVar(&opts.Feather, "feather", 0, "Soften window edges with a blur of this many pixels")
	pf.BoolVar(&opts.NoFPS, "no-fps", false, "Hide the FPS counter in the preview window")

	live.bindFlags(rootCmd)

	rootCmd.AddCommand(newReplayCmd(&opts))
	return rootCmd
}
