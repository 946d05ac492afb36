package pipeline

import (
	"errors"
	"fmt"
	"image/color"

	"github.com/dudu/faceoverlay/internal/pose"
)

// ErrInvalidConfig is returned by Validate and New for unusable settings
var ErrInvalidConfig = errors.New("invalid pipeline config")

// Config holds pipeline configuration
type Config struct {
	DisplayWidth  int
	DisplayHeight int
	Blend         float64 // pose smoothing factor in (0, 1]
	ModelWidth    float64 // width of the 3D object in model units at scale 1
	TrackObject   bool    // place the 3D object, not only the windows
	Styles        [regionCount]RegionStyle
}

// DefaultConfig returns the settings of the standard eye and mouth window effect
func DefaultConfig() Config {
	return Config{
		DisplayWidth:  1280,
		DisplayHeight: 720,
		Blend:         pose.DefaultBlend,
		ModelWidth:    1,
		TrackObject:   true,
		Styles: [regionCount]RegionStyle{
			RegionLeftEye:  {Color: color.RGBA{R: 124, G: 255, B: 214, A: 242}, LineWidth: 2},
			RegionRightEye: {Color: color.RGBA{R: 120, G: 192, B: 255, A: 242}, LineWidth: 2},
			RegionMouth:    {Color: color.RGBA{R: 255, G: 168, B: 120, A: 242}, LineWidth: 2},
		},
	}
}

// Validate checks the configuration
func (c Config) Validate() error {
	if c.DisplayWidth <= 0 || c.DisplayHeight <= 0 {
		return fmt.Errorf("%w: display size %dx%d", ErrInvalidConfig, c.DisplayWidth, c.DisplayHeight)
	}
	if !(c.Blend > 0 && c.Blend <= 1) {
		return fmt.Errorf("%w: blend %v not in (0, 1]", ErrInvalidConfig, c.Blend)
	}
	if !(c.ModelWidth > 0) {
		return fmt.Errorf("%w: model width %v", ErrInvalidConfig, c.ModelWidth)
	}
	for kind, s := range c.Styles {
		if s.LineWidth < 0 {
			return fmt.Errorf("%w: %s line width %d", ErrInvalidConfig, RegionKind(kind), s.LineWidth)
		}
	}
	return nil
}
