// Package hud formats the camera overlay.
package hud

import (
	"fmt"
	"image/color"
	"strings"
	"time"

	"github.com/Brownie44l1/blight-api/internal/pipeline"
)

var (
	Red    = color.RGBA{R: 255, A: 255}
	Yellow = color.RGBA{R: 255, G: 255, A: 255}
	White  = color.RGBA{R: 255, G: 255, B: 255, A: 255}
	Green  = color.RGBA{G: 200, A: 255}
	Gray   = color.RGBA{R: 200, G: 200, B: 200, A: 255}
)

// Line is one row of overlay text.
type Line struct {
	Text      string
	Scale     float64
	Color     color.RGBA
	Thickness int
}

// Status returns the headline and confidence text for a decision, plus the
// color both are drawn in. conf is empty for NoLeaf.
func Status(d pipeline.Decision) (label, conf string, c color.RGBA) {
	switch d.Kind {
	case pipeline.NoLeaf:
		return "NO LEAF DETECTED", "", Red
	case pipeline.LowConfidence:
		return "LOW CONFIDENCE", fmt.Sprintf("%.2f", d.Confidence), Yellow
	}
	c = Green
	if d.Label == "healthy" {
		c = White
	}
	return strings.ToUpper(d.Label), fmt.Sprintf("%.1f%%", d.Confidence*100), c
}

// Lines builds the overlay rows for one frame.
func Lines(d pipeline.Decision, greenRatio, fps float64) []Line {
	label, conf, c := Status(d)
	lines := []Line{{Text: "Label: " + label, Scale: 0.9, Color: c, Thickness: 2}}
	if conf != "" {
		lines = append(lines, Line{Text: "Confidence: " + conf, Scale: 0.8, Color: c, Thickness: 2})
	}
	return append(lines,
		Line{Text: fmt.Sprintf("Green ratio: %.3f", greenRatio), Scale: 0.6, Color: Gray, Thickness: 1},
		fpsLine(fps),
	)
}

// ErrorLines replaces the decision rows when a frame could not be evaluated.
func ErrorLines(err error, fps float64) []Line {
	return []Line{
		{Text: "ERROR: " + err.Error(), Scale: 0.6, Color: Red, Thickness: 2},
		fpsLine(fps),
	}
}

func fpsLine(fps float64) Line {
	return Line{Text: fmt.Sprintf("FPS: %.1f", fps), Scale: 0.6, Color: Gray, Thickness: 1}
}

// FPSMeter smooths frame rate with an exponential moving average.
type FPSMeter struct {
	last time.Time
	fps  float64
}

// Tick records a frame at now and returns the smoothed rate.
func (m *FPSMeter) Tick(now time.Time) float64 {
	if !m.last.IsZero() {
		if dt := now.Sub(m.last).Seconds(); dt > 0 {
			m.fps = 0.9*m.fps + 0.1/dt
		}
	}
	m.last = now
	return m.fps
}
