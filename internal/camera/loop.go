// Package camera runs live inference on a capture device and shows the
// result in a window.
package camera

import (
	"context"
	"fmt"
	"image"
	"time"

	"github.com/sirupsen/logrus"
	"gocv.io/x/gocv"

	"github.com/Brownie44l1/blight-api/internal/framelog"
	"github.com/Brownie44l1/blight-api/internal/hud"
	"github.com/Brownie44l1/blight-api/internal/pipeline"
	"github.com/Brownie44l1/blight-api/internal/retention"
)

const (
	keyEsc    = 27
	keySave   = 's'
	insetW    = 160
	insetH    = 120
	insetPad  = 10
	lineStart = 30
	lineStep  = 30
)

type Options struct {
	Device     int
	WindowName string
	// NoLeafSampleEvery saves one no-leaf frame out of this many.
	NoLeafSampleEvery int
}

type Loop struct {
	pipeline *pipeline.Pipeline
	frames   *framelog.Saver
	reaper   *retention.Reaper
	opts     Options
	logger   logrus.FieldLogger
}

func New(p *pipeline.Pipeline, frames *framelog.Saver, reaper *retention.Reaper, opts Options, logger logrus.FieldLogger) *Loop {
	if opts.WindowName == "" {
		opts.WindowName = "Potato Detector"
	}
	if opts.NoLeafSampleEvery <= 0 {
		opts.NoLeafSampleEvery = 150
	}
	return &Loop{
		pipeline: p,
		frames:   frames,
		reaper:   reaper,
		opts:     opts,
		logger:   logger,
	}
}

// Run processes one frame per iteration until Escape is pressed or ctx is
// done. It only returns an error if the device cannot be opened.
func (l *Loop) Run(ctx context.Context) error {
	webcam, err := gocv.OpenVideoCapture(l.opts.Device)
	if err != nil {
		return fmt.Errorf("cannot open camera %d: %w", l.opts.Device, err)
	}
	defer webcam.Close()
	if !webcam.IsOpened() {
		return fmt.Errorf("cannot open camera %d: check camera index or permissions", l.opts.Device)
	}

	window := gocv.NewWindow(l.opts.WindowName)
	defer window.Close()

	frame := gocv.NewMat()
	defer frame.Close()

	var fps hud.FPSMeter
	idx := 0
	for ctx.Err() == nil {
		if l.reaper != nil {
			l.reaper.MaybeScan()
		}

		if ok := webcam.Read(&frame); !ok || frame.Empty() {
			showBlank(window)
			if window.WaitKey(100) == keyEsc {
				return nil
			}
			continue
		}

		img, res, err := l.process(ctx, idx, frame)
		rate := fps.Tick(time.Now())
		overlay := frame.Clone()
		if err != nil {
			l.logger.WithError(err).WithField("frame", idx).Error("Frame processing failed")
			draw(&overlay, hud.ErrorLines(err, rate), nil)
		} else {
			draw(&overlay, hud.Lines(res.Decision, res.LeafRatio, rate), res.Mask)
		}
		window.IMShow(overlay)
		overlay.Close()

		switch window.WaitKey(1) {
		case keyEsc:
			return nil
		case keySave:
			l.frames.SaveManual(idx, img)
		}
		idx++
	}
	return nil
}

// process evaluates one frame and saves it when the decision calls for it.
// A panic anywhere in the pipeline is reported as an error for this frame.
func (l *Loop) process(ctx context.Context, idx int, frame gocv.Mat) (img image.Image, res pipeline.Result, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()

	img, err = frame.ToImage()
	if err != nil {
		return nil, pipeline.Result{}, fmt.Errorf("convert frame: %w", err)
	}

	res, err = l.pipeline.Evaluate(ctx, img)
	if err != nil {
		return img, pipeline.Result{}, err
	}

	d := res.Decision
	switch d.Kind {
	case pipeline.NoLeaf:
		if idx%l.opts.NoLeafSampleEvery == 0 {
			l.frames.SaveNoLeaf(idx, img)
		}
	case pipeline.LowConfidence:
		l.frames.SaveLowConfidence(idx, d.Label, d.Confidence, img)
	}

	l.logger.WithFields(logrus.Fields{
		"frame":      idx,
		"decision":   d.Kind,
		"label":      d.Label,
		"confidence": d.Confidence,
		"leaf_ratio": res.LeafRatio,
	}).Debug("Frame evaluated")
	return img, res, nil
}

func draw(dst *gocv.Mat, lines []hud.Line, mask *image.Gray) {
	for i, line := range lines {
		gocv.PutText(dst, line.Text, image.Pt(10, lineStart+i*lineStep),
			gocv.FontHersheySimplex, line.Scale, line.Color, line.Thickness)
	}
	if mask != nil {
		drawMask(dst, mask)
	}
}

// drawMask pastes a thumbnail of the leaf mask into the top-right corner.
func drawMask(dst *gocv.Mat, mask *image.Gray) {
	if dst.Cols() < insetW+2*insetPad || dst.Rows() < insetH+2*insetPad {
		return
	}

	m, err := gocv.ImageGrayToMatGray(mask)
	if err != nil {
		return
	}
	defer m.Close()

	small := gocv.NewMat()
	defer small.Close()
	gocv.Resize(m, &small, image.Pt(insetW, insetH), 0, 0, gocv.InterpolationLinear)

	bgr := gocv.NewMat()
	defer bgr.Close()
	gocv.CvtColor(small, &bgr, gocv.ColorGrayToBGR)

	x := dst.Cols() - insetPad - insetW
	roi := dst.Region(image.Rect(x, insetPad, x+insetW, insetPad+insetH))
	defer roi.Close()
	bgr.CopyTo(&roi)
}

func showBlank(window *gocv.Window) {
	blank := gocv.NewMatWithSizeFromScalar(gocv.NewScalar(0, 0, 0, 0), 480, 640, gocv.MatTypeCV8UC3)
	defer blank.Close()
	gocv.PutText(&blank, "NO CAMERA FRAME", image.Pt(20, 240), gocv.FontHersheySimplex, 1.0, hud.Red, 2)
	window.IMShow(blank)
}
