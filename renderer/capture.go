package renderer

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"image/png"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"scene-studio/editor"
)

// captureState keeps the offscreen target and readback buffer between
// captures of the same size.
type captureState struct {
	target RenderTarget
	buffer []byte
}

func (c *captureState) dispose() error {
	if c.target == nil {
		return nil
	}
	err := c.target.Dispose()
	c.target = nil
	c.buffer = nil
	return err
}

// CaptureSize is an output size for an aspect ratio preset.
type CaptureSize struct {
	Width, Height int
}

var captureSizes = map[string]CaptureSize{
	"1:1":  {1024, 1024},
	"2:3":  {896, 1344},
	"3:4":  {768, 1024},
	"4:5":  {1024, 1280},
	"9:16": {736, 1280},
	"3:2":  {1344, 896},
	"4:3":  {1024, 768},
	"5:4":  {1280, 1024},
	"16:9": {1280, 736},
}

// CaptureSizeFor returns the preset for ratio such as "16:9". Unknown
// ratios get the square preset.
func CaptureSizeFor(ratio string) CaptureSize {
	if size, ok := captureSizes[ratio]; ok {
		return size
	}
	return captureSizes["1:1"]
}

// Capture renders the scene offscreen at width x height and returns the
// image with the top row first. A zero width or height takes the canvas
// size in logical pixels. Highlight overlays, the gizmo and UI nodes
// are hidden for the capture; the camera aspect and the canvas are left as
// they were.
func (s *Studio) Capture(width, height int) (*image.RGBA, error) {
	_, span := s.tracer.Start(context.Background(), "studio.Capture",
		trace.WithAttributes(attribute.Int("width", width), attribute.Int("height", height)))
	defer span.End()

	start := time.Now()
	img, err := s.capture(width, height)
	s.metrics.RecordCapture(err, time.Since(start))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "capture failed")
		s.logger.Warn("capture failed", zap.Int("width", width), zap.Int("height", height), zap.Error(err))
		return nil, err
	}
	return img, nil
}

func (s *Studio) capture(width, height int) (*image.RGBA, error) {
	if width < 0 || height < 0 {
		return nil, fmt.Errorf("capture: invalid size %dx%d", width, height)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.checkLocked(); err != nil {
		return nil, err
	}
	if width == 0 {
		width = s.viewport.Width
	}
	if height == 0 {
		height = s.viewport.Height
	}
	if width == 0 || height == 0 {
		return nil, errors.New("capture: no size given and the canvas is empty")
	}

	savedAspect := s.camera.AspectRatio
	vis := editor.HideAll(s.scene.Root)
	defer func() {
		vis.Restore()
		s.camera.SetAspect(savedAspect)
	}()
	s.camera.SetAspect(float32(width) / float32(height))

	target, err := s.captureTargetLocked(width, height)
	if err != nil {
		return nil, err
	}
	if err := s.backends.Rasterizer.RenderTo(target, s.scene, s.camera); err != nil {
		return nil, fmt.Errorf("capture render: %w", err)
	}
	if err := s.backends.Rasterizer.ReadPixels(target, s.offscreen.buffer); err != nil {
		return nil, fmt.Errorf("capture readback: %w", err)
	}

	img := image.NewRGBA(image.Rect(0, 0, width, height))
	flipRows(img.Pix, s.offscreen.buffer, width*4, height)
	return img, nil
}

// captureTargetLocked returns a target of the requested size, reusing the
// previous one when the size matches.
func (s *Studio) captureTargetLocked(width, height int) (RenderTarget, error) {
	if t := s.offscreen.target; t != nil {
		if w, h := t.Size(); w == width && h == height {
			return t, nil
		}
		s.logDisposal("capture target", s.offscreen.dispose())
	}
	t, err := s.backends.Rasterizer.NewRenderTarget(width, height)
	if err != nil {
		return nil, fmt.Errorf("capture target: %w", err)
	}
	s.offscreen.target = t
	s.offscreen.buffer = make([]byte, width*height*4)
	return t, nil
}

// flipRows copies src into dst with the row order reversed.
func flipRows(dst, src []byte, stride, rows int) {
	for y := 0; y < rows; y++ {
		copy(dst[y*stride:(y+1)*stride], src[(rows-1-y)*stride:(rows-y)*stride])
	}
}

// CapturePNG captures and encodes the result as PNG.
func (s *Studio) CapturePNG(width, height int) ([]byte, error) {
	img, err := s.Capture(width, height)
	if err != nil {
		return nil, err
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, fmt.Errorf("encode png: %w", err)
	}
	return buf.Bytes(), nil
}

// CaptureRatio captures at the preset size for ratio.
func (s *Studio) CaptureRatio(ratio string) (*image.RGBA, error) {
	size := CaptureSizeFor(ratio)
	return s.Capture(size.Width, size.Height)
}
