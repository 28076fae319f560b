// Package frame captures game frames and recognises the track on screen.
package frame

import (
	"context"
	"errors"
	"fmt"
	"image"
	"log/slog"

	"github.com/kbinani/screenshot"
	"golang.org/x/image/draw"
)

// Size is the side of the square frames used for matching.
const Size = 128

// ErrEmptyRect is returned by a ScreenSource without a capture area.
var ErrEmptyRect = errors.New("capture rectangle is empty")

// Source produces one frame of the game window.
type Source interface {
	Capture(ctx context.Context) (*image.RGBA, error)
}

// ScreenSource grabs a rectangle of the X display and scales it down.
type ScreenSource struct {
	Rect   image.Rectangle
	Logger *slog.Logger
}

// NewScreenSource captures the window placed at x, y with the given size.
func NewScreenSource(x, y, width, height int, logger *slog.Logger) *ScreenSource {
	if logger == nil {
		logger = slog.Default()
	}
	return &ScreenSource{
		Rect:   image.Rect(x, y, x+width, y+height),
		Logger: logger,
	}
}

func (s *ScreenSource) Capture(ctx context.Context) (*image.RGBA, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if s.Rect.Empty() {
		return nil, ErrEmptyRect
	}
	img, err := screenshot.CaptureRect(s.Rect)
	if err != nil {
		return nil, fmt.Errorf("capturing %v: %w", s.Rect, err)
	}
	s.Logger.Debug("frame captured", "rect", s.Rect.String())
	return Scale(img), nil
}

// Scale resizes img to a Size x Size RGBA frame.
func Scale(img image.Image) *image.RGBA {
	dst := image.NewRGBA(image.Rect(0, 0, Size, Size))
	if img.Bounds().Dx() == Size && img.Bounds().Dy() == Size {
		draw.Draw(dst, dst.Bounds(), img, img.Bounds().Min, draw.Src)
		return dst
	}
	draw.ApproxBiLinear.Scale(dst, dst.Bounds(), img, img.Bounds(), draw.Src, nil)
	return dst
}

// RGB flattens a frame into the Size*Size*3 row-major byte layout sent to agents.
func RGB(img *image.RGBA) []byte {
	out := make([]byte, 0, Size*Size*3)
	if img == nil {
		return out[:Size*Size*3]
	}
	src := Scale(img)
	for i := 0; i+3 < len(src.Pix); i += 4 {
		out = append(out, src.Pix[i], src.Pix[i+1], src.Pix[i+2])
	}
	return out
}
