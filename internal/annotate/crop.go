// Package annotate produces the per-track image attached to persisted
// geopoints by cropping the track's box out of the frame image.
package annotate

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"image/jpeg"
	"math"

	// Frame images may arrive as PNG as well as JPEG.
	_ "image/png"

	"github.com/disintegration/gift"

	"github.com/banshee-data/geotrack/internal/pipeline"
	"github.com/banshee-data/geotrack/internal/tracking"
)

// ErrOutsideImage is returned when a track's box does not overlap the image.
var ErrOutsideImage = errors.New("track box lies outside the frame image")

// Cropper implements pipeline.Annotator. Frames without an image yield an
// empty annotation.
type Cropper struct {
	// MaxSide bounds the longest side of the crop; larger crops are scaled
	// down. Zero keeps the native size.
	MaxSide int
	// Quality is the JPEG quality; zero means jpeg.DefaultQuality.
	Quality int
}

// Annotate implements pipeline.Annotator.
func (c Cropper) Annotate(ctx context.Context, f pipeline.Frame, tr tracking.Track) (pipeline.Annotation, error) {
	if len(f.Image) == 0 {
		return pipeline.Annotation{}, nil
	}
	if err := ctx.Err(); err != nil {
		return pipeline.Annotation{}, err
	}

	src, _, err := image.Decode(bytes.NewReader(f.Image))
	if err != nil {
		return pipeline.Annotation{}, fmt.Errorf("decode frame image: %w", err)
	}

	rect, err := cropRect(src.Bounds(), f.Width, f.Height, tr)
	if err != nil {
		return pipeline.Annotation{}, err
	}

	filters := []gift.Filter{gift.Crop(rect)}
	if c.MaxSide > 0 && (rect.Dx() > c.MaxSide || rect.Dy() > c.MaxSide) {
		filters = append(filters, gift.ResizeToFit(c.MaxSide, c.MaxSide, gift.LinearResampling))
	}
	g := gift.New(filters...)
	dst := image.NewRGBA(g.Bounds(src.Bounds()))
	g.Draw(dst, src)

	quality := c.Quality
	if quality <= 0 {
		quality = jpeg.DefaultQuality
	}
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, dst, &jpeg.Options{Quality: quality}); err != nil {
		return pipeline.Annotation{}, fmt.Errorf("encode crop: %w", err)
	}
	return pipeline.Annotation{Image: buf.Bytes()}, nil
}

// cropRect maps the track box from frame pixels onto image pixels.
func cropRect(bounds image.Rectangle, frameW, frameH float64, tr tracking.Track) (image.Rectangle, error) {
	if !(frameW > 0) || !(frameH > 0) {
		return image.Rectangle{}, fmt.Errorf("invalid frame size %gx%g", frameW, frameH)
	}
	sx := float64(bounds.Dx()) / frameW
	sy := float64(bounds.Dy()) / frameH

	r := image.Rect(
		bounds.Min.X+int(math.Floor(tr.Rect.Left*sx)),
		bounds.Min.Y+int(math.Floor(tr.Rect.Top*sy)),
		bounds.Min.X+int(math.Ceil(tr.Rect.Right*sx)),
		bounds.Min.Y+int(math.Ceil(tr.Rect.Bottom*sy)),
	).Intersect(bounds)
	if r.Empty() {
		return image.Rectangle{}, ErrOutsideImage
	}
	return r, nil
}
