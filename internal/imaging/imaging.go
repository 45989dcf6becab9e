// Package imaging normalizes generated images for display: decode, fit-crop
// to the output frame and save as PNG.
package imaging

import (
	"bytes"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	"image/png"
	"os"
	"path/filepath"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"golang.org/x/image/draw"
	_ "golang.org/x/image/webp"
)

// Saver writes generated image payloads into the output directory.
type Saver struct {
	outputDir string
	width     int
	height    int
	log       zerolog.Logger
}

func NewSaver(outputDir string, width, height int, log zerolog.Logger) *Saver {
	return &Saver{
		outputDir: outputDir,
		width:     width,
		height:    height,
		log:       log.With().Str("component", "imaging").Logger(),
	}
}

// Filename derives the collision-resistant output name for a batch.
func Filename(batchID string, now time.Time) string {
	short := batchID
	if len(short) > 8 {
		short = short[:8]
	}
	return fmt.Sprintf("batch_%s_%d.png", short, now.Unix())
}

// Save decodes data, fit-crops it to the configured frame and writes it as
// PNG under the output directory, returning the stored path. A payload that
// cannot be decoded is written verbatim so the artifact is never lost.
func (s *Saver) Save(data []byte, filename string) (string, error) {
	if err := os.MkdirAll(s.outputDir, 0o755); err != nil {
		return "", errors.Wrap(err, "create output dir")
	}
	path := filepath.Join(s.outputDir, filename)

	src, format, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		s.log.Warn().Err(err).Str("file", filename).Msg("decode failed, saving raw payload")
		if werr := os.WriteFile(path, data, 0o644); werr != nil {
			return "", errors.Wrap(werr, "write raw image")
		}
		return path, nil
	}

	out := fitCrop(src, s.width, s.height)

	f, err := os.Create(path)
	if err != nil {
		return "", errors.Wrap(err, "create image file")
	}
	defer f.Close()

	if err := png.Encode(f, out); err != nil {
		return "", errors.Wrap(err, "encode png")
	}

	s.log.Info().Str("file", filename).Str("source_format", format).
		Int("width", s.width).Int("height", s.height).Msg("image saved")
	return path, nil
}

// fitCrop scales src to fill a width x height frame preserving aspect ratio
// and center-crops the overflow, like PIL's ImageOps.fit.
func fitCrop(src image.Image, width, height int) *image.RGBA {
	sb := src.Bounds()
	srcW, srcH := sb.Dx(), sb.Dy()

	targetRatio := float64(width) / float64(height)
	srcRatio := float64(srcW) / float64(srcH)

	cropW, cropH := srcW, srcH
	if srcRatio > targetRatio {
		cropW = int(float64(srcH) * targetRatio)
	} else {
		cropH = int(float64(srcW) / targetRatio)
	}

	x0 := sb.Min.X + (srcW-cropW)/2
	y0 := sb.Min.Y + (srcH-cropH)/2
	cropRect := image.Rect(x0, y0, x0+cropW, y0+cropH)

	dst := image.NewRGBA(image.Rect(0, 0, width, height))
	draw.CatmullRom.Scale(dst, dst.Bounds(), src, cropRect, draw.Src, nil)
	return dst
}
