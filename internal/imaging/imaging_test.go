package imaging

import (
	"bytes"
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func encodePNG(t *testing.T, img image.Image) []byte {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

func solidImage(w, h int, c color.Color) image.Image {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, c)
		}
	}
	return img
}

func decodeFile(t *testing.T, path string) image.Image {
	t.Helper()
	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()
	img, _, err := image.Decode(f)
	require.NoError(t, err)
	return img
}

func TestSaveResizesToFrame(t *testing.T) {
	dir := t.TempDir()
	s := NewSaver(dir, 1920, 1280, zerolog.Nop())

	data := encodePNG(t, solidImage(640, 480, color.RGBA{R: 200, A: 255}))
	path, err := s.Save(data, "out.png")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "out.png"), path)

	got := decodeFile(t, path)
	assert.Equal(t, 1920, got.Bounds().Dx())
	assert.Equal(t, 1280, got.Bounds().Dy())
}

func TestSaveWideSourceCenterCropped(t *testing.T) {
	dir := t.TempDir()
	s := NewSaver(dir, 100, 100, zerolog.Nop())

	// Red left half, blue right half, very wide. Fit-crop keeps the center,
	// so both halves survive into the square output.
	src := image.NewRGBA(image.Rect(0, 0, 400, 100))
	for y := 0; y < 100; y++ {
		for x := 0; x < 400; x++ {
			if x < 200 {
				src.Set(x, y, color.RGBA{R: 255, A: 255})
			} else {
				src.Set(x, y, color.RGBA{B: 255, A: 255})
			}
		}
	}

	path, err := s.Save(encodePNG(t, src), "crop.png")
	require.NoError(t, err)

	got := decodeFile(t, path)
	require.Equal(t, 100, got.Bounds().Dx())
	require.Equal(t, 100, got.Bounds().Dy())

	r, _, _, _ := got.At(10, 50).RGBA()
	_, _, b, _ := got.At(90, 50).RGBA()
	assert.Greater(t, r, uint32(0x8000))
	assert.Greater(t, b, uint32(0x8000))
}

func TestSaveUndecodablePayloadWrittenRaw(t *testing.T) {
	dir := t.TempDir()
	s := NewSaver(dir, 1920, 1280, zerolog.Nop())

	raw := []byte("definitely not an image")
	path, err := s.Save(raw, "raw.png")
	require.NoError(t, err)

	got, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, raw, got)
}

func TestSaveCreatesOutputDir(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "nested", "images")
	s := NewSaver(dir, 50, 50, zerolog.Nop())

	data := encodePNG(t, solidImage(50, 50, color.RGBA{G: 255, A: 255}))
	_, err := s.Save(data, "a.png")
	require.NoError(t, err)
	assert.DirExists(t, dir)
}

func TestFilename(t *testing.T) {
	ts := time.Unix(1752350400, 0)
	assert.Equal(t, "batch_0a1b2c3d_1752350400.png",
		Filename("0a1b2c3d-ffff-4444-aaaa-bbbbccccdddd", ts))
	assert.Equal(t, "batch_xyz_1752350400.png", Filename("xyz", ts))
}

func TestFitCropTallSource(t *testing.T) {
	out := fitCrop(solidImage(100, 400, color.White), 100, 100)
	assert.Equal(t, 100, out.Bounds().Dx())
	assert.Equal(t, 100, out.Bounds().Dy())
}
