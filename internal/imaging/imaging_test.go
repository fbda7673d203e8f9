package imaging

import (
	"bytes"
	"errors"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"testing"

	"github.com/erazemk/paralibrary/internal/model"
)

func fill(w, h int, c color.Color) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for x := 0; x < w; x++ {
		for y := 0; y < h; y++ {
			img.Set(x, y, c)
		}
	}
	return img
}

func createTestJPEG(w, h int) []byte {
	var buf bytes.Buffer
	jpeg.Encode(&buf, fill(w, h, color.RGBA{255, 0, 0, 255}), &jpeg.Options{Quality: 90})
	return buf.Bytes()
}

func createTestPNG(w, h int) []byte {
	var buf bytes.Buffer
	png.Encode(&buf, fill(w, h, color.RGBA{0, 0, 255, 255}))
	return buf.Bytes()
}

func decodeBounds(t *testing.T, p *Picture) image.Rectangle {
	t.Helper()
	img, _, err := image.Decode(bytes.NewReader(p.Data))
	if err != nil {
		t.Fatalf("decoding result: %v", err)
	}
	return img.Bounds()
}

func TestProcessJPEG(t *testing.T) {
	result, err := ProcessPicture(bytes.NewReader(createTestJPEG(100, 100)))
	if err != nil {
		t.Fatalf("ProcessPicture JPEG: %v", err)
	}
	if result.MIME != "image/jpeg" {
		t.Errorf("expected image/jpeg, got %s", result.MIME)
	}
	if len(result.Data) == 0 {
		t.Error("expected non-empty data")
	}
}

func TestProcessPNG(t *testing.T) {
	result, err := ProcessPicture(bytes.NewReader(createTestPNG(100, 100)))
	if err != nil {
		t.Fatalf("ProcessPicture PNG: %v", err)
	}
	if result.MIME != "image/jpeg" {
		t.Errorf("expected image/jpeg (always outputs JPEG), got %s", result.MIME)
	}
}

func TestProcessCropsAndScales(t *testing.T) {
	result, err := ProcessPicture(bytes.NewReader(createTestJPEG(1200, 800)))
	if err != nil {
		t.Fatalf("ProcessPicture: %v", err)
	}

	b := decodeBounds(t, result)
	if b.Dx() != PictureSize || b.Dy() != PictureSize {
		t.Errorf("expected %dx%d, got %dx%d", PictureSize, PictureSize, b.Dx(), b.Dy())
	}
}

func TestProcessSmallImageNotUpscaled(t *testing.T) {
	result, err := ProcessPicture(bytes.NewReader(createTestJPEG(80, 50)))
	if err != nil {
		t.Fatalf("ProcessPicture small image: %v", err)
	}

	b := decodeBounds(t, result)
	if b.Dx() != 50 || b.Dy() != 50 {
		t.Errorf("small image should only be cropped: got %dx%d", b.Dx(), b.Dy())
	}
}

func TestProcessInvalidFormat(t *testing.T) {
	_, err := ProcessPicture(bytes.NewReader([]byte("not an image")))
	if !errors.Is(err, model.ErrValidation) {
		t.Errorf("expected validation error for invalid format, got %v", err)
	}
}

func TestProcessGIFRejected(t *testing.T) {
	_, err := ProcessPicture(bytes.NewReader([]byte("GIF89a...")))
	if err == nil {
		t.Error("expected error for GIF")
	}
}

func TestProcessTooLarge(t *testing.T) {
	data := append(createTestPNG(4, 4), make([]byte, MaxUploadBytes)...)
	_, err := ProcessPicture(bytes.NewReader(data))
	if !errors.Is(err, model.ErrValidation) {
		t.Errorf("expected validation error for oversized upload, got %v", err)
	}
}
