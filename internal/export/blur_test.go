package export

import (
	"bytes"
	"image"
	"image/color"
	"testing"

	"github.com/disintegration/imaging"

	"github.com/Tapedynamics/privacyguard/internal/models"
)

// checkerboard returns PNG bytes of a high-contrast pattern, so a blur
// measurably changes the covered pixels.
func checkerboard(t *testing.T, w, h int) []byte {
	t.Helper()
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			c := color.NRGBA{R: 255, G: 255, B: 255, A: 255}
			if ((x/8)+(y/8))%2 == 0 {
				c = color.NRGBA{A: 255}
			}
			img.SetNRGBA(x, y, c)
		}
	}
	var buf bytes.Buffer
	if err := imaging.Encode(&buf, img, imaging.PNG); err != nil {
		t.Fatalf("encode fixture: %v", err)
	}
	return buf.Bytes()
}

func TestRedactBlursBoxRegion(t *testing.T) {
	src := checkerboard(t, 64, 64)
	box := models.BoundingBox{Left: 0.25, Top: 0.25, Width: 0.5, Height: 0.5}

	out, err := Redact(src, []models.BoundingBox{box}, 10, 90)
	if err != nil {
		t.Fatalf("Redact: %v", err)
	}

	orig, err := imaging.Decode(bytes.NewReader(src))
	if err != nil {
		t.Fatalf("decode original: %v", err)
	}
	redacted, err := imaging.Decode(bytes.NewReader(out))
	if err != nil {
		t.Fatalf("decode redacted: %v", err)
	}

	// Center of the box: the checkerboard must have been smeared.
	if pixelDiff(orig, redacted, 32, 32) < 32 {
		t.Errorf("pixel inside box barely changed, expected a strong blur")
	}
	// Block interior outside the box: only JPEG noise is acceptable.
	if pixelDiff(orig, redacted, 4, 4) > 24 {
		t.Errorf("pixel outside box changed more than encoding noise allows")
	}
}

func TestRedactMultipleBoxes(t *testing.T) {
	src := checkerboard(t, 64, 64)
	boxes := []models.BoundingBox{
		{Left: 0, Top: 0, Width: 0.25, Height: 0.25},
		{Left: 0.75, Top: 0.75, Width: 0.25, Height: 0.25},
	}

	out, err := Redact(src, boxes, 10, 90)
	if err != nil {
		t.Fatalf("Redact: %v", err)
	}

	orig, _ := imaging.Decode(bytes.NewReader(src))
	redacted, _ := imaging.Decode(bytes.NewReader(out))

	if pixelDiff(orig, redacted, 8, 8) < 32 {
		t.Errorf("first box not blurred")
	}
	if pixelDiff(orig, redacted, 56, 56) < 32 {
		t.Errorf("second box not blurred")
	}
}

func TestRedactNoBoxesKeepsImage(t *testing.T) {
	src := checkerboard(t, 32, 32)

	out, err := Redact(src, nil, 10, 90)
	if err != nil {
		t.Fatalf("Redact: %v", err)
	}
	if len(out) == 0 {
		t.Fatal("empty output")
	}

	cfg, format, err := image.DecodeConfig(bytes.NewReader(out))
	if err != nil {
		t.Fatalf("decode output: %v", err)
	}
	if format != "jpeg" {
		t.Errorf("output format = %s, want jpeg", format)
	}
	if cfg.Width != 32 || cfg.Height != 32 {
		t.Errorf("output dimensions = %dx%d, want 32x32", cfg.Width, cfg.Height)
	}
}

func TestRedactDeterministic(t *testing.T) {
	src := checkerboard(t, 48, 48)
	box := models.BoundingBox{Left: 0.1, Top: 0.1, Width: 0.6, Height: 0.6}

	first, err := Redact(src, []models.BoundingBox{box}, 12, 85)
	if err != nil {
		t.Fatalf("first Redact: %v", err)
	}
	second, err := Redact(src, []models.BoundingBox{box}, 12, 85)
	if err != nil {
		t.Fatalf("second Redact: %v", err)
	}
	if !bytes.Equal(first, second) {
		t.Error("identical inputs produced different outputs")
	}
}

func TestRedactInvalidImage(t *testing.T) {
	if _, err := Redact([]byte("not an image"), nil, 10, 90); err == nil {
		t.Error("Redact accepted garbage input")
	}
}

func pixelDiff(a, b image.Image, x, y int) int {
	ar, ag, ab, _ := a.At(x, y).RGBA()
	br, bg, bb, _ := b.At(x, y).RGBA()
	diff := func(p, q uint32) int {
		d := int(p>>8) - int(q>>8)
		if d < 0 {
			d = -d
		}
		return d
	}
	total := diff(ar, br) + diff(ag, bg) + diff(ab, bb)
	return total / 3
}
