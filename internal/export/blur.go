package export

import (
	"bytes"
	"fmt"
	"image"

	"github.com/disintegration/imaging"

	"github.com/Tapedynamics/privacyguard/internal/models"
)

// Redact applies an irreversible Gaussian blur to each bounding box region
// of the image, leaving all other pixels untouched, and re-encodes as JPEG.
// The output is deterministic for identical inputs: decoding, blurring and
// encoding are all pure transforms.
func Redact(imageData []byte, boxes []models.BoundingBox, sigma float64, jpegQuality int) ([]byte, error) {
	img, err := imaging.Decode(bytes.NewReader(imageData))
	if err != nil {
		return nil, fmt.Errorf("decode image: %w", err)
	}

	bounds := img.Bounds()
	w, h := bounds.Dx(), bounds.Dy()

	result := imaging.Clone(img)
	for _, box := range boxes {
		x0, y0, x1, y1 := box.Denormalize(w, h)
		if x1 <= x0 || y1 <= y0 {
			continue
		}
		region := imaging.Crop(result, image.Rect(x0, y0, x1, y1))
		blurred := imaging.Blur(region, sigma)
		result = imaging.Paste(result, blurred, image.Pt(x0, y0))
	}

	var buf bytes.Buffer
	if err := imaging.Encode(&buf, result, imaging.JPEG, imaging.JPEGQuality(jpegQuality)); err != nil {
		return nil, fmt.Errorf("encode redacted image: %w", err)
	}
	return buf.Bytes(), nil
}
