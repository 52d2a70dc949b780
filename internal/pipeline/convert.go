package pipeline

import (
	"bytes"
	"fmt"
	"image"
	"image/draw"
	"image/jpeg"
	"image/png"

	"github.com/phrazzld/easel-api/internal/domain"
)

const jpegQuality = 92

// Convert re-encodes image bytes into the target format. Converting to JPEG
// flattens transparency onto a white background since JPEG has no alpha
// channel.
func Convert(data []byte, target domain.OutputFormat) ([]byte, error) {
	src, format, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("failed to decode image: %w", err)
	}

	var buf bytes.Buffer
	switch target {
	case domain.FormatPNG:
		if format == "png" {
			return data, nil
		}
		if err := png.Encode(&buf, src); err != nil {
			return nil, fmt.Errorf("failed to encode png: %w", err)
		}
	case domain.FormatJPEG:
		if format == "jpeg" {
			return data, nil
		}
		if err := jpeg.Encode(&buf, flatten(src), &jpeg.Options{Quality: jpegQuality}); err != nil {
			return nil, fmt.Errorf("failed to encode jpeg: %w", err)
		}
	default:
		return nil, fmt.Errorf("%w: %q", domain.ErrInvalidOutputFormat, target)
	}

	return buf.Bytes(), nil
}

// flatten draws src over a white background.
func flatten(src image.Image) image.Image {
	bounds := src.Bounds()
	dst := image.NewRGBA(bounds)
	draw.Draw(dst, bounds, image.White, image.Point{}, draw.Src)
	draw.Draw(dst, bounds, src, bounds.Min, draw.Over)
	return dst
}
