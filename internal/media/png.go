package media

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	"image/png"
	"strings"

	_ "golang.org/x/image/webp"
)

var ErrNotImage = errors.New("media is not a decodable image")

// ToPNG re-encodes image bytes as PNG, the one format every clipboard accepts.
// PNG input is returned unchanged.
func ToPNG(data []byte, mimeType string) ([]byte, error) {
	if !strings.HasPrefix(mimeType, "image/") {
		return nil, ErrNotImage
	}
	if mimeType == "image/png" {
		return data, nil
	}
	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("%w: decode %s: %v", ErrNotImage, mimeType, err)
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, fmt.Errorf("encode png: %w", err)
	}
	return buf.Bytes(), nil
}
