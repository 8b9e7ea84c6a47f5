package conversations

import (
	"bytes"
	"fmt"
	"image"
	"image/jpeg"
	"os"
	"strings"

	"github.com/gabriel-vasile/mimetype"
	xdraw "golang.org/x/image/draw"

	_ "image/gif"
	_ "image/png"

	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"
)

// Avatar limits imposed by the daemon transport: oversized conversation
// avatars are rejected outright, so compression is mandatory.
const (
	avatarMaxDim   = 128
	avatarMaxBytes = 16 * 1024
)

// compressAvatar loads a raster image and re-encodes it as a small JPEG:
// longest side scaled to avatarMaxDim, quality stepped down from 85 until
// the result fits avatarMaxBytes.
func compressAvatar(path string) ([]byte, error) {
	mt, err := mimetype.DetectFile(path)
	if err != nil {
		return nil, fmt.Errorf("read avatar: %w", err)
	}
	if !strings.HasPrefix(mt.String(), "image/") {
		return nil, fmt.Errorf("avatar is %s, not an image", mt.String())
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("read avatar: %w", err)
	}
	defer f.Close()

	img, _, err := image.Decode(f)
	if err != nil {
		return nil, fmt.Errorf("decode avatar: %w", err)
	}

	img = scaleDown(img, avatarMaxDim)

	for quality := 85; quality >= 25; quality -= 10 {
		var buf bytes.Buffer
		if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: quality}); err != nil {
			return nil, fmt.Errorf("encode avatar: %w", err)
		}
		if buf.Len() <= avatarMaxBytes {
			return buf.Bytes(), nil
		}
	}
	return nil, fmt.Errorf("avatar still over %d bytes at minimum quality", avatarMaxBytes)
}

// scaleDown shrinks img so its longest side is at most maxDim, keeping
// aspect ratio. Images already within bounds pass through unchanged.
func scaleDown(img image.Image, maxDim int) image.Image {
	b := img.Bounds()
	w, h := b.Dx(), b.Dy()
	if w <= maxDim && h <= maxDim {
		return img
	}
	if w >= h {
		h = h * maxDim / w
		w = maxDim
	} else {
		w = w * maxDim / h
		h = maxDim
	}
	if w < 1 {
		w = 1
	}
	if h < 1 {
		h = 1
	}
	dst := image.NewRGBA(image.Rect(0, 0, w, h))
	xdraw.CatmullRom.Scale(dst, dst.Bounds(), img, b, xdraw.Src, nil)
	return dst
}
