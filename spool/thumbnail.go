package spool

import (
	"bytes"
	"image"
	"image/jpeg"
	"os"
	"path/filepath"
	"strings"

	"golang.org/x/image/draw"
)

// thumbnailMaxDim bounds the longest edge of a generated preview.
const thumbnailMaxDim = 320

// writeThumbnail decodes data as a JPEG and writes a downsampled preview next to
// the full-resolution file, named <original>.thumb.jpg. Non-JPEG data (RAW best-
// effort downloads, unknown formats) is silently skipped: thumbnailing is an
// enrichment on top of the primary transfer, never a requirement for it.
func writeThumbnail(dir, filename string, data []byte) (string, error) {
	if !strings.HasSuffix(strings.ToLower(filename), ".jpg") && !strings.HasSuffix(strings.ToLower(filename), ".jpeg") {
		return "", errNotJPEG
	}

	src, err := jpeg.Decode(bytes.NewReader(data))
	if err != nil {
		return "", err
	}

	dst := scaleDown(src, thumbnailMaxDim)

	thumbName := filename + ".thumb.jpg"
	thumbPath := filepath.Join(dir, thumbName)

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, dst, &jpeg.Options{Quality: 80}); err != nil {
		return "", err
	}
	if err := os.WriteFile(thumbPath, buf.Bytes(), 0o644); err != nil {
		return "", err
	}
	return thumbPath, nil
}

// scaleDown resizes src so its longest edge is at most maxDim, preserving aspect
// ratio, using a Catmull-Rom resampler for a sharper preview than a simple box
// filter would give.
func scaleDown(src image.Image, maxDim int) image.Image {
	b := src.Bounds()
	w, h := b.Dx(), b.Dy()
	if w <= maxDim && h <= maxDim {
		return src
	}

	ratio := float64(maxDim) / float64(w)
	if h > w {
		ratio = float64(maxDim) / float64(h)
	}
	newW := int(float64(w) * ratio)
	newH := int(float64(h) * ratio)
	if newW < 1 {
		newW = 1
	}
	if newH < 1 {
		newH = 1
	}

	dst := image.NewRGBA(image.Rect(0, 0, newW, newH))
	draw.CatmullRom.Scale(dst, dst.Bounds(), src, b, draw.Over, nil)
	return dst
}

type thumbError string

func (e thumbError) Error() string { return string(e) }

const errNotJPEG = thumbError("spool: thumbnail generation skipped: not a JPEG")
