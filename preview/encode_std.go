//go:build !cgo

package preview

import (
	"image"
	"image/jpeg"
	"io"
)

type encoderOptions = *jpeg.Options

func jpegQuality(q int) encoderOptions {
	return &jpeg.Options{Quality: q}
}

func encodeJpeg(w io.Writer, img image.Image, opts encoderOptions) error {
	return jpeg.Encode(w, img, opts)
}
