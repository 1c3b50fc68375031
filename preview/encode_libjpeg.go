//go:build cgo

package preview

import (
	"image"
	"io"

	"github.com/pixiv/go-libjpeg/jpeg"
)

type encoderOptions = *jpeg.EncoderOptions

func jpegQuality(q int) encoderOptions {
	return &jpeg.EncoderOptions{Quality: q}
}

func encodeJpeg(w io.Writer, img image.Image, opts encoderOptions) error {
	return jpeg.Encode(w, img, opts)
}
