// Package pixconv converts between captured frame buffers and image.Image values.
package pixconv

import (
	"image"
	"image/draw"

	"github.com/user/stepcast/pkg/ports"
)

// PackedBGRA returns the frame as tightly packed BGRA (stride = width*4).
// The frame's own buffer is returned when no conversion is needed.
func PackedBGRA(f ports.RawFrame) []byte {
	rowBytes := f.Width * 4
	stride := f.RowStride()

	if f.PixelFormat == ports.PixelFormatBGRA && stride == rowBytes {
		return f.Data
	}

	out := make([]byte, rowBytes*f.Height)
	for y := 0; y < f.Height; y++ {
		src := f.Data[y*stride : y*stride+rowBytes]
		dst := out[y*rowBytes : (y+1)*rowBytes]
		copy(dst, src)
		if f.PixelFormat == ports.PixelFormatRGBA {
			swapRB(dst)
		}
	}
	return out
}

// BGRAToImage wraps packed BGRA pixels into a new RGBA image.
func BGRAToImage(pix []byte, width, height int) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, width, height))
	n := copy(img.Pix, pix)
	swapRB(img.Pix[:n])
	return img
}

// ImageToBGRA renders img into packed BGRA bytes.
func ImageToBGRA(img image.Image) []byte {
	b := img.Bounds()
	rgba, ok := img.(*image.RGBA)
	if !ok || rgba.Stride != b.Dx()*4 || b.Min != (image.Point{}) {
		rgba = image.NewRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
		draw.Draw(rgba, rgba.Bounds(), img, b.Min, draw.Src)
	}
	out := make([]byte, len(rgba.Pix))
	copy(out, rgba.Pix)
	swapRB(out)
	return out
}

// FlipVertical returns a copy of packed 4-byte pixels with rows in reverse order.
func FlipVertical(pix []byte, width, height int) []byte {
	rowBytes := width * 4
	out := make([]byte, len(pix))
	for y := 0; y < height; y++ {
		copy(out[(height-1-y)*rowBytes:(height-y)*rowBytes], pix[y*rowBytes:(y+1)*rowBytes])
	}
	return out
}

func swapRB(p []byte) {
	for i := 0; i+3 < len(p); i += 4 {
		p[i], p[i+2] = p[i+2], p[i]
	}
}
