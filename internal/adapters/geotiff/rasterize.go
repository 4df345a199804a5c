package geotiff

import (
	"image"
)

// canvas is the NRGBA buffer that raw samples are written into.
//
// One band is replicated to R, G and B with opaque alpha. Three bands map
// to R, G and B with opaque alpha. With four bands the fourth sample is
// copied into alpha unchanged.
type canvas struct {
	img   *image.NRGBA
	bands int
}

func newCanvas(width, height, bands int) *canvas {
	img := image.NewNRGBA(image.Rect(0, 0, width, height))
	if bands < 4 {
		for i := 3; i < len(img.Pix); i += 4 {
			img.Pix[i] = 255
		}
	}
	return &canvas{img: img, bands: bands}
}

// set stores the sample of band at (x, y).
func (c *canvas) set(x, y, band int, v uint8) {
	i := y*c.img.Stride + x*4
	if c.bands == 1 {
		c.img.Pix[i], c.img.Pix[i+1], c.img.Pix[i+2] = v, v, v
		return
	}
	if band < 4 {
		c.img.Pix[i+band] = v
	}
}
