package images

import (
	"bytes"
	"image"
	"image/color"
	"image/png"
	"sync"
)

var placeholderOnce struct {
	sync.Once
	asset *Asset
}

// Placeholder returns the fixed fallback asset used when an item's image
// cannot be resolved: a flat light-gray square, generated once per process.
func Placeholder() *Asset {
	placeholderOnce.Do(func() {
		img := image.NewNRGBA(image.Rect(0, 0, 400, 400))
		fill := color.NRGBA{R: 240, G: 240, B: 240, A: 255}
		for y := 0; y < 400; y++ {
			for x := 0; x < 400; x++ {
				img.SetNRGBA(x, y, fill)
			}
		}
		var buf bytes.Buffer
		if err := png.Encode(&buf, img); err != nil {
			panic("encode placeholder: " + err.Error())
		}
		placeholderOnce.asset = &Asset{Bytes: buf.Bytes(), ContentType: "image/png", IsPlaceholder: true}
	})
	return placeholderOnce.asset
}
