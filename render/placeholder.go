package render

import (
	"bytes"
	"hash/fnv"
	"image"
	"image/color"
	"image/png"
)

// Placeholder sizes keep the 2:3 panel shape.
const (
	placeholderWidth  = 64
	placeholderHeight = 96
)

// Placeholder returns a small PNG whose color is derived from seed.
// When reason is non-empty the image is drawn with a red border so failed
// panels stand out in a layout.
func Placeholder(seed, reason string) []byte {
	h := fnv.New32a()
	h.Write([]byte(seed))
	sum := h.Sum32()
	fill := color.RGBA{R: uint8(sum >> 16), G: uint8(sum >> 8), B: uint8(sum), A: 0xff}
	border := color.RGBA{R: 0xd0, G: 0x20, B: 0x20, A: 0xff}

	img := image.NewRGBA(image.Rect(0, 0, placeholderWidth, placeholderHeight))
	for y := 0; y < placeholderHeight; y++ {
		for x := 0; x < placeholderWidth; x++ {
			c := fill
			if reason != "" && (x < 3 || y < 3 || x >= placeholderWidth-3 || y >= placeholderHeight-3) {
				c = border
			}
			img.SetRGBA(x, y, c)
		}
	}

	var buf bytes.Buffer
	// Encoding an in-memory RGBA image cannot fail.
	_ = png.Encode(&buf, img)
	return buf.Bytes()
}
