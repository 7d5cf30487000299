package camera

import (
	"image"
	"image/color"
	"testing"

	"github.com/stretchr/testify/assert"
)

func solid(w, h int, c color.RGBA) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.SetRGBA(x, y, c)
		}
	}
	return img
}

func TestAnnotateDrawsDetectionsAboveThreshold(t *testing.T) {
	black := color.RGBA{A: 255}
	src := solid(200, 200, black)

	out := Annotate(src, []Detection{
		{Label: "person", Confidence: 0.9, Box: image.Rect(50, 60, 150, 180)},
		{Label: "dog", Confidence: 0.45, Box: image.Rect(10, 10, 40, 40)},
	})

	assert.Equal(t, boxColor, out.RGBAAt(100, 60), "top edge of the box")
	assert.Equal(t, boxColor, out.RGBAAt(50, 120), "left edge of the box")
	assert.Equal(t, black, out.RGBAAt(100, 120), "box interior untouched")
	assert.Equal(t, black, out.RGBAAt(10, 25), "detection at threshold is not drawn")
	assert.Equal(t, black, src.RGBAAt(100, 60), "source frame is not modified")
}

func TestAnnotateClipsBoxesOutsideFrame(t *testing.T) {
	src := solid(100, 100, color.RGBA{A: 255})
	out := Annotate(src, []Detection{
		{Label: "car", Confidence: 0.99, Box: image.Rect(-20, -20, 300, 300)},
		{Label: "bus", Confidence: 0.99, Box: image.Rect(500, 500, 600, 600)},
	})
	assert.Equal(t, boxColor, out.RGBAAt(0, 50))
	assert.Equal(t, boxColor, out.RGBAAt(99, 50))
}

func TestConfidenceText(t *testing.T) {
	assert.Equal(t, "Conf: 87.50%", ConfidenceText(0.875))
	assert.Equal(t, "Conf: 100.00%", ConfidenceText(1))
}

func TestClassLabel(t *testing.T) {
	assert.Equal(t, "person", ClassLabel(15))
	assert.Equal(t, "tvmonitor", ClassLabel(20))
	assert.Equal(t, "unknown", ClassLabel(21))
	assert.Equal(t, "unknown", ClassLabel(-1))
}

func TestLeftHalfKeepsFrameSize(t *testing.T) {
	red := color.RGBA{R: 255, A: 255}
	blue := color.RGBA{B: 255, A: 255}
	src := image.NewRGBA(image.Rect(0, 0, 80, 40))
	for y := 0; y < 40; y++ {
		for x := 0; x < 80; x++ {
			if x < 40 {
				src.SetRGBA(x, y, red)
			} else {
				src.SetRGBA(x, y, blue)
			}
		}
	}

	out := LeftHalf(src)
	assert.Equal(t, src.Bounds().Size(), out.Bounds().Size())
	assert.Equal(t, red, out.RGBAAt(10, 20))
	assert.Equal(t, red, out.RGBAAt(60, 20))
}

func TestPlaceholderIsJPEG(t *testing.T) {
	data, err := placeholderJPEG(80)
	assert.NoError(t, err)
	assert.Equal(t, []byte{0xFF, 0xD8}, data[:2])
}
