package camera

import (
	"bytes"
	"fmt"
	"image"
	"image/color"
	"image/jpeg"

	"golang.org/x/image/draw"
	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"
)

// DetectionThreshold is the minimum confidence for a detection to be drawn.
const DetectionThreshold = 0.45

var (
	boxColor   = color.RGBA{R: 0, G: 255, B: 0, A: 255}
	labelColor = color.RGBA{R: 255, G: 255, B: 0, A: 255}
	confColor  = color.RGBA{R: 0, G: 0, B: 255, A: 255}
	boxStroke  = 2
)

// Annotate returns a copy of img with every detection above
// DetectionThreshold drawn as a box with its label and confidence.
func Annotate(img image.Image, detections []Detection) *image.RGBA {
	out := toRGBA(img)
	for _, d := range detections {
		if d.Confidence <= DetectionThreshold {
			continue
		}
		box := d.Box.Intersect(out.Bounds())
		if box.Empty() {
			continue
		}
		drawRect(out, box, boxColor, boxStroke)
		drawText(out, d.Label, image.Pt(box.Min.X, box.Min.Y-18), labelColor)
		drawText(out, ConfidenceText(d.Confidence), image.Pt(box.Min.X, box.Min.Y-4), confColor)
	}
	return out
}

// ConfidenceText formats a confidence in [0,1] as "Conf: NN.NN%".
func ConfidenceText(conf float64) string {
	return fmt.Sprintf("Conf: %.2f%%", conf*100)
}

// LeftHalf crops the left half of a side-by-side stereo frame and scales it
// back to the original frame size.
func LeftHalf(img image.Image) *image.RGBA {
	b := img.Bounds()
	half := image.Rect(b.Min.X, b.Min.Y, b.Min.X+b.Dx()/2, b.Max.Y)
	out := image.NewRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
	draw.ApproxBiLinear.Scale(out, out.Bounds(), img, half, draw.Src, nil)
	return out
}

func encodeJPEG(img image.Image, quality int) ([]byte, error) {
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: quality}); err != nil {
		return nil, fmt.Errorf("encode jpeg: %w", err)
	}
	return buf.Bytes(), nil
}

// placeholderJPEG renders the frame served while no camera is readable.
func placeholderJPEG(quality int) ([]byte, error) {
	img := image.NewRGBA(image.Rect(0, 0, 640, 480))
	draw.Draw(img, img.Bounds(), &image.Uniform{C: color.RGBA{R: 32, G: 32, B: 32, A: 255}}, image.Point{}, draw.Src)
	drawText(img, "camara no disponible", image.Pt(250, 240), color.RGBA{R: 200, G: 200, B: 200, A: 255})
	return encodeJPEG(img, quality)
}

func toRGBA(img image.Image) *image.RGBA {
	b := img.Bounds()
	out := image.NewRGBA(b)
	draw.Draw(out, b, img, b.Min, draw.Src)
	return out
}

func drawRect(img *image.RGBA, r image.Rectangle, c color.Color, stroke int) {
	src := &image.Uniform{C: c}
	edges := []image.Rectangle{
		image.Rect(r.Min.X, r.Min.Y, r.Max.X, r.Min.Y+stroke),
		image.Rect(r.Min.X, r.Max.Y-stroke, r.Max.X, r.Max.Y),
		image.Rect(r.Min.X, r.Min.Y, r.Min.X+stroke, r.Max.Y),
		image.Rect(r.Max.X-stroke, r.Min.Y, r.Max.X, r.Max.Y),
	}
	for _, e := range edges {
		draw.Draw(img, e.Intersect(img.Bounds()), src, image.Point{}, draw.Src)
	}
}

// drawText writes s with its baseline at pt, nudged inside the image.
func drawText(img *image.RGBA, s string, pt image.Point, c color.Color) {
	face := basicfont.Face7x13
	b := img.Bounds()
	if pt.Y < b.Min.Y+face.Ascent {
		pt.Y = b.Min.Y + face.Ascent
	}
	if pt.X < b.Min.X {
		pt.X = b.Min.X
	}
	d := &font.Drawer{
		Dst:  img,
		Src:  &image.Uniform{C: c},
		Face: face,
		Dot:  fixed.P(pt.X, pt.Y),
	}
	d.DrawString(s)
}
