//go:build gocv

package camera

import (
	"fmt"
	"image"
	"os"

	"gocv.io/x/gocv"
)

type gocvSource struct {
	capture *gocv.VideoCapture
	frame   gocv.Mat
}

// OpenDefaultSource returns a V4L/DirectShow capture backed by OpenCV.
func OpenDefaultSource() FrameSource {
	return &gocvSource{frame: gocv.NewMat()}
}

func (s *gocvSource) Open(index int) error {
	capture, err := gocv.OpenVideoCapture(index)
	if err != nil {
		return fmt.Errorf("open capture %d: %w", index, err)
	}
	if !capture.IsOpened() {
		capture.Close()
		return fmt.Errorf("open capture %d: %w", index, ErrUnavailable)
	}
	capture.Set(gocv.VideoCaptureFPS, 30)
	capture.Set(gocv.VideoCaptureBufferSize, 1)
	s.capture = capture
	return nil
}

func (s *gocvSource) IsOpen() bool {
	return s.capture != nil && s.capture.IsOpened()
}

func (s *gocvSource) Read() (image.Image, error) {
	if s.capture == nil {
		return nil, ErrUnavailable
	}
	if ok := s.capture.Read(&s.frame); !ok || s.frame.Empty() {
		return nil, fmt.Errorf("read frame: %w", ErrUnavailable)
	}
	return s.frame.ToImage()
}

func (s *gocvSource) Close() error {
	if s.capture == nil {
		return nil
	}
	err := s.capture.Close()
	s.capture = nil
	return err
}

const (
	blobSize   = 300
	blobScale  = 0.007843
	blobMean   = 127.5
	detFields  = 7
	detClassAt = 1
	detConfAt  = 2
)

type ssdDetector struct {
	net gocv.Net
}

// LoadDetector loads a MobileNet-SSD Caffe network. Missing files are
// reported as ErrUnavailable so callers can run without overlay.
func LoadDetector(prototxt, model string) (Detector, error) {
	for _, path := range []string{prototxt, model} {
		if _, err := os.Stat(path); err != nil {
			return nil, fmt.Errorf("detector file %s: %w", path, ErrUnavailable)
		}
	}
	net := gocv.ReadNetFromCaffe(prototxt, model)
	if net.Empty() {
		return nil, fmt.Errorf("load detector: %w", ErrUnavailable)
	}
	net.SetPreferableBackend(gocv.NetBackendDefault)
	net.SetPreferableTarget(gocv.NetTargetCPU)
	return &ssdDetector{net: net}, nil
}

func (d *ssdDetector) Detect(img image.Image) ([]Detection, error) {
	mat, err := gocv.ImageToMatRGB(img)
	if err != nil {
		return nil, fmt.Errorf("convert frame: %w", err)
	}
	defer mat.Close()

	resized := gocv.NewMat()
	defer resized.Close()
	gocv.Resize(mat, &resized, image.Pt(blobSize, blobSize), 0, 0, gocv.InterpolationLinear)

	blob := gocv.BlobFromImage(resized, blobScale, image.Pt(blobSize, blobSize),
		gocv.NewScalar(blobMean, blobMean, blobMean, 0), false, false)
	defer blob.Close()

	d.net.SetInput(blob, "")
	out := d.net.Forward("")
	defer out.Close()

	rows := out.Total() / detFields
	if rows == 0 {
		return nil, nil
	}
	table := out.Reshape(1, rows)
	defer table.Close()

	w := float32(img.Bounds().Dx())
	h := float32(img.Bounds().Dy())
	origin := img.Bounds().Min

	detections := make([]Detection, 0, rows)
	for i := 0; i < rows; i++ {
		conf := table.GetFloatAt(i, detConfAt)
		if conf <= 0 {
			continue
		}
		box := image.Rect(
			int(table.GetFloatAt(i, 3)*w), int(table.GetFloatAt(i, 4)*h),
			int(table.GetFloatAt(i, 5)*w), int(table.GetFloatAt(i, 6)*h),
		).Add(origin)
		detections = append(detections, Detection{
			Label:      ClassLabel(int(table.GetFloatAt(i, detClassAt))),
			Confidence: float64(conf),
			Box:        box,
		})
	}
	return detections, nil
}

func (d *ssdDetector) Close() error {
	return d.net.Close()
}
