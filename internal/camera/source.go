package camera

import (
	"errors"
	"image"
)

// ErrUnavailable reports that no camera can be opened or read right now.
var ErrUnavailable = errors.New("camera no disponible")

// FrameSource is a single capture device handle. Implementations are not
// safe for concurrent use; the Pump serializes every call.
type FrameSource interface {
	Open(index int) error
	IsOpen() bool
	Read() (image.Image, error)
	Close() error
}

// Detection is one object found in a frame, in frame pixel coordinates.
type Detection struct {
	Label      string
	Confidence float64
	Box        image.Rectangle
}

// Detector runs object detection on a frame.
type Detector interface {
	Detect(img image.Image) ([]Detection, error)
	Close() error
}

// Classes are the MobileNet-SSD (VOC) labels, indexed by class id.
var Classes = []string{
	"background", "aeroplane", "bicycle", "bird", "boat", "bottle", "bus", "car",
	"cat", "chair", "cow", "diningtable", "dog", "horse", "motorbike", "person",
	"pottedplant", "sheep", "sofa", "train", "tvmonitor",
}

// ClassLabel maps a class id to its label.
func ClassLabel(id int) string {
	if id < 0 || id >= len(Classes) {
		return "unknown"
	}
	return Classes[id]
}

// unavailableSource never opens. It keeps the pump serving placeholders on
// hosts without capture support.
type unavailableSource struct{}

func (unavailableSource) Open(int) error             { return ErrUnavailable }
func (unavailableSource) IsOpen() bool               { return false }
func (unavailableSource) Read() (image.Image, error) { return nil, ErrUnavailable }
func (unavailableSource) Close() error               { return nil }
