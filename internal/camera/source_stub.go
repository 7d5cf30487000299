//go:build !gocv

package camera

// OpenDefaultSource returns the capture backend compiled into this binary.
// Builds without the gocv tag have no capture support.
func OpenDefaultSource() FrameSource {
	return unavailableSource{}
}

// LoadDetector loads the MobileNet-SSD network. Without gocv there is no
// inference backend.
func LoadDetector(prototxt, model string) (Detector, error) {
	return nil, ErrUnavailable
}
