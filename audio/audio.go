// Package audio captures 16-bit mono PCM from the system microphone.
package audio

import "strings"

const WAVHeaderSize = 44

var btKeywords = []string{
	"airpods", "beats", "bose", "wh-1000", "wf-1000",
	"sony wh-", "sony wf-",
	"jabra", "galaxy buds", "pixel buds", "powerbeats",
	"jbl ", "sennheiser momentum", "plantronics",
	"tozo", "anker soundcore", "skullcandy",
	"bluetooth", " bt ", " bt)", " bt]",
}

func IsBluetooth(name string) bool {
	lower := strings.ToLower(name)
	for _, kw := range btKeywords {
		if strings.Contains(lower, kw) {
			return true
		}
	}
	return false
}

// DataCallback receives one captured chunk. The slice is owned by the callee.
type DataCallback func(data []byte)

type CaptureConfig struct {
	SampleRate uint32
	Channels   uint32
}

type DeviceInfo struct {
	ID   string // opaque platform-specific identifier
	Name string
}

type Context interface {
	Devices() ([]DeviceInfo, error)
	NewCapture(device *DeviceInfo, config CaptureConfig) (CaptureDevice, error)
	Close()
}

// CaptureDevice streams chunks to the callback passed to Start until Stop.
// The channel returned by Stop is closed after the last buffered chunk has
// been delivered.
type CaptureDevice interface {
	Start(cb DataCallback) error
	Stop() <-chan struct{}
	Close()
	DeviceName() string
}

// FindDevice returns the device whose name matches, or nil for the system
// default when name is empty.
func FindDevice(ctx Context, name string) (*DeviceInfo, error) {
	if name == "" {
		return nil, nil
	}
	devices, err := ctx.Devices()
	if err != nil {
		return nil, err
	}
	for i := range devices {
		if devices[i].Name == name || devices[i].ID == name {
			return &devices[i], nil
		}
	}
	return nil, &DeviceNotFoundError{Name: name}
}

type DeviceNotFoundError struct{ Name string }

func (e *DeviceNotFoundError) Error() string { return "capture device not found: " + e.Name }

func closedChan() <-chan struct{} {
	ch := make(chan struct{})
	close(ch)
	return ch
}
