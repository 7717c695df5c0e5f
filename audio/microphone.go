package audio

import (
	"errors"
	"sync"

	"mediassist/encoder"
	"mediassist/fault"
)

var ErrBusy = errors.New("microphone already in use")

// Microphone hands out exclusive leases on one capture device.
type Microphone struct {
	ctx    Context
	device *DeviceInfo

	mu   sync.Mutex
	held bool
}

func NewMicrophone(ctx Context, device *DeviceInfo) *Microphone {
	return &Microphone{ctx: ctx, device: device}
}

// Acquire opens the device. It fails with ErrBusy while a previous lease has
// not been released.
func (m *Microphone) Acquire() (*Lease, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.held {
		return nil, fault.New(fault.Device, "acquire microphone", ErrBusy)
	}

	dev, err := m.ctx.NewCapture(m.device, CaptureConfig{SampleRate: encoder.SampleRate, Channels: encoder.Channels})
	if err != nil {
		return nil, fault.New(fault.Device, "open microphone", err)
	}
	m.held = true
	return &Lease{mic: m, dev: dev}, nil
}

func (m *Microphone) Held() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.held
}

// Lease is one acquisition of the microphone.
type Lease struct {
	mic  *Microphone
	dev  CaptureDevice
	once sync.Once
}

func (l *Lease) Start(cb func([]byte)) error {
	if err := l.dev.Start(DataCallback(cb)); err != nil {
		return fault.New(fault.Device, "start capture", err)
	}
	return nil
}

func (l *Lease) Stop() <-chan struct{} { return l.dev.Stop() }

func (l *Lease) DeviceName() string { return l.dev.DeviceName() }

// Release closes the device and frees the microphone. Safe to call twice.
func (l *Lease) Release() {
	l.once.Do(func() {
		l.dev.Close()
		l.mic.mu.Lock()
		l.mic.held = false
		l.mic.mu.Unlock()
	})
}
