package audio

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"mediassist/fault"
)

func pcm(n int) []byte {
	b := make([]byte, n)
	for i := range b {
		b[i] = byte(i)
	}
	return b
}

type collector struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (c *collector) add(data []byte) {
	c.mu.Lock()
	c.buf.Write(data)
	c.mu.Unlock()
}

func (c *collector) bytes() []byte {
	c.mu.Lock()
	defer c.mu.Unlock()
	return bytes.Clone(c.buf.Bytes())
}

func TestFakeCaptureDeliversAllThenFlushes(t *testing.T) {
	src := pcm(5000)
	dev, err := NewFakeContextPCM(src, false).NewCapture(nil, CaptureConfig{})
	if err != nil {
		t.Fatal(err)
	}
	fc := dev.(*FakeCapture)

	var c collector
	if err := dev.Start(c.add); err != nil {
		t.Fatalf("Start: %v", err)
	}
	select {
	case <-fc.AudioDone():
	case <-time.After(2 * time.Second):
		t.Fatal("AudioDone not closed")
	}

	select {
	case <-dev.Stop():
	case <-time.After(2 * time.Second):
		t.Fatal("flush signal not closed")
	}
	if got := c.bytes(); !bytes.Equal(got, src) {
		t.Errorf("captured %d bytes, want %d identical", len(got), len(src))
	}
	<-dev.Stop()
	dev.Close()
}

func TestFakeCaptureStopBeforeStart(t *testing.T) {
	dev, _ := NewFakeContextPCM(pcm(10), false).NewCapture(nil, CaptureConfig{})
	select {
	case <-dev.Stop():
	default:
		t.Fatal("Stop on an unstarted capture should be closed immediately")
	}
}

func TestNewFakeContextStripsHeader(t *testing.T) {
	path := filepath.Join(t.TempDir(), "clip.wav")
	data := append(make([]byte, WAVHeaderSize), 1, 2, 3, 4)
	if err := os.WriteFile(path, data, 0o600); err != nil {
		t.Fatal(err)
	}
	ctx, err := NewFakeContext(path, false)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(ctx.pcm, []byte{1, 2, 3, 4}) {
		t.Errorf("pcm = %v", ctx.pcm)
	}
}

func TestMicrophoneIsExclusive(t *testing.T) {
	mic := NewMicrophone(NewFakeContextPCM(pcm(10), false), nil)

	lease, err := mic.Acquire()
	if err != nil {
		t.Fatalf("Acquire: %v", err)
	}
	if !mic.Held() {
		t.Error("Held should be true")
	}

	_, err = mic.Acquire()
	if !errors.Is(err, ErrBusy) || fault.KindOf(err) != fault.Device {
		t.Fatalf("second Acquire err = %v", err)
	}

	lease.Release()
	lease.Release()
	if mic.Held() {
		t.Error("Held after Release")
	}

	again, err := mic.Acquire()
	if err != nil {
		t.Fatalf("Acquire after release: %v", err)
	}
	again.Release()
}

type failingContext struct{ *FakeContext }

func (failingContext) NewCapture(*DeviceInfo, CaptureConfig) (CaptureDevice, error) {
	return nil, errors.New("no such device")
}

func TestMicrophoneOpenFailure(t *testing.T) {
	mic := NewMicrophone(failingContext{NewFakeContextPCM(nil, false)}, nil)
	_, err := mic.Acquire()
	if fault.KindOf(err) != fault.Device {
		t.Fatalf("err = %v, want device fault", err)
	}
	if mic.Held() {
		t.Error("failed acquire must not hold the microphone")
	}
}

func TestFindDevice(t *testing.T) {
	ctx := NewFakeContextPCM(nil, false)
	if d, err := FindDevice(ctx, ""); d != nil || err != nil {
		t.Errorf("empty name = %v, %v", d, err)
	}
	if d, err := FindDevice(ctx, "fake"); err != nil || d.ID != "fake" {
		t.Errorf("fake = %v, %v", d, err)
	}
	var nf *DeviceNotFoundError
	if _, err := FindDevice(ctx, "USB"); !errors.As(err, &nf) {
		t.Errorf("err = %v", err)
	}
}

func TestIsBluetooth(t *testing.T) {
	for name, want := range map[string]bool{
		"AirPods Pro":         true,
		"Built-in Microphone": false,
		"WH-1000XM4":          true,
		"USB Audio Device":    false,
		"Headset (Bluetooth)": true,
	} {
		if got := IsBluetooth(name); got != want {
			t.Errorf("IsBluetooth(%q) = %v, want %v", name, got, want)
		}
	}
}
