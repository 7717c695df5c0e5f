package audio

import (
	"errors"
	"os"
	"sync"
	"time"

	"mediassist/encoder"
)

const (
	fakeFrameSize     = 1024
	fakeBytesPerFrame = 2 // 16-bit mono
)

// FakeContext replays PCM from a WAV file instead of opening a microphone.
type FakeContext struct {
	pcm      []byte
	realtime bool
}

func NewFakeContext(wavPath string, realtime bool) (*FakeContext, error) {
	data, err := os.ReadFile(wavPath)
	if err != nil {
		return nil, err
	}
	if len(data) > WAVHeaderSize {
		data = data[WAVHeaderSize:]
	}
	return NewFakeContextPCM(data, realtime), nil
}

func NewFakeContextPCM(pcm []byte, realtime bool) *FakeContext {
	return &FakeContext{pcm: pcm, realtime: realtime}
}

func (f *FakeContext) Devices() ([]DeviceInfo, error) {
	return []DeviceInfo{{ID: "fake", Name: "fake"}}, nil
}

func (f *FakeContext) Close() {}

func (f *FakeContext) NewCapture(_ *DeviceInfo, _ CaptureConfig) (CaptureDevice, error) {
	return &FakeCapture{pcm: f.pcm, realtime: f.realtime, audioDone: make(chan struct{})}, nil
}

// FakeCapture feeds its PCM to the callback, then silence in realtime mode.
// AudioDone closes once the whole recording has been delivered.
type FakeCapture struct {
	pcm       []byte
	realtime  bool
	audioDone chan struct{}

	mu       sync.Mutex
	started  bool
	stopCh   chan struct{}
	feedDone chan struct{}
	stopOnce sync.Once
}

func (f *FakeCapture) AudioDone() <-chan struct{} { return f.audioDone }

func (f *FakeCapture) DeviceName() string { return "fake" }

func (f *FakeCapture) feedChunk(cb DataCallback, pos, chunkBytes int) int {
	end := min(pos+chunkBytes, len(f.pcm))
	chunk := make([]byte, end-pos)
	copy(chunk, f.pcm[pos:end])
	cb(chunk)
	return end
}

func (f *FakeCapture) Start(cb DataCallback) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.started {
		return errors.New("fake capture already started")
	}
	f.started = true
	f.stopCh = make(chan struct{})
	f.feedDone = make(chan struct{})

	chunkBytes := fakeFrameSize * fakeBytesPerFrame
	interval := time.Duration(fakeFrameSize) * time.Second / time.Duration(encoder.SampleRate)
	if !f.realtime {
		interval = 0
	}

	go func(stop, done chan struct{}) {
		defer close(done)
		pos := 0
		silence := make([]byte, chunkBytes)
		finished := false
		for {
			select {
			case <-stop:
				return
			default:
			}

			switch {
			case pos < len(f.pcm):
				pos = f.feedChunk(cb, pos, chunkBytes)
			case !finished:
				finished = true
				close(f.audioDone)
				if !f.realtime {
					<-stop
					return
				}
			default:
				cb(silence)
			}

			if interval > 0 {
				select {
				case <-stop:
					return
				case <-time.After(interval):
				}
			}
		}
	}(f.stopCh, f.feedDone)
	return nil
}

// Stop signals the feeder; the returned channel closes once it has exited.
func (f *FakeCapture) Stop() <-chan struct{} {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.started {
		return closedChan()
	}
	f.stopOnce.Do(func() { close(f.stopCh) })
	return f.feedDone
}

func (f *FakeCapture) Close() {
	<-f.Stop()
}
