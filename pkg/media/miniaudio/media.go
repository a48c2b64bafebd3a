// Package miniaudio implements [call.MediaCapture] on top of malgo,
// capturing 16 kHz mono S16 PCM from the default microphone.
package miniaudio

import (
	"context"
	"fmt"
	"sync"

	"github.com/gen2brain/malgo"

	"github.com/Kevinxygu/pitchpoint/pkg/call"
)

const (
	defaultSampleRate = 16000

	// frameBuffer absorbs bursts between the device callback and the
	// consumer; frames are dropped rather than blocking the callback.
	frameBuffer = 256
)

// Compile-time interface check.
var _ call.MediaCapture = (*Device)(nil)

// Option is a functional option for configuring the Device.
type Option func(*Device)

// WithSampleRate sets the capture sample rate in Hz.
func WithSampleRate(rate int) Option {
	return func(d *Device) {
		d.sampleRate = uint32(rate)
	}
}

// Device exposes the default system microphone as a media capture
// source. One stream may be open at a time.
type Device struct {
	audioContext *malgo.AllocatedContext
	sampleRate   uint32

	mu     sync.Mutex
	active *stream
	closed bool
}

// NewDevice initializes the audio backend. Call Close when done.
func NewDevice(opts ...Option) (*Device, error) {
	audioCtx, err := malgo.InitContext(nil, malgo.ContextConfig{}, func(string) {})
	if err != nil {
		return nil, fmt.Errorf("miniaudio: init context: %w", err)
	}
	d := &Device{
		audioContext: audioCtx,
		sampleRate:   defaultSampleRate,
	}
	for _, o := range opts {
		o(d)
	}
	return d, nil
}

// Acquire opens the microphone and starts delivering PCM frames. It
// fails while a previous stream has not been released.
func (d *Device) Acquire(_ context.Context) (call.MediaStream, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return nil, fmt.Errorf("miniaudio: device closed")
	}
	if d.active != nil {
		return nil, fmt.Errorf("miniaudio: microphone already acquired")
	}

	s := &stream{
		owner:  d,
		frames: make(chan []byte, frameBuffer),
	}

	format := malgo.FormatS16
	channels := 1
	bytesPerFrame := malgo.SampleSizeInBytes(format) * channels

	cfg := malgo.DefaultDeviceConfig(malgo.Capture)
	cfg.SampleRate = d.sampleRate
	cfg.Capture.Format = format
	cfg.Capture.Channels = uint32(channels)
	cfg.Alsa.NoMMap = 1
	cfg.PerformanceProfile = malgo.LowLatency
	cfg.PeriodSizeInFrames = 480
	cfg.Periods = 3

	device, err := malgo.InitDevice(d.audioContext.Context, cfg, malgo.DeviceCallbacks{
		Data: func(_, pInput []byte, frameCount uint32) {
			n := int(frameCount) * bytesPerFrame
			if n == 0 || len(pInput) < n {
				return
			}
			s.push(pInput[:n])
		},
	})
	if err != nil {
		return nil, fmt.Errorf("miniaudio: init capture device: %w", err)
	}
	if err := device.Start(); err != nil {
		device.Uninit()
		return nil, fmt.Errorf("miniaudio: start capture device: %w", err)
	}

	s.device = device
	d.active = s
	return s, nil
}

// Close releases the audio backend. Any open stream is released first.
func (d *Device) Close() error {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return nil
	}
	d.closed = true
	active := d.active
	d.mu.Unlock()

	if active != nil {
		_ = active.Release()
	}
	if err := d.audioContext.Uninit(); err != nil {
		return fmt.Errorf("miniaudio: uninit context: %w", err)
	}
	d.audioContext.Free()
	return nil
}

func (d *Device) release(s *stream) {
	d.mu.Lock()
	if d.active == s {
		d.active = nil
	}
	d.mu.Unlock()
}

// stream is one open microphone acquisition.
type stream struct {
	owner  *Device
	device *malgo.Device
	frames chan []byte

	mu       sync.Mutex
	released bool
}

// Frames returns the PCM frame stream, closed after Release.
func (s *stream) Frames() <-chan []byte { return s.frames }

// push copies one captured frame into the stream, dropping it when the
// consumer is behind. Called from the device callback.
func (s *stream) push(frame []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.released {
		return
	}
	buf := make([]byte, len(frame))
	copy(buf, frame)
	select {
	case s.frames <- buf:
	default:
	}
}

// Release stops the device and closes the frame stream. Safe to call
// more than once.
func (s *stream) Release() error {
	s.mu.Lock()
	if s.released {
		s.mu.Unlock()
		return nil
	}
	s.released = true
	s.mu.Unlock()

	var err error
	if s.device != nil {
		err = s.device.Stop()
		s.device.Uninit()
	}
	s.owner.release(s)

	s.mu.Lock()
	close(s.frames)
	s.mu.Unlock()

	if err != nil {
		return fmt.Errorf("miniaudio: stop capture device: %w", err)
	}
	return nil
}
