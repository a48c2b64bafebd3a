// Package opus implements [call.AudioOutput] by decoding Opus speech
// segments and playing them on the default output device via malgo.
//
// Segment payloads are framed as consecutive Opus packets, each
// prefixed with a little-endian uint16 packet length.
package opus

import (
	"context"
	"encoding/binary"
	"fmt"
	"sync"

	"github.com/gen2brain/malgo"
	"layeh.com/gopus"

	"github.com/Kevinxygu/pitchpoint/pkg/call"
)

// Synthesized speech arrives as 48 kHz stereo Opus at 20 ms frame size.
const (
	opusSampleRate  = 48000
	opusChannels    = 2
	opusFrameSizeMs = 20
	// opusFrameSize is the number of samples per channel per 20 ms frame.
	opusFrameSize = opusSampleRate * opusFrameSizeMs / 1000 // 960
)

// Compile-time interface check.
var _ call.AudioOutput = (*Player)(nil)

// Player plays decoded speech segments on the system output device.
// Play blocks until the segment finished or ctx ends, so callers decide
// the sequencing; the Player itself plays one segment at a time.
type Player struct {
	audioContext *malgo.AllocatedContext

	mu     sync.Mutex
	closed bool
}

// NewPlayer initializes the audio backend. Call Close when done.
func NewPlayer() (*Player, error) {
	audioCtx, err := malgo.InitContext(nil, malgo.ContextConfig{}, func(string) {})
	if err != nil {
		return nil, fmt.Errorf("opus: init context: %w", err)
	}
	return &Player{audioContext: audioCtx}, nil
}

// Play decodes the segment and plays it to completion. It returns
// ctx.Err() when cancelled mid-playback.
func (p *Player) Play(ctx context.Context, seg call.AudioSegment) error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return fmt.Errorf("opus: player closed")
	}
	p.mu.Unlock()

	pcm, err := decodePayload(seg.Payload)
	if err != nil {
		return err
	}
	if len(pcm) == 0 {
		return nil
	}
	return p.playPCM(ctx, pcm)
}

// Close releases the audio backend.
func (p *Player) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return nil
	}
	p.closed = true
	if err := p.audioContext.Uninit(); err != nil {
		return fmt.Errorf("opus: uninit context: %w", err)
	}
	p.audioContext.Free()
	return nil
}

// playPCM streams the decoded buffer through a playback device and
// blocks until it drains.
func (p *Player) playPCM(ctx context.Context, pcm []byte) error {
	bytesPerFrame := malgo.SampleSizeInBytes(malgo.FormatS16) * opusChannels

	cfg := malgo.DefaultDeviceConfig(malgo.Playback)
	cfg.SampleRate = opusSampleRate
	cfg.Playback.Format = malgo.FormatS16
	cfg.Playback.Channels = opusChannels
	cfg.Alsa.NoMMap = 1
	cfg.PeriodSizeInFrames = opusSampleRate / 10
	cfg.Periods = 4

	var (
		mu     sync.Mutex
		offset int
		done   = make(chan struct{})
		once   sync.Once
	)
	device, err := malgo.InitDevice(p.audioContext.Context, cfg, malgo.DeviceCallbacks{
		Data: func(pOutput, _ []byte, frameCount uint32) {
			need := int(frameCount) * bytesPerFrame
			mu.Lock()
			defer mu.Unlock()
			if offset >= len(pcm) {
				once.Do(func() { close(done) })
				return
			}
			n := copy(pOutput[:need], pcm[offset:])
			offset += n
		},
	})
	if err != nil {
		return fmt.Errorf("opus: init playback device: %w", err)
	}
	defer device.Uninit()

	if err := device.Start(); err != nil {
		return fmt.Errorf("opus: start playback device: %w", err)
	}

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// decodePayload decodes a length-prefixed sequence of Opus packets into
// interleaved little-endian int16 PCM.
func decodePayload(payload []byte) ([]byte, error) {
	dec, err := gopus.NewDecoder(opusSampleRate, opusChannels)
	if err != nil {
		return nil, fmt.Errorf("opus: create decoder: %w", err)
	}

	var pcm []byte
	for off := 0; off < len(payload); {
		if len(payload)-off < 2 {
			return nil, fmt.Errorf("opus: truncated packet header at byte %d", off)
		}
		n := int(binary.LittleEndian.Uint16(payload[off:]))
		off += 2
		if n == 0 || len(payload)-off < n {
			return nil, fmt.Errorf("opus: truncated packet at byte %d", off)
		}
		samples, err := dec.Decode(payload[off:off+n], opusFrameSize, false)
		if err != nil {
			return nil, fmt.Errorf("opus: decode packet: %w", err)
		}
		pcm = append(pcm, int16sToBytes(samples)...)
		off += n
	}
	return pcm, nil
}

// int16sToBytes converts int16 PCM samples to little-endian bytes.
func int16sToBytes(samples []int16) []byte {
	b := make([]byte, len(samples)*2)
	for i, s := range samples {
		b[i*2] = byte(s)
		b[i*2+1] = byte(s >> 8)
	}
	return b
}
