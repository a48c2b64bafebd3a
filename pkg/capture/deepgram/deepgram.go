// Package deepgram implements [call.SpeechCapturer] on the Deepgram
// streaming WebSocket API, fed by a local [call.MediaCapture] device.
//
// A capture session is single-utterance: recognition runs while the
// operator holds the talk control and ends after the first final
// transcript, mirroring non-continuous speech recognition. Stop flushes
// pending audio so a final result for the utterance still arrives.
package deepgram

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"

	"github.com/coder/websocket"

	"github.com/Kevinxygu/pitchpoint/pkg/call"
)

const (
	deepgramEndpoint  = "wss://api.deepgram.com/v1/listen"
	defaultModel      = "nova-3"
	defaultLanguage   = "en-US"
	defaultSampleRate = 16000
)

// Compile-time interface check.
var _ call.SpeechCapturer = (*Capturer)(nil)

// Option is a functional option for configuring the Capturer.
type Option func(*Capturer)

// WithModel sets the Deepgram model to use (e.g., "nova-3", "base").
func WithModel(model string) Option {
	return func(c *Capturer) {
		c.model = model
	}
}

// WithLanguage sets the BCP-47 language code for recognition (e.g., "en-US").
func WithLanguage(language string) Option {
	return func(c *Capturer) {
		c.language = language
	}
}

// WithSampleRate sets the PCM sample rate in Hz of the audio fed in.
func WithSampleRate(rate int) Option {
	return func(c *Capturer) {
		c.sampleRate = rate
	}
}

// Capturer turns microphone audio into operator utterances via the
// Deepgram streaming API. It implements call.SpeechCapturer.
type Capturer struct {
	apiKey     string
	media      call.MediaCapture
	model      string
	language   string
	sampleRate int
}

// New creates a Capturer. apiKey must be non-empty and media provides
// the microphone PCM frames.
func New(apiKey string, media call.MediaCapture, opts ...Option) (*Capturer, error) {
	if apiKey == "" {
		return nil, errors.New("deepgram: apiKey must not be empty")
	}
	if media == nil {
		return nil, errors.New("deepgram: media capture must not be nil")
	}
	c := &Capturer{
		apiKey:     apiKey,
		media:      media,
		model:      defaultModel,
		language:   defaultLanguage,
		sampleRate: defaultSampleRate,
	}
	for _, o := range opts {
		o(c)
	}
	return c, nil
}

// Start acquires the microphone, opens a streaming session and runs it
// until the first final transcript or Stop. Handler callbacks are
// invoked from the session's goroutines.
func (c *Capturer) Start(ctx context.Context, h call.CaptureHandlers) (call.CaptureSession, error) {
	stream, err := c.media.Acquire(ctx)
	if err != nil {
		return nil, fmt.Errorf("deepgram: acquire microphone: %w", err)
	}

	headers := http.Header{}
	headers.Set("Authorization", "Token "+c.apiKey)

	conn, _, err := websocket.Dial(ctx, c.buildURL(), &websocket.DialOptions{
		HTTPHeader: headers,
	})
	if err != nil {
		_ = stream.Release()
		return nil, fmt.Errorf("deepgram: dial: %w", err)
	}

	sess := &session{
		conn:     conn,
		stream:   stream,
		handlers: h,
		done:     make(chan struct{}),
	}
	sess.wg.Add(2)
	go sess.readLoop(ctx)
	go sess.writeLoop(ctx)
	return sess, nil
}

// buildURL constructs the streaming endpoint URL for the configured
// model, language and PCM format.
func (c *Capturer) buildURL() string {
	u, _ := url.Parse(deepgramEndpoint)
	q := u.Query()
	q.Set("model", c.model)
	q.Set("language", c.language)
	q.Set("punctuate", "true")
	q.Set("encoding", "linear16")
	q.Set("sample_rate", strconv.Itoa(c.sampleRate))
	q.Set("channels", "1")
	u.RawQuery = q.Encode()
	return u.String()
}

// deepgramResponse is the JSON structure of a Deepgram Results event.
type deepgramResponse struct {
	Type    string `json:"type"`
	IsFinal bool   `json:"is_final"`
	Channel struct {
		Alternatives []struct {
			Transcript string  `json:"transcript"`
			Confidence float64 `json:"confidence"`
		} `json:"alternatives"`
	} `json:"channel"`
}

// session is one live push-to-talk capture. It implements
// call.CaptureSession.
type session struct {
	conn     *websocket.Conn
	stream   call.MediaStream
	handlers call.CaptureHandlers

	done chan struct{}
	once sync.Once
	wg   sync.WaitGroup
}

// Stop releases the microphone and asks Deepgram to flush pending
// audio; the final transcript for the utterance still arrives through
// the handlers. Safe to call more than once.
func (s *session) Stop() error {
	s.once.Do(func() {
		close(s.done)
		_ = s.stream.Release()
		// Flushes buffered audio so the utterance still finalizes.
		_ = s.conn.Write(context.Background(), websocket.MessageText, []byte(`{"type":"CloseStream"}`))
	})
	return nil
}

// writeLoop pumps microphone frames to Deepgram until the stream ends
// or the session stops.
func (s *session) writeLoop(ctx context.Context) {
	defer s.wg.Done()
	for {
		select {
		case frame, ok := <-s.stream.Frames():
			if !ok {
				return
			}
			if err := s.conn.Write(ctx, websocket.MessageBinary, frame); err != nil {
				return
			}
		case <-s.done:
			return
		}
	}
}

// readLoop receives Deepgram messages and finishes the session on the
// first final transcript.
func (s *session) readLoop(ctx context.Context) {
	defer s.wg.Done()
	for {
		_, msg, err := s.conn.Read(ctx)
		if err != nil {
			s.finish("", s.readError(err))
			return
		}

		var resp deepgramResponse
		if err := json.Unmarshal(msg, &resp); err != nil {
			continue
		}
		if resp.Type != "Results" || !resp.IsFinal || len(resp.Channel.Alternatives) == 0 {
			continue
		}
		text := strings.TrimSpace(resp.Channel.Alternatives[0].Transcript)
		if text == "" {
			continue
		}
		s.finish(text, nil)
		return
	}
}

// readError maps a websocket read failure to a capture error, or nil
// when the session was stopped deliberately.
func (s *session) readError(err error) error {
	select {
	case <-s.done:
		return nil
	default:
	}
	status := websocket.CloseStatus(err)
	if status == websocket.StatusNormalClosure || status == websocket.StatusGoingAway {
		return nil
	}
	return fmt.Errorf("deepgram: read: %w", err)
}

// finish tears the session down and reports the outcome. Only the read
// loop calls it, exactly once, immediately before returning.
func (s *session) finish(text string, err error) {
	_ = s.Stop()
	go func() {
		s.wg.Wait()
		_ = s.conn.Close(websocket.StatusNormalClosure, "capture finished")
	}()

	switch {
	case err != nil:
		if s.handlers.OnError != nil {
			s.handlers.OnError(err)
		}
	case text != "":
		if s.handlers.OnUtterance != nil {
			s.handlers.OnUtterance(text)
		}
		if s.handlers.OnEnded != nil {
			s.handlers.OnEnded()
		}
	default:
		if s.handlers.OnEnded != nil {
			s.handlers.OnEnded()
		}
	}
}
