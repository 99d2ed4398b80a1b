package transcriber

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
	"time"

	"scribe/audio"
	"scribe/log"

	"github.com/coder/websocket"
)

const (
	deepgramEndpoint       = "wss://api.deepgram.com/v1/listen"
	defaultModel           = "nova-3"
	defaultNoSpeechTimeout = 8 * time.Second
	stopFlushTimeout       = 3 * time.Second
	streamChunkMs          = 100
	streamChunkBytes       = audio.SampleRate * audio.BytesPerFrame * streamChunkMs / 1000
)

type DeepgramOption func(*Deepgram)

func WithModel(model string) DeepgramOption {
	return func(d *Deepgram) { d.model = model }
}

// WithEndpoint overrides the listen URL, e.g. for a self-hosted deployment.
func WithEndpoint(endpoint string) DeepgramOption {
	return func(d *Deepgram) { d.endpoint = endpoint }
}

func WithDevice(device *audio.DeviceInfo) DeepgramOption {
	return func(d *Deepgram) { d.device = device }
}

// WithNoSpeechTimeout sets how long a run may go without any transcript
// before a no-speech error is reported.
func WithNoSpeechTimeout(timeout time.Duration) DeepgramOption {
	return func(d *Deepgram) { d.noSpeech = timeout }
}

// Deepgram streams microphone audio to the Deepgram live transcription API.
type Deepgram struct {
	apiKey   string
	model    string
	endpoint string
	audio    audio.Context
	device   *audio.DeviceInfo
	noSpeech time.Duration
}

func NewDeepgram(apiKey string, actx audio.Context, opts ...DeepgramOption) (*Deepgram, error) {
	if apiKey == "" {
		return nil, errors.New("deepgram: api key must not be empty")
	}
	d := &Deepgram{
		apiKey:   apiKey,
		model:    defaultModel,
		endpoint: deepgramEndpoint,
		audio:    actx,
		noSpeech: defaultNoSpeechTimeout,
	}
	for _, o := range opts {
		o(d)
	}
	return d, nil
}

func (d *Deepgram) Name() string { return "deepgram" }

func (d *Deepgram) NewRecognition(cfg Config) (Recognition, error) {
	u, err := d.buildURL(cfg)
	if err != nil {
		return nil, fmt.Errorf("deepgram: build URL: %w", err)
	}
	return &deepgramRecognition{
		dg:     d,
		url:    u,
		events: make(chan Event, 64),
		quit:   make(chan struct{}),
	}, nil
}

func (d *Deepgram) buildURL(cfg Config) (string, error) {
	u, err := url.Parse(d.endpoint)
	if err != nil {
		return "", err
	}
	q := u.Query()
	q.Set("model", d.model)
	q.Set("encoding", "linear16")
	q.Set("sample_rate", strconv.Itoa(audio.SampleRate))
	q.Set("channels", strconv.Itoa(audio.Channels))
	q.Set("punctuate", "true")
	q.Set("interim_results", strconv.FormatBool(cfg.InterimResults))
	if cfg.Language != "" {
		q.Set("language", cfg.Language)
	}
	if cfg.MaxAlternatives > 1 {
		q.Set("alternatives", strconv.Itoa(cfg.MaxAlternatives))
	}
	u.RawQuery = q.Encode()
	return u.String(), nil
}

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

type deepgramRecognition struct {
	dg     *Deepgram
	url    string
	events chan Event
	quit   chan struct{}

	mu       sync.Mutex
	running  bool
	closed   bool
	stopping bool
	stopCh   chan struct{}
	cancel   context.CancelFunc
	done     chan struct{}
	results  resultList
}

func (r *deepgramRecognition) Events() <-chan Event { return r.events }

func (r *deepgramRecognition) Start() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return ErrClosed
	}
	if r.running {
		return ErrAlreadyStarted
	}

	ctx, cancel := context.WithCancel(context.Background())
	r.running = true
	r.stopping = false
	r.stopCh = make(chan struct{})
	r.cancel = cancel
	r.done = make(chan struct{})
	r.results.reset()

	go r.run(ctx, r.stopCh, r.done)
	return nil
}

// Stop asks the server to flush pending results. The run ends with
// EventEnd once the server closes the stream.
func (r *deepgramRecognition) Stop() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.running || r.stopping {
		return
	}
	r.stopping = true
	close(r.stopCh)
}

func (r *deepgramRecognition) Close() error {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return nil
	}
	r.closed = true
	close(r.quit)
	cancel, done := r.cancel, r.done
	r.mu.Unlock()

	if cancel != nil {
		cancel()
		<-done
	}
	close(r.events)
	return nil
}

func (r *deepgramRecognition) emit(ev Event) {
	select {
	case r.events <- ev:
	case <-r.quit:
	}
}

func (r *deepgramRecognition) run(ctx context.Context, stopCh <-chan struct{}, done chan struct{}) {
	defer func() {
		r.mu.Lock()
		r.running = false
		r.mu.Unlock()
		r.emit(Event{Kind: EventEnd})
		close(done)
	}()

	headers := http.Header{}
	headers.Set("Authorization", "Token "+r.dg.apiKey)
	conn, resp, err := websocket.Dial(ctx, r.url, &websocket.DialOptions{HTTPHeader: headers})
	if err != nil {
		code := ErrNetwork
		if resp != nil && (resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden) {
			code = ErrNotAllowed
		}
		if ctx.Err() == nil {
			r.emit(Event{Kind: EventError, Code: code, Message: fmt.Sprintf("deepgram: dial: %v", err)})
		}
		return
	}
	defer conn.CloseNow()

	capture, err := r.dg.audio.NewCapture(r.dg.device, audio.DefaultCaptureConfig())
	if err == nil {
		err = capture.Start()
		if err != nil {
			capture.Close()
		}
	}
	if err != nil {
		code := ErrAudioCapture
		if errors.Is(audio.Classify(r.dg.device.String(), err), audio.ErrPermissionDenied) {
			code = ErrNotAllowed
		}
		r.emit(Event{Kind: EventError, Code: code, Message: err.Error()})
		return
	}

	pcm := make(chan []byte, 64)
	var buf []byte
	capture.SetCallback(func(data []byte, _ uint32) {
		buf = append(buf, data...)
		for len(buf) >= streamChunkBytes {
			chunk := make([]byte, streamChunkBytes)
			copy(chunk, buf[:streamChunkBytes])
			buf = buf[streamChunkBytes:]
			select {
			case pcm <- chunk:
			default:
				log.Warn("deepgram_audio_dropped")
			}
		}
	})

	r.emit(Event{Kind: EventStart})

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		r.writeLoop(ctx, conn, pcm, stopCh, capture)
	}()

	r.readLoop(ctx, conn, stopCh)

	r.mu.Lock()
	r.cancel()
	r.mu.Unlock()
	wg.Wait()
	capture.Close()
}

// writeLoop forwards captured audio until stop, then stops the capture and
// tells the server no more audio follows.
func (r *deepgramRecognition) writeLoop(ctx context.Context, conn *websocket.Conn, pcm <-chan []byte, stopCh <-chan struct{}, capture audio.CaptureDevice) {
	for {
		select {
		case <-ctx.Done():
			capture.ClearCallback()
			capture.Stop()
			return
		case <-stopCh:
			capture.ClearCallback()
			capture.Stop()
			if err := conn.Write(ctx, websocket.MessageText, []byte(`{"type":"CloseStream"}`)); err != nil && ctx.Err() == nil {
				log.Warnf("deepgram close stream: %v", err)
			}
			return
		case chunk := <-pcm:
			if err := conn.Write(ctx, websocket.MessageBinary, chunk); err != nil {
				if ctx.Err() == nil {
					log.Warnf("deepgram write: %v", err)
				}
				return
			}
		}
	}
}

func (r *deepgramRecognition) readLoop(ctx context.Context, conn *websocket.Conn, stopCh <-chan struct{}) {
	type readResult struct {
		data []byte
		err  error
	}
	reads := make(chan readResult)
	go func() {
		for {
			_, data, err := conn.Read(ctx)
			select {
			case reads <- readResult{data, err}:
			case <-ctx.Done():
				return
			}
			if err != nil {
				return
			}
		}
	}()

	noSpeech := time.NewTimer(r.dg.noSpeech)
	defer noSpeech.Stop()
	var flush <-chan time.Time
	stopSeen := stopCh

	for {
		select {
		case <-ctx.Done():
			return
		case <-stopSeen:
			stopSeen = nil
			noSpeech.Stop()
			flush = time.After(stopFlushTimeout)
		case <-flush:
			log.Warn("deepgram_flush_timeout")
			return
		case <-noSpeech.C:
			r.emit(Event{Kind: EventError, Code: ErrNoSpeech, Message: "no speech detected"})
			noSpeech.Reset(r.dg.noSpeech)
		case rr := <-reads:
			if rr.err != nil {
				status := websocket.CloseStatus(rr.err)
				if stopSeen != nil && status != websocket.StatusNormalClosure && status != websocket.StatusGoingAway {
					r.emit(Event{Kind: EventError, Code: ErrNetwork, Message: rr.err.Error()})
				}
				return
			}
			ev, ok := r.handleMessage(rr.data)
			if !ok {
				continue
			}
			if stopSeen != nil && ev.ResultIndex < len(ev.Results) {
				noSpeech.Reset(r.dg.noSpeech)
			}
			r.emit(ev)
		}
	}
}

func (r *deepgramRecognition) handleMessage(data []byte) (Event, bool) {
	var resp deepgramResponse
	if err := json.Unmarshal(data, &resp); err != nil {
		log.Warnf("deepgram: bad message: %v", err)
		return Event{}, false
	}
	if resp.Type != "Results" || len(resp.Channel.Alternatives) == 0 {
		return Event{}, false
	}
	alt := resp.Channel.Alternatives[0]
	transcript := strings.TrimSpace(alt.Transcript)

	r.mu.Lock()
	idx, results := r.results.apply(transcript, resp.IsFinal, alt.Confidence)
	r.mu.Unlock()
	return Event{Kind: EventResult, ResultIndex: idx, Results: results}, true
}
