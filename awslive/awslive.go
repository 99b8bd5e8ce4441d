// Package awslive streams PCM audio to AWS Transcribe over a presigned
// websocket, using the binary event-stream framing.
package awslive

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/charmbracelet/log"
	"github.com/gorilla/websocket"

	"node.town/asrbench/audio"
	"node.town/asrbench/eventstream"
	"node.town/asrbench/sigv4"
	"node.town/asrbench/stream"
	"node.town/asrbench/transcript"
)

const (
	Name             = "awslive"
	DefaultRegion    = "us-east-1"
	DefaultLanguage  = "en-US"
	DefaultChunkSize = 4 * 1024
	Path             = "/stream-transcription-websocket"
)

type Config struct {
	Credentials  sigv4.Credentials
	Region       string
	LanguageCode string
	SampleRate   int
	ChunkSize    int

	// Host overrides transcribestreaming.<region>.amazonaws.com:8443.
	Host string
	// Scheme overrides "wss", for plain-text test servers.
	Scheme string

	Dialer         stream.Dialer
	Clock          audio.Clock
	ConnectTimeout time.Duration
	Logger         *log.Logger
	Observer       func(transcript.Event)
	OnState        func(stream.State)
}

type Client struct {
	cfg    Config
	logger *log.Logger
}

func New(cfg Config) (*Client, error) {
	if !cfg.Credentials.Valid() {
		return nil, fmt.Errorf("%w: %w", stream.ErrConfiguration, sigv4.ErrMissingCredentials)
	}
	if cfg.Region == "" {
		cfg.Region = DefaultRegion
	}
	if cfg.LanguageCode == "" {
		cfg.LanguageCode = DefaultLanguage
	}
	if cfg.SampleRate == 0 {
		cfg.SampleRate = audio.DefaultRate
	}
	if cfg.ChunkSize == 0 {
		cfg.ChunkSize = DefaultChunkSize
	}
	if cfg.Host == "" {
		cfg.Host = fmt.Sprintf("transcribestreaming.%s.amazonaws.com:8443", cfg.Region)
	}
	if cfg.Dialer == nil {
		cfg.Dialer = stream.WebSocketDialer{}
	}
	if cfg.Clock == nil {
		cfg.Clock = audio.SystemClock{}
	}
	logger := cfg.Logger
	if logger == nil {
		logger = log.New(io.Discard)
	}
	return &Client{cfg: cfg, logger: logger}, nil
}

func (c *Client) Name() string {
	return Name
}

// URL presigns a session URL valid from now for five minutes.
func (c *Client) URL(now time.Time) (string, sigv4.Context, error) {
	sc := sigv4.Context{
		Credentials: c.cfg.Credentials,
		Region:      c.cfg.Region,
		Service:     sigv4.DefaultService,
		Time:        now,
	}
	u, err := sigv4.Presign(sc, sigv4.Request{
		Method: "GET",
		Host:   c.cfg.Host,
		Path:   Path,
		Params: []sigv4.Param{
			{Key: "language-code", Value: c.cfg.LanguageCode},
			{Key: "media-encoding", Value: "pcm"},
			{Key: "sample-rate", Value: strconv.Itoa(c.cfg.SampleRate)},
		},
	})
	if err != nil {
		return "", sc, fmt.Errorf("%w: %w", stream.ErrConfiguration, err)
	}
	if c.cfg.Scheme != "" && c.cfg.Scheme != "wss" {
		u = c.cfg.Scheme + u[len("wss"):]
	}
	return u, sc, nil
}

// TranscribeStreaming signs a URL, streams content and returns what the
// service recognized. Errors are *stream.Error values carrying the
// partial result.
func (c *Client) TranscribeStreaming(ctx context.Context, content []byte, realtime bool) (transcript.Result, error) {
	src, err := audio.NewSource(audio.Format{
		SampleRate:  c.cfg.SampleRate,
		SampleWidth: 2,
		Channels:    1,
	}, c.cfg.ChunkSize, realtime)
	if err != nil {
		return transcript.Result{FirstLatency: -1}, fmt.Errorf("%w: %w", stream.ErrConfiguration, err)
	}
	src.Clock = c.cfg.Clock

	url, sc, err := c.URL(c.cfg.Clock.Now())
	if err != nil {
		return transcript.Result{FirstLatency: -1}, err
	}

	session, err := stream.NewSession(stream.Config{
		Dialer:         c.cfg.Dialer,
		Dialect:        Dialect{},
		Source:         src,
		Clock:          c.cfg.Clock,
		ConnectTimeout: c.cfg.ConnectTimeout,
		Expires:        sc.ExpiresAt(),
		Logger:         c.logger,
		Observer:       c.cfg.Observer,
		OnState:        c.cfg.OnState,
	})
	if err != nil {
		return transcript.Result{FirstLatency: -1}, err
	}

	c.logger.Info("streaming", "bytes", len(content), "realtime", realtime, "region", c.cfg.Region)
	result, err := session.Run(ctx, url, content)
	if err != nil {
		c.logger.Error("stream failed", "error", err, "events", len(result.Events))
		return result, err
	}
	c.logger.Info("done", "events", len(result.Events), "first_latency", result.FirstLatency)
	return result, nil
}

// Dialect frames audio as AudioEvent messages and decodes
// TranscriptEvent messages.
type Dialect struct{}

func (Dialect) Start(stream.Conn) error {
	return nil
}

func (Dialect) EncodeAudio(chunk []byte) (int, []byte, error) {
	return websocket.BinaryMessage, eventstream.EncodeAudioEvent(chunk), nil
}

// EncodeEnd is an audio event with an empty payload.
func (Dialect) EncodeEnd() (int, []byte, error) {
	return websocket.BinaryMessage, eventstream.Terminator(), nil
}

func (Dialect) Decode(kind int, data []byte) ([]transcript.Event, bool, error) {
	if kind != websocket.BinaryMessage {
		return nil, false, fmt.Errorf("unexpected %d message", kind)
	}
	msg, err := eventstream.DecodeVerified(data)
	if err != nil {
		return nil, false, err
	}
	if err := msg.Err(); err != nil {
		return nil, false, err
	}
	if msg.EventType() != "TranscriptEvent" && msg.EventType() != "" {
		return nil, false, nil
	}
	events, err := ParseTranscriptEvent(msg.Payload)
	return events, false, err
}

func (Dialect) IsCleanClose(err error) bool {
	return stream.IsNormalClosure(err)
}

type item struct {
	Content    string  `json:"Content"`
	Confidence float64 `json:"Confidence"`
	Type       string  `json:"Type"`
}

type alternative struct {
	Transcript string  `json:"Transcript"`
	Confidence float64 `json:"Confidence"`
	Items      []item  `json:"Items"`
}

type result struct {
	ResultID     string        `json:"ResultId"`
	StartTime    float64       `json:"StartTime"`
	EndTime      float64       `json:"EndTime"`
	IsPartial    bool          `json:"IsPartial"`
	Alternatives []alternative `json:"Alternatives"`
}

type transcriptEvent struct {
	Transcript *struct {
		Results []result `json:"Results"`
	} `json:"Transcript"`
	Results []result `json:"Results"`
}

var ErrMalformedPayload = errors.New("malformed transcript event")

// ParseTranscriptEvent decodes the JSON body of a TranscriptEvent. Results
// may sit under "Transcript" or at the top level.
func ParseTranscriptEvent(payload []byte) ([]transcript.Event, error) {
	var te transcriptEvent
	if err := json.Unmarshal(payload, &te); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrMalformedPayload, err)
	}
	results := te.Results
	if te.Transcript != nil {
		results = te.Transcript.Results
	}

	events := make([]transcript.Event, 0, len(results))
	for _, r := range results {
		ev := transcript.Event{
			IsPartial: r.IsPartial,
			StartTime: r.StartTime,
			EndTime:   r.EndTime,
		}
		for _, a := range r.Alternatives {
			ev.Alternatives = append(ev.Alternatives, transcript.Alternative{
				Text:       a.Transcript,
				Confidence: confidence(a),
			})
		}
		events = append(events, ev)
	}
	return events, nil
}

// confidence is the alternative's own score, or the mean over its
// pronunciation items when the service only scores items.
func confidence(a alternative) float64 {
	if a.Confidence != 0 {
		return a.Confidence
	}
	var sum float64
	n := 0
	for _, it := range a.Items {
		if it.Type == "punctuation" {
			continue
		}
		sum += it.Confidence
		n++
	}
	if n == 0 {
		return 0
	}
	return sum / float64(n)
}
