// Package deepgram streams audio to Deepgram's live listen endpoint.
// Inbound messages are routed to callbacks the way Deepgram's own SDK
// does it; the session dialect adapts those callbacks into events.
package deepgram

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/charmbracelet/log"
	"github.com/gorilla/websocket"

	"node.town/asrbench/audio"
	"node.town/asrbench/stream"
	"node.town/asrbench/transcript"
)

const (
	Name    = "deepgram"
	BaseURL = "wss://api.deepgram.com/v1/listen"
)

type MessageResponse struct {
	Type        string  `json:"type"`
	Start       float64 `json:"start"`
	Duration    float64 `json:"duration"`
	IsFinal     bool    `json:"is_final"`
	SpeechFinal bool    `json:"speech_final"`
	Channel     struct {
		Alternatives []struct {
			Transcript string  `json:"transcript"`
			Confidence float64 `json:"confidence"`
		} `json:"alternatives"`
	} `json:"channel"`
}

type MetadataResponse struct {
	Type      string  `json:"type"`
	RequestID string  `json:"request_id"`
	Duration  float64 `json:"duration"`
	Channels  int     `json:"channels"`
}

type SpeechStartedResponse struct {
	Type      string  `json:"type"`
	Timestamp float64 `json:"timestamp"`
}

type UtteranceEndResponse struct {
	Type        string  `json:"type"`
	LastWordEnd float64 `json:"last_word_end"`
}

type ErrorResponse struct {
	Type        string `json:"type"`
	Description string `json:"description"`
	Message     string `json:"message"`
}

func (e *ErrorResponse) Error() string {
	return fmt.Sprintf("deepgram: %s: %s", e.Type, e.Description)
}

// Callback receives the live messages, one method per message type.
type Callback interface {
	Message(mr *MessageResponse) error
	Metadata(md *MetadataResponse) error
	SpeechStarted(ssr *SpeechStartedResponse) error
	UtteranceEnd(ur *UtteranceEndResponse) error
	Error(er *ErrorResponse) error
	UnhandledEvent(byData []byte) error
}

// Route decodes one message and hands it to the matching callback.
func Route(cb Callback, data []byte) error {
	var head struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(data, &head); err != nil {
		return err
	}
	switch head.Type {
	case "Results":
		var mr MessageResponse
		if err := json.Unmarshal(data, &mr); err != nil {
			return err
		}
		return cb.Message(&mr)
	case "Metadata":
		var md MetadataResponse
		if err := json.Unmarshal(data, &md); err != nil {
			return err
		}
		return cb.Metadata(&md)
	case "SpeechStarted":
		var ssr SpeechStartedResponse
		if err := json.Unmarshal(data, &ssr); err != nil {
			return err
		}
		return cb.SpeechStarted(&ssr)
	case "UtteranceEnd":
		var ur UtteranceEndResponse
		if err := json.Unmarshal(data, &ur); err != nil {
			return err
		}
		return cb.UtteranceEnd(&ur)
	case "Error":
		var er ErrorResponse
		if err := json.Unmarshal(data, &er); err != nil {
			return err
		}
		return cb.Error(&er)
	}
	return cb.UnhandledEvent(data)
}

// collector is the Callback behind the dialect. Events are drained after
// every routed message.
type collector struct {
	logger  *log.Logger
	pending []transcript.Event
}

func (c *collector) Message(mr *MessageResponse) error {
	ev := transcript.Event{
		IsPartial: !mr.IsFinal,
		StartTime: mr.Start,
		EndTime:   mr.Start + mr.Duration,
	}
	for _, alt := range mr.Channel.Alternatives {
		ev.Alternatives = append(ev.Alternatives, transcript.Alternative{
			Text:       strings.TrimSpace(alt.Transcript),
			Confidence: alt.Confidence,
		})
	}
	if top, ok := ev.Top(); ok && top.Text != "" {
		c.logger.Debug("hear", "txt", top.Text, "final", mr.IsFinal, "start", mr.Start)
	}
	c.pending = append(c.pending, ev)
	return nil
}

func (c *collector) Metadata(md *MetadataResponse) error {
	c.logger.Debug("metadata", "request_id", md.RequestID, "duration", md.Duration)
	return nil
}

func (c *collector) SpeechStarted(ssr *SpeechStartedResponse) error {
	c.logger.Debug("speech start", "timestamp", ssr.Timestamp)
	return nil
}

func (c *collector) UtteranceEnd(ur *UtteranceEndResponse) error {
	c.logger.Debug("utterance end", "timestamp", ur.LastWordEnd)
	return nil
}

func (c *collector) Error(er *ErrorResponse) error {
	return er
}

func (c *collector) UnhandledEvent(byData []byte) error {
	c.logger.Warn("unhandled event", "data", string(byData))
	return nil
}

func (c *collector) drain() []transcript.Event {
	events := c.pending
	c.pending = nil
	return events
}

type Dialect struct {
	cb *collector
}

func NewDialect(logger *log.Logger) *Dialect {
	if logger == nil {
		logger = log.New(io.Discard)
	}
	return &Dialect{cb: &collector{logger: logger}}
}

func (d *Dialect) Start(stream.Conn) error {
	return nil
}

func (d *Dialect) EncodeAudio(chunk []byte) (int, []byte, error) {
	return websocket.BinaryMessage, chunk, nil
}

func (d *Dialect) EncodeEnd() (int, []byte, error) {
	return websocket.TextMessage, []byte(`{"type":"CloseStream"}`), nil
}

func (d *Dialect) Decode(kind int, data []byte) ([]transcript.Event, bool, error) {
	if err := Route(d.cb, data); err != nil {
		return nil, false, err
	}
	return d.cb.drain(), false, nil
}

func (d *Dialect) IsCleanClose(err error) bool {
	return stream.IsNormalClosure(err)
}

type Client struct {
	APIKey         string
	Language       string
	Model          string
	BaseURL        string
	ChunkSize      int
	ConnectTimeout time.Duration
	Clock          audio.Clock
	Logger         *log.Logger
	Observer       func(transcript.Event)
	OnState        func(stream.State)
	Dialer         stream.Dialer
}

func NewClient(apiKey string, logger *log.Logger) *Client {
	if logger == nil {
		logger = log.New(io.Discard)
	}
	return &Client{
		APIKey:   apiKey,
		Language: "en-US",
		Model:    "nova-2",
		BaseURL:  BaseURL,
		Logger:   logger,
	}
}

func (c *Client) Name() string {
	return Name
}

// URL is the listen endpoint for 16 kHz mono linear PCM with interim
// results enabled.
func (c *Client) URL() string {
	q := url.Values{}
	q.Set("model", c.Model)
	q.Set("encoding", "linear16")
	q.Set("sample_rate", strconv.Itoa(audio.DefaultRate))
	q.Set("channels", "1")
	q.Set("language", c.Language)
	q.Set("punctuate", "true")
	q.Set("interim_results", "true")
	return c.BaseURL + "?" + q.Encode()
}

func (c *Client) TranscribeStreaming(ctx context.Context, content []byte, realtime bool) (transcript.Result, error) {
	if c.APIKey == "" {
		return transcript.Result{FirstLatency: -1}, fmt.Errorf("%w: deepgram api key is empty", stream.ErrConfiguration)
	}
	src, err := audio.NewSource(audio.PCM16kMono, c.ChunkSize, realtime)
	if err != nil {
		return transcript.Result{FirstLatency: -1}, err
	}
	if c.Clock != nil {
		src.Clock = c.Clock
	}

	dialer := c.Dialer
	if dialer == nil {
		header := http.Header{}
		header.Set("Authorization", fmt.Sprintf("Token %s", c.APIKey))
		dialer = stream.WebSocketDialer{Header: header}
	}

	session, err := stream.NewSession(stream.Config{
		Dialer:         dialer,
		Dialect:        NewDialect(c.Logger),
		Source:         src,
		Clock:          c.Clock,
		ConnectTimeout: c.ConnectTimeout,
		Logger:         c.Logger,
		Observer:       c.Observer,
		OnState:        c.OnState,
	})
	if err != nil {
		return transcript.Result{FirstLatency: -1}, err
	}
	return session.Run(ctx, c.URL(), content)
}
