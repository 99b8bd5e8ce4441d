package speechmatics

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"node.town/asrbench/audio"
	"node.town/asrbench/stream"
	"node.town/asrbench/transcript"
)

type AudioFormat struct {
	Type       string `json:"type"`
	Encoding   string `json:"encoding"`
	SampleRate int    `json:"sample_rate"`
}

type StartRecognitionMessage struct {
	Message             string              `json:"message"`
	AudioFormat         AudioFormat         `json:"audio_format"`
	TranscriptionConfig TranscriptionConfig `json:"transcription_config"`
}

type EndOfStreamMessage struct {
	Message   string `json:"message"`
	LastSeqNo int    `json:"last_seq_no"`
}

type RTTranscriptResponse struct {
	Message  string `json:"message"`
	Metadata struct {
		Transcript string  `json:"transcript"`
		StartTime  float64 `json:"start_time"`
		EndTime    float64 `json:"end_time"`
	} `json:"metadata"`
	Results []TranscriptResult `json:"results"`

	// set on Error and Warning messages
	Type   string `json:"type"`
	Reason string `json:"reason"`
}

// RealtimeError is an Error message from the realtime service.
type RealtimeError struct {
	Type   string
	Reason string
}

func (e *RealtimeError) Error() string {
	return fmt.Sprintf("speechmatics: %s: %s", e.Type, e.Reason)
}

// Dialect speaks the realtime protocol: a StartRecognition handshake,
// binary AddAudio frames and an EndOfStream carrying the last sequence
// number.
type Dialect struct {
	Config TranscriptionConfig
	Format AudioFormat
	seq    int
}

func NewDialect(language string, sampleRate int) *Dialect {
	return &Dialect{
		Config: TranscriptionConfig{
			Language:       language,
			EnablePartials: true,
			MaxDelay:       2,
		},
		Format: AudioFormat{
			Type:       "raw",
			Encoding:   "pcm_s16le",
			SampleRate: sampleRate,
		},
	}
}

// Start sends StartRecognition and waits for RecognitionStarted.
func (d *Dialect) Start(conn stream.Conn) error {
	start, err := json.Marshal(StartRecognitionMessage{
		Message:             "StartRecognition",
		AudioFormat:         d.Format,
		TranscriptionConfig: d.Config,
	})
	if err != nil {
		return err
	}
	if err := conn.WriteMessage(websocket.TextMessage, start); err != nil {
		return fmt.Errorf("failed to send StartRecognition message: %w", err)
	}

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return fmt.Errorf("waiting for RecognitionStarted: %w", err)
		}
		var msg RTTranscriptResponse
		if err := json.Unmarshal(data, &msg); err != nil {
			return fmt.Errorf("waiting for RecognitionStarted: %w", err)
		}
		switch msg.Message {
		case "RecognitionStarted":
			return nil
		case "Error":
			return &RealtimeError{Type: msg.Type, Reason: msg.Reason}
		}
	}
}

func (d *Dialect) EncodeAudio(chunk []byte) (int, []byte, error) {
	d.seq++
	return websocket.BinaryMessage, chunk, nil
}

func (d *Dialect) EncodeEnd() (int, []byte, error) {
	data, err := json.Marshal(EndOfStreamMessage{
		Message:   "EndOfStream",
		LastSeqNo: d.seq,
	})
	return websocket.TextMessage, data, err
}

func (d *Dialect) Decode(kind int, data []byte) ([]transcript.Event, bool, error) {
	var msg RTTranscriptResponse
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, false, err
	}

	switch msg.Message {
	case "AddPartialTranscript", "AddTranscript":
		ev := transcript.Event{
			IsPartial: msg.Message == "AddPartialTranscript",
			StartTime: msg.Metadata.StartTime,
			EndTime:   msg.Metadata.EndTime,
		}
		if msg.Metadata.Transcript != "" || len(msg.Results) > 0 {
			ev.Alternatives = []transcript.Alternative{{
				Text:       msg.Metadata.Transcript,
				Confidence: meanConfidence(msg.Results),
			}}
		}
		return []transcript.Event{ev}, false, nil
	case "EndOfTranscript":
		return nil, true, nil
	case "Error":
		return nil, false, &RealtimeError{Type: msg.Type, Reason: msg.Reason}
	}
	return nil, false, nil
}

func (d *Dialect) IsCleanClose(err error) bool {
	return stream.IsNormalClosure(err)
}

func meanConfidence(results []TranscriptResult) float64 {
	var sum float64
	n := 0
	for _, r := range results {
		if r.Type == "punctuation" || len(r.Alternatives) == 0 {
			continue
		}
		sum += r.Alternatives[0].Confidence
		n++
	}
	if n == 0 {
		return 0
	}
	return sum / float64(n)
}

// Streamer runs realtime sessions against the Speechmatics service.
type Streamer struct {
	Client         *Client
	Language       string
	ChunkSize      int
	ConnectTimeout time.Duration
	Clock          audio.Clock
	Observer       func(transcript.Event)
	OnState        func(stream.State)
	Dialer         stream.Dialer
}

func (s *Streamer) Name() string {
	return LiveName
}

func (s *Streamer) TranscribeStreaming(ctx context.Context, content []byte, realtime bool) (transcript.Result, error) {
	src, err := audio.NewSource(audio.PCM16kMono, s.ChunkSize, realtime)
	if err != nil {
		return transcript.Result{FirstLatency: -1}, err
	}
	if s.Clock != nil {
		src.Clock = s.Clock
	}

	dialer := s.Dialer
	if dialer == nil {
		header := http.Header{}
		header.Set("Authorization", fmt.Sprintf("Bearer %s", s.Client.APIKey))
		dialer = stream.WebSocketDialer{Header: header}
	}

	session, err := stream.NewSession(stream.Config{
		Dialer:         dialer,
		Dialect:        NewDialect(s.Language, audio.DefaultRate),
		Source:         src,
		Clock:          s.Clock,
		ConnectTimeout: s.ConnectTimeout,
		Logger:         s.Client.Logger,
		Observer:       s.Observer,
		OnState:        s.OnState,
	})
	if err != nil {
		return transcript.Result{FirstLatency: -1}, err
	}
	return session.Run(ctx, fmt.Sprintf("%s/%s", s.Client.RealtimeURL, s.Language), content)
}
