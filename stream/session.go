// Package stream runs one duplex transcription session: a sender that
// writes paced audio and a terminator, and a receiver that decodes
// recognition events until the remote side closes.
package stream

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/charmbracelet/log"
	"golang.org/x/sync/errgroup"

	"node.town/asrbench/audio"
	"node.town/asrbench/transcript"
)

const DefaultConnectTimeout = 10 * time.Second

type State int32

const (
	Connecting State = iota
	Open
	Draining
	Closed
	Failed
)

func (s State) String() string {
	switch s {
	case Connecting:
		return "connecting"
	case Open:
		return "open"
	case Draining:
		return "draining"
	case Closed:
		return "closed"
	case Failed:
		return "failed"
	}
	return fmt.Sprintf("State(%d)", int32(s))
}

func (s State) Terminal() bool {
	return s == Closed || s == Failed
}

// Dialect is the provider-specific part of a session: how audio and the
// end of audio are put on the wire, and how inbound messages decode.
type Dialect interface {
	// Start is called once the connection is open, before any audio.
	Start(conn Conn) error
	EncodeAudio(chunk []byte) (kind int, data []byte, err error)
	EncodeEnd() (kind int, data []byte, err error)
	// Decode turns one inbound message into events. done reports that
	// the provider has finished and no more messages will follow.
	Decode(kind int, data []byte) (events []transcript.Event, done bool, err error)
	// IsCleanClose reports whether a read error is the expected end of
	// the stream.
	IsCleanClose(err error) bool
}

type Config struct {
	Dialer  Dialer
	Dialect Dialect
	Source  *audio.Source
	Clock   audio.Clock

	ConnectTimeout time.Duration
	// Expires is when the signed URL stops being valid. Zero means the
	// URL does not expire.
	Expires time.Time

	Logger *log.Logger
	// Observer sees every event as it arrives, on the receiver goroutine.
	Observer func(transcript.Event)
	// OnState is called after every state change.
	OnState func(State)
}

type Session struct {
	cfg    Config
	logger *log.Logger

	mu      sync.Mutex
	state   State
	cancel  context.CancelFunc
	closing bool

	started atomic.Bool
}

func NewSession(cfg Config) (*Session, error) {
	if cfg.Dialer == nil || cfg.Dialect == nil || cfg.Source == nil {
		return nil, fmt.Errorf("%w: session needs a dialer, a dialect and an audio source", ErrConfiguration)
	}
	if cfg.Clock == nil {
		cfg.Clock = audio.SystemClock{}
	}
	if cfg.ConnectTimeout <= 0 {
		cfg.ConnectTimeout = DefaultConnectTimeout
	}
	logger := cfg.Logger
	if logger == nil {
		logger = log.New(io.Discard)
	}
	return &Session{cfg: cfg, logger: logger, state: Connecting}, nil
}

func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

func (s *Session) setState(next State) {
	s.mu.Lock()
	prev := s.state
	if prev.Terminal() || prev == next {
		s.mu.Unlock()
		return
	}
	s.state = next
	s.mu.Unlock()

	s.logger.Debug("state", "from", prev, "to", next)
	if s.cfg.OnState != nil {
		s.cfg.OnState(next)
	}
}

// Close stops a running session from the caller side. Both flows stop,
// the connection is released and unsent audio is dropped.
func (s *Session) Close() error {
	s.mu.Lock()
	s.closing = true
	cancel := s.cancel
	s.mu.Unlock()
	if cancel != nil {
		cancel()
	}
	return nil
}

// callerErr is non-nil once the caller cancelled ctx or called Close.
func (s *Session) callerErr(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closing {
		return context.Canceled
	}
	return nil
}

// Run connects to url, streams content and returns the assembled result
// once the remote side closes. On failure the returned error is a *Error
// carrying the partial result.
func (s *Session) Run(ctx context.Context, url string, content []byte) (transcript.Result, error) {
	if !s.started.CompareAndSwap(false, true) {
		return transcript.Result{FirstLatency: -1}, fmt.Errorf("%w: session already used", ErrConfiguration)
	}

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	s.mu.Lock()
	s.cancel = cancel
	if s.closing {
		cancel()
	}
	s.mu.Unlock()

	asm := transcript.NewAssembler()
	fail := func(kind error, state State, err error) (transcript.Result, error) {
		result := asm.Result()
		s.setState(Failed)
		return result, &Error{Kind: kind, State: state, Partial: result, Err: err}
	}

	s.logger.Debug("connecting", "url", redact(url))
	conn, err := s.connect(runCtx, url)
	if err != nil {
		if cerr := s.callerErr(ctx); cerr != nil {
			s.setState(Closed)
			return asm.Result(), &Error{Kind: cerr, State: Connecting, Partial: asm.Result(), Err: err}
		}
		var serr *Error
		if errors.As(err, &serr) {
			return fail(serr.Kind, Connecting, serr.Err)
		}
		return fail(ErrTransport, Connecting, err)
	}

	var closeOnce sync.Once
	closeConn := func() {
		closeOnce.Do(func() {
			if err := conn.Close(); err != nil {
				s.logger.Debug("close", "error", err)
			}
		})
	}
	defer closeConn()

	s.setState(Open)

	g, gctx := errgroup.WithContext(runCtx)
	sendCtx, stopSending := context.WithCancel(gctx)
	defer stopSending()

	// Closing the connection is what unblocks a pending read, including
	// one inside the dialect's start handshake.
	go func() {
		<-gctx.Done()
		closeConn()
	}()

	cancelled := func(state State) (transcript.Result, error) {
		s.setState(Closed)
		s.logger.Debug("cancelled", "state", state)
		result := asm.Result()
		return result, &Error{Kind: s.callerErr(ctx), State: state, Partial: result}
	}

	if err := s.cfg.Dialect.Start(conn); err != nil {
		if s.callerErr(ctx) != nil {
			return cancelled(Open)
		}
		return fail(ErrTransport, Open, fmt.Errorf("start: %w", err))
	}
	start := s.cfg.Clock.Now()

	var ended, receiverDone atomic.Bool
	sent := make(chan struct{})
	g.Go(func() error {
		defer close(sent)
		err := s.send(sendCtx, conn, content)
		if err == nil {
			ended.Store(true)
		}
		return err
	})
	g.Go(func() error {
		err := s.receive(conn, asm, start)
		if err != nil {
			return err
		}
		// The remote side is only done once it has seen the end of audio.
		<-sent
		if !ended.Load() {
			return &Error{Kind: ErrTransport, Err: errors.New("remote closed before the end of audio")}
		}
		receiverDone.Store(true)
		return nil
	})
	err = g.Wait()

	if cerr := s.callerErr(ctx); cerr != nil && !receiverDone.Load() {
		return cancelled(s.State())
	}
	if err != nil {
		state := s.State()
		var serr *Error
		if errors.As(err, &serr) {
			return fail(serr.Kind, state, serr.Err)
		}
		return fail(ErrTransport, state, err)
	}

	s.setState(Closed)
	result := asm.Result()
	s.logger.Debug("closed", "events", len(result.Events), "first_latency", result.FirstLatency)
	return result, nil
}

func (s *Session) connect(ctx context.Context, url string) (Conn, error) {
	dialCtx, cancel := context.WithTimeout(ctx, s.cfg.ConnectTimeout)
	defer cancel()

	conn, err := s.cfg.Dialer.Dial(dialCtx, url)
	if err == nil {
		return conn, nil
	}

	var herr *HandshakeError
	switch {
	case errors.As(err, &herr) && (herr.StatusCode == http.StatusForbidden || herr.StatusCode == http.StatusUnauthorized):
		if !s.cfg.Expires.IsZero() && !s.cfg.Clock.Now().Before(s.cfg.Expires) {
			return nil, &Error{Kind: ErrAuthExpired, Err: err}
		}
		return nil, &Error{Kind: ErrConfiguration, Err: err}
	case errors.Is(err, context.DeadlineExceeded) || isTimeout(err):
		return nil, &Error{Kind: ErrConnectTimeout, Err: err}
	}
	return nil, &Error{Kind: ErrTransport, Err: err}
}

func isTimeout(err error) bool {
	var nerr net.Error
	return errors.As(err, &nerr) && nerr.Timeout()
}

func (s *Session) send(ctx context.Context, conn Conn, content []byte) error {
	chunks := 0
	err := s.cfg.Source.Stream(ctx, content, func(chunk []byte) error {
		kind, data, err := s.cfg.Dialect.EncodeAudio(chunk)
		if err != nil {
			return fmt.Errorf("encode chunk %d: %w", chunks, err)
		}
		if err := conn.WriteMessage(kind, data); err != nil {
			return fmt.Errorf("write chunk %d: %w", chunks, err)
		}
		chunks++
		return nil
	})
	if err != nil {
		return err
	}

	kind, data, err := s.cfg.Dialect.EncodeEnd()
	if err != nil {
		return fmt.Errorf("encode end of audio: %w", err)
	}
	if err := conn.WriteMessage(kind, data); err != nil {
		return fmt.Errorf("write end of audio: %w", err)
	}
	s.logger.Debug("sent", "chunks", chunks, "bytes", len(content))
	s.setState(Draining)
	return nil
}

func (s *Session) receive(conn Conn, asm *transcript.Assembler, start time.Time) error {
	for {
		kind, data, err := conn.ReadMessage()
		if err != nil {
			if s.cfg.Dialect.IsCleanClose(err) {
				return nil
			}
			return &Error{Kind: ErrTransport, Err: fmt.Errorf("read: %w", err)}
		}

		events, done, err := s.cfg.Dialect.Decode(kind, data)
		if err != nil {
			if errors.Is(err, ErrFrameIntegrity) {
				return &Error{Kind: ErrFrameIntegrity, Err: err}
			}
			return &Error{Kind: ErrTransport, Err: fmt.Errorf("decode: %w", err)}
		}

		latency := s.cfg.Clock.Now().Sub(start).Seconds()
		for _, ev := range events {
			ev.Latency = latency
			asm.Add(ev)
			if s.cfg.Observer != nil {
				s.cfg.Observer(ev)
			}
		}
		if done {
			return nil
		}
	}
}
