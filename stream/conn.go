package stream

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/websocket"
)

// Conn is a message-oriented duplex connection. One goroutine may read
// while another writes; neither method may be called concurrently with
// itself. *websocket.Conn satisfies it.
type Conn interface {
	ReadMessage() (kind int, data []byte, err error)
	WriteMessage(kind int, data []byte) error
	Close() error
}

type Dialer interface {
	Dial(ctx context.Context, url string) (Conn, error)
}

// WebSocketDialer dials with gorilla/websocket. A refused upgrade comes
// back as a *HandshakeError carrying the HTTP status.
type WebSocketDialer struct {
	Header           http.Header
	HandshakeTimeout time.Duration
	Dialer           *websocket.Dialer
}

func (d WebSocketDialer) Dial(ctx context.Context, url string) (Conn, error) {
	dialer := d.Dialer
	if dialer == nil {
		dialer = &websocket.Dialer{
			Proxy:            http.ProxyFromEnvironment,
			HandshakeTimeout: d.HandshakeTimeout,
		}
	}
	conn, resp, err := dialer.DialContext(ctx, url, d.Header)
	if err != nil {
		if resp != nil && errors.Is(err, websocket.ErrBadHandshake) {
			return nil, &HandshakeError{StatusCode: resp.StatusCode, Err: err}
		}
		return nil, fmt.Errorf("dial %s: %w", redact(url), err)
	}
	return conn, nil
}

// IsNormalClosure reports whether err is the remote side closing the
// websocket with status 1000.
func IsNormalClosure(err error) bool {
	return websocket.IsCloseError(err, websocket.CloseNormalClosure)
}

// redact strips the query string, which may carry a signature.
func redact(url string) string {
	base, _, _ := strings.Cut(url, "?")
	return base
}
