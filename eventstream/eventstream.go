// Package eventstream encodes and decodes the length-prefixed, CRC32
// checked binary messages exchanged with AWS streaming endpoints.
//
// Layout of a message (all integers big-endian):
//
//	[total length:4][headers length:4][prelude crc:4][headers][payload][message crc:4]
//
// The total length counts every byte including both CRCs.
package eventstream

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"hash/crc32"
)

const (
	PreludeLen = 12
	crcLen     = 4
	// MinMessageLen is the size of a message with no headers and no payload.
	MinMessageLen = PreludeLen + crcLen
)

var ErrFrameIntegrity = errors.New("eventstream: frame integrity check failed")

// Frame is a fully laid out message, as it travels on the wire.
type Frame struct {
	TotalLength   uint32
	HeadersLength uint32
	PreludeCRC    uint32
	Headers       []byte
	Payload       []byte
	MessageCRC    uint32
}

// NewFrame computes lengths and checksums for headers and payload.
func NewFrame(headers []Header, payload []byte) Frame {
	hb := EncodeHeaders(headers)
	f := Frame{
		TotalLength:   uint32(MinMessageLen + len(hb) + len(payload)),
		HeadersLength: uint32(len(hb)),
		Headers:       hb,
		Payload:       payload,
	}

	var prelude [8]byte
	binary.BigEndian.PutUint32(prelude[0:4], f.TotalLength)
	binary.BigEndian.PutUint32(prelude[4:8], f.HeadersLength)
	f.PreludeCRC = crc32.ChecksumIEEE(prelude[:])

	b := f.withoutMessageCRC()
	f.MessageCRC = crc32.ChecksumIEEE(b)
	return f
}

func (f Frame) withoutMessageCRC() []byte {
	buf := make([]byte, PreludeLen, int(f.TotalLength))
	binary.BigEndian.PutUint32(buf[0:4], f.TotalLength)
	binary.BigEndian.PutUint32(buf[4:8], f.HeadersLength)
	binary.BigEndian.PutUint32(buf[8:12], f.PreludeCRC)
	buf = append(buf, f.Headers...)
	buf = append(buf, f.Payload...)
	return buf
}

func (f Frame) Bytes() []byte {
	return binary.BigEndian.AppendUint32(f.withoutMessageCRC(), f.MessageCRC)
}

// Encode builds a message from headers and payload.
func Encode(headers []Header, payload []byte) []byte {
	return NewFrame(headers, payload).Bytes()
}

// AudioEventHeaders are the three headers sent with every audio chunk.
func AudioEventHeaders() []Header {
	return []Header{
		StringHeader(HeaderContentType, "application/octet-stream"),
		StringHeader(HeaderEventType, "AudioEvent"),
		StringHeader(HeaderMessageType, MessageTypeEvent),
	}
}

// EncodeAudioEvent wraps one chunk of audio. An empty chunk produces the
// frame that tells the endpoint the audio is over.
func EncodeAudioEvent(chunk []byte) []byte {
	return Encode(AudioEventHeaders(), chunk)
}

func Terminator() []byte {
	return EncodeAudioEvent(nil)
}

// Message is a decoded frame.
type Message struct {
	Headers []Header
	Payload []byte
}

func (m Message) Header(name string) (string, bool) {
	for _, h := range m.Headers {
		if h.Name == name {
			return h.String(), true
		}
	}
	return "", false
}

func (m Message) MessageType() string {
	v, _ := m.Header(HeaderMessageType)
	return v
}

func (m Message) EventType() string {
	v, _ := m.Header(HeaderEventType)
	return v
}

// Decode slices a raw message into its headers and payload. It checks
// that the declared header length fits but does not verify checksums.
func Decode(raw []byte) (Message, error) {
	if len(raw) < MinMessageLen {
		return Message{}, fmt.Errorf("%w: message of %d bytes is shorter than %d", ErrFrameIntegrity, len(raw), MinMessageLen)
	}

	headersLen := int(binary.BigEndian.Uint32(raw[4:8]))
	end := len(raw) - crcLen
	if headersLen > end-PreludeLen {
		return Message{}, fmt.Errorf("%w: headers length %d exceeds message", ErrFrameIntegrity, headersLen)
	}

	headers, err := DecodeHeaders(raw[PreludeLen : PreludeLen+headersLen])
	if err != nil {
		return Message{}, err
	}

	payload := raw[PreludeLen+headersLen : end]
	return Message{Headers: headers, Payload: bytes.Clone(payload)}, nil
}

// DecodeVerified is Decode plus length and checksum verification.
func DecodeVerified(raw []byte) (Message, error) {
	if err := Verify(raw); err != nil {
		return Message{}, err
	}
	return Decode(raw)
}

func Verify(raw []byte) error {
	if len(raw) < MinMessageLen {
		return fmt.Errorf("%w: message of %d bytes is shorter than %d", ErrFrameIntegrity, len(raw), MinMessageLen)
	}
	total := binary.BigEndian.Uint32(raw[0:4])
	if int(total) != len(raw) {
		return fmt.Errorf("%w: declared length %d, got %d bytes", ErrFrameIntegrity, total, len(raw))
	}
	if got, want := crc32.ChecksumIEEE(raw[0:8]), binary.BigEndian.Uint32(raw[8:12]); got != want {
		return fmt.Errorf("%w: prelude crc %08x, want %08x", ErrFrameIntegrity, got, want)
	}
	end := len(raw) - crcLen
	if got, want := crc32.ChecksumIEEE(raw[:end]), binary.BigEndian.Uint32(raw[end:]); got != want {
		return fmt.Errorf("%w: message crc %08x, want %08x", ErrFrameIntegrity, got, want)
	}
	return nil
}
