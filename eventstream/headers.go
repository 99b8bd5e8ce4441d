package eventstream

import (
	"encoding/binary"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strconv"
	"time"
)

const (
	HeaderContentType   = ":content-type"
	HeaderEventType     = ":event-type"
	HeaderMessageType   = ":message-type"
	HeaderExceptionType = ":exception-type"
	HeaderErrorCode     = ":error-code"
	HeaderErrorMessage  = ":error-message"

	MessageTypeEvent     = "event"
	MessageTypeException = "exception"
	MessageTypeError     = "error"
)

type ValueType byte

const (
	TypeBoolTrue ValueType = iota
	TypeBoolFalse
	TypeByte
	TypeInt16
	TypeInt32
	TypeInt64
	TypeBytes
	TypeString
	TypeTimestamp
	TypeUUID
)

// Header is one typed key/value pair. Value holds the wire bytes of the
// value without its length prefix.
type Header struct {
	Name  string
	Type  ValueType
	Value []byte
}

func StringHeader(name, value string) Header {
	return Header{Name: name, Type: TypeString, Value: []byte(value)}
}

// String renders the value; strings come back verbatim.
func (h Header) String() string {
	switch h.Type {
	case TypeBoolTrue:
		return "true"
	case TypeBoolFalse:
		return "false"
	case TypeByte:
		return strconv.Itoa(int(int8(h.Value[0])))
	case TypeInt16:
		return strconv.Itoa(int(int16(binary.BigEndian.Uint16(h.Value))))
	case TypeInt32:
		return strconv.Itoa(int(int32(binary.BigEndian.Uint32(h.Value))))
	case TypeInt64:
		return strconv.FormatInt(int64(binary.BigEndian.Uint64(h.Value)), 10)
	case TypeTimestamp:
		ms := int64(binary.BigEndian.Uint64(h.Value))
		return time.UnixMilli(ms).UTC().Format(time.RFC3339Nano)
	case TypeUUID:
		return hex.EncodeToString(h.Value)
	default:
		return string(h.Value)
	}
}

func fixedSize(t ValueType) (int, bool) {
	switch t {
	case TypeBoolTrue, TypeBoolFalse:
		return 0, true
	case TypeByte:
		return 1, true
	case TypeInt16:
		return 2, true
	case TypeInt32:
		return 4, true
	case TypeInt64, TypeTimestamp:
		return 8, true
	case TypeUUID:
		return 16, true
	}
	return 0, false
}

// EncodeHeaders lays headers out as
// [name len:1][name][type:1]([value len:2])[value].
func EncodeHeaders(headers []Header) []byte {
	var buf []byte
	for _, h := range headers {
		buf = append(buf, byte(len(h.Name)))
		buf = append(buf, h.Name...)
		buf = append(buf, byte(h.Type))
		if _, fixed := fixedSize(h.Type); !fixed {
			buf = binary.BigEndian.AppendUint16(buf, uint16(len(h.Value)))
		}
		buf = append(buf, h.Value...)
	}
	return buf
}

func DecodeHeaders(b []byte) ([]Header, error) {
	var headers []Header
	for len(b) > 0 {
		nameLen := int(b[0])
		b = b[1:]
		if len(b) < nameLen+1 {
			return nil, fmt.Errorf("%w: truncated header name", ErrFrameIntegrity)
		}
		name := string(b[:nameLen])
		typ := ValueType(b[nameLen])
		b = b[nameLen+1:]

		size, fixed := fixedSize(typ)
		if !fixed {
			if typ != TypeBytes && typ != TypeString {
				return nil, fmt.Errorf("%w: header %q has unknown type %d", ErrFrameIntegrity, name, typ)
			}
			if len(b) < 2 {
				return nil, fmt.Errorf("%w: truncated length of header %q", ErrFrameIntegrity, name)
			}
			size = int(binary.BigEndian.Uint16(b))
			b = b[2:]
		}
		if len(b) < size {
			return nil, fmt.Errorf("%w: truncated value of header %q", ErrFrameIntegrity, name)
		}

		value := make([]byte, size)
		copy(value, b[:size])
		headers = append(headers, Header{Name: name, Type: typ, Value: value})
		b = b[size:]
	}
	return headers, nil
}

// ExceptionError is what the endpoint sends instead of an event when it
// rejects the stream, e.g. a BadRequestException for malformed audio.
type ExceptionError struct {
	Type    string
	Message string
}

func (e *ExceptionError) Error() string {
	if e.Message == "" {
		return "eventstream: " + e.Type
	}
	return fmt.Sprintf("eventstream: %s: %s", e.Type, e.Message)
}

// Err returns an *ExceptionError for exception and error messages, nil
// for ordinary events.
func (m Message) Err() error {
	switch m.MessageType() {
	case MessageTypeException:
		typ, _ := m.Header(HeaderExceptionType)
		var body struct {
			Message string `json:"Message"`
		}
		if err := json.Unmarshal(m.Payload, &body); err != nil {
			body.Message = string(m.Payload)
		}
		return &ExceptionError{Type: typ, Message: body.Message}
	case MessageTypeError:
		code, _ := m.Header(HeaderErrorCode)
		msg, _ := m.Header(HeaderErrorMessage)
		return &ExceptionError{Type: code, Message: msg}
	}
	return nil
}
