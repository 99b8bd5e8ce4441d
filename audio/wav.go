package audio

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
)

var ErrUnsupportedWAV = errors.New("audio: unsupported WAV file")

// ReadWAV returns the PCM data of a RIFF/WAVE file and its format.
// Chunks other than "fmt " and "data" (LIST, fact, ...) are skipped.
func ReadWAV(r io.Reader) ([]byte, Format, error) {
	var riff [12]byte
	if _, err := io.ReadFull(r, riff[:]); err != nil {
		return nil, Format{}, fmt.Errorf("read RIFF header: %w", err)
	}
	if string(riff[0:4]) != "RIFF" || string(riff[8:12]) != "WAVE" {
		return nil, Format{}, fmt.Errorf("%w: missing RIFF/WAVE header", ErrUnsupportedWAV)
	}

	var (
		format  Format
		haveFmt bool
	)
	for {
		var hdr [8]byte
		if _, err := io.ReadFull(r, hdr[:]); err != nil {
			if errors.Is(err, io.EOF) {
				return nil, Format{}, fmt.Errorf("%w: no data chunk", ErrUnsupportedWAV)
			}
			return nil, Format{}, fmt.Errorf("read chunk header: %w", err)
		}
		id := string(hdr[0:4])
		size := int64(binary.LittleEndian.Uint32(hdr[4:8]))

		switch id {
		case "fmt ":
			body := make([]byte, size)
			if _, err := io.ReadFull(r, body); err != nil {
				return nil, Format{}, fmt.Errorf("read fmt chunk: %w", err)
			}
			if len(body) < 16 {
				return nil, Format{}, fmt.Errorf("%w: fmt chunk of %d bytes", ErrUnsupportedWAV, len(body))
			}
			if tag := binary.LittleEndian.Uint16(body[0:2]); tag != 1 {
				return nil, Format{}, fmt.Errorf("%w: audio format %d, only PCM is supported", ErrUnsupportedWAV, tag)
			}
			format = Format{
				Channels:    int(binary.LittleEndian.Uint16(body[2:4])),
				SampleRate:  int(binary.LittleEndian.Uint32(body[4:8])),
				SampleWidth: int(binary.LittleEndian.Uint16(body[14:16])) / 8,
			}
			haveFmt = true
		case "data":
			if !haveFmt {
				return nil, Format{}, fmt.Errorf("%w: data chunk before fmt chunk", ErrUnsupportedWAV)
			}
			data, err := io.ReadAll(io.LimitReader(r, size))
			if err != nil {
				return nil, Format{}, fmt.Errorf("read data chunk: %w", err)
			}
			return data, format, nil
		default:
			if _, err := io.CopyN(io.Discard, r, size+size%2); err != nil {
				return nil, Format{}, fmt.Errorf("skip %q chunk: %w", id, err)
			}
		}
		if id == "fmt " && size%2 == 1 {
			if _, err := io.CopyN(io.Discard, r, 1); err != nil {
				return nil, Format{}, fmt.Errorf("skip fmt padding: %w", err)
			}
		}
	}
}

// EncodeWAV wraps raw PCM in a canonical 44-byte WAV header.
func EncodeWAV(pcm []byte, f Format) []byte {
	channels := max(f.Channels, 1)
	buf := bytes.NewBuffer(make([]byte, 0, 44+len(pcm)))
	buf.WriteString("RIFF")
	binary.Write(buf, binary.LittleEndian, uint32(36+len(pcm)))
	buf.WriteString("WAVE")
	buf.WriteString("fmt ")
	binary.Write(buf, binary.LittleEndian, uint32(16))
	binary.Write(buf, binary.LittleEndian, uint16(1))
	binary.Write(buf, binary.LittleEndian, uint16(channels))
	binary.Write(buf, binary.LittleEndian, uint32(f.SampleRate))
	binary.Write(buf, binary.LittleEndian, uint32(f.SampleRate*channels*f.SampleWidth))
	binary.Write(buf, binary.LittleEndian, uint16(channels*f.SampleWidth))
	binary.Write(buf, binary.LittleEndian, uint16(f.SampleWidth*8))
	buf.WriteString("data")
	binary.Write(buf, binary.LittleEndian, uint32(len(pcm)))
	buf.Write(pcm)
	return buf.Bytes()
}
