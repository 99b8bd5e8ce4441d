package bench

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"

	"node.town/asrbench/audio"
)

var ErrNeedsConversion = errors.New("audio needs conversion")

// Converter decodes any speech file into 16 kHz mono 16-bit PCM.
type Converter interface {
	Convert(ctx context.Context, path string) ([]byte, error)
}

// FFmpeg converts with the ffmpeg binary found at Path, or on $PATH.
type FFmpeg struct {
	Path string
}

func (c FFmpeg) Convert(ctx context.Context, path string) ([]byte, error) {
	bin := c.Path
	if bin == "" {
		bin = "ffmpeg"
	}
	f := audio.PCM16kMono
	cmd := exec.CommandContext(ctx, bin,
		"-hide_banner", "-loglevel", "error",
		"-i", path,
		"-f", "s16le",
		"-acodec", "pcm_s16le",
		"-ac", strconv.Itoa(f.Channels),
		"-ar", strconv.Itoa(f.SampleRate),
		"-",
	)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return nil, fmt.Errorf("ffmpeg %s: %w: %s", path, err, strings.TrimSpace(stderr.String()))
	}
	return stdout.Bytes(), nil
}

// LoadAudio reads path as 16 kHz mono 16-bit PCM. WAV files already in
// that format are read directly; anything else goes through conv.
func LoadAudio(ctx context.Context, path string, conv Converter) ([]byte, error) {
	if strings.EqualFold(filepath.Ext(path), ".wav") {
		f, err := os.Open(path)
		if err != nil {
			return nil, err
		}
		pcm, format, err := audio.ReadWAV(f)
		f.Close()
		if err == nil && format == audio.PCM16kMono {
			return pcm, nil
		}
		if conv == nil {
			if err != nil {
				return nil, fmt.Errorf("%s: %w", path, err)
			}
			return nil, fmt.Errorf("%w: %s is %d Hz, %d channels", ErrNeedsConversion, path, format.SampleRate, format.Channels)
		}
	} else if conv == nil {
		return nil, fmt.Errorf("%w: %s", ErrNeedsConversion, path)
	}
	return conv.Convert(ctx, path)
}
