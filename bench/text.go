package bench

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"strings"

	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/htmlindex"
	"golang.org/x/text/encoding/unicode"
)

// textEncoding resolves an encoding label such as "utf-8" or "iso-8859-1".
func textEncoding(label string) (encoding.Encoding, error) {
	if label == "" {
		return unicode.UTF8, nil
	}
	enc, err := htmlindex.Get(strings.ReplaceAll(label, "_", "-"))
	if err != nil {
		return nil, fmt.Errorf("unknown text encoding %q: %w", label, err)
	}
	return enc, nil
}

func readText(path, label string) (string, error) {
	enc, err := textEncoding(label)
	if err != nil {
		return "", err
	}
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()
	data, err := io.ReadAll(enc.NewDecoder().Reader(f))
	if err != nil {
		return "", fmt.Errorf("failed to decode %s: %w", path, err)
	}
	return string(bytes.TrimPrefix(data, []byte("\ufeff"))), nil
}

func writeText(path, label, text string) error {
	enc, err := textEncoding(label)
	if err != nil {
		return err
	}
	data, err := enc.NewEncoder().Bytes([]byte(text))
	if err != nil {
		return fmt.Errorf("failed to encode %s: %w", path, err)
	}
	return os.WriteFile(path, data, 0644)
}
