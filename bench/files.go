// Package bench runs the benchmark over data folders: it transcribes
// every speech file with every configured system, caches the results
// next to the audio and scores them against the gold transcripts.
package bench

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// SupportedTypes are the speech file extensions a folder may hold.
var SupportedTypes = []string{"flac", "mp3", "ogg", "wav"}

var ErrNoSpeechFiles = errors.New("no speech files")

const GoldSystem = "gold"

func listType(dir, fileType string) ([]string, error) {
	files, err := filepath.Glob(filepath.Join(dir, "*."+fileType))
	if err != nil {
		return nil, err
	}
	sort.Strings(files)
	return files, nil
}

// DetectFileType resolves "auto" to the supported type with the most
// files in dir. Ties go to the type that sorts first.
func DetectFileType(dir, setting string) (string, error) {
	setting = strings.ToLower(setting)
	if setting != "auto" {
		for _, t := range SupportedTypes {
			if t == setting {
				return t, nil
			}
		}
		return "", fmt.Errorf("speech_file_type %q is invalid, want one of %v", setting, SupportedTypes)
	}

	best, most := "", 0
	for _, t := range SupportedTypes {
		files, err := listType(dir, t)
		if err != nil {
			return "", err
		}
		if len(files) > most {
			best, most = t, len(files)
		}
	}
	if best == "" {
		return "", fmt.Errorf("%w in %s: extensions should be %v", ErrNoSpeechFiles, dir, SupportedTypes)
	}
	return best, nil
}

// SpeechFiles lists the speech files of dir in name order, at most max
// of them when max is positive.
func SpeechFiles(dir, setting string, max int) ([]string, string, error) {
	fileType, err := DetectFileType(dir, setting)
	if err != nil {
		return nil, "", err
	}
	files, err := listType(dir, fileType)
	if err != nil {
		return nil, "", err
	}
	if max > 0 && len(files) > max {
		files = files[:max]
	}
	if len(files) == 0 {
		return nil, "", fmt.Errorf("%w with extension %q in %s", ErrNoSpeechFiles, fileType, dir)
	}
	return files, fileType, nil
}

// Artifacts names the transcript files of speechPath for system:
// <base>_<system>.txt and <base>_<system>.json.
func Artifacts(speechPath, system string) (base, text, json string) {
	base = strings.TrimSuffix(speechPath, filepath.Ext(speechPath)) + "_" + system
	return base, base + ".txt", base + ".json"
}

func exists(path string) (bool, error) {
	_, err := os.Stat(path)
	if err == nil {
		return true, nil
	}
	if errors.Is(err, os.ErrNotExist) {
		return false, nil
	}
	return false, err
}
