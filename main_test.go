package main

import (
	"bytes"
	"context"
	"errors"
	"io"
	"path/filepath"
	"strings"
	"testing"

	"github.com/charmbracelet/log"
	"github.com/spf13/viper"

	"node.town/asrbench/config"
	"node.town/asrbench/stream"
	"node.town/asrbench/stt"
)

func init() {
	logger = log.New(io.Discard)
}

func TestLanguage2(t *testing.T) {
	tests := map[string]string{
		"en-US": "en",
		"fr":    "fr",
		"pt-BR": "pt",
		"":      "",
	}
	for in, want := range tests {
		if got := language2(in); got != want {
			t.Errorf("language2(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestBuildRegistry(t *testing.T) {
	s := config.Settings{
		ASRSystems: []string{"deepgram", "speechmatics", "speechmatics_live"},
		Credentials: config.Credentials{
			DeepgramAPIKey:    "dg",
			SpeechmaticsToken: "smx",
		},
	}
	registry, release, err := buildRegistry(context.Background(), s, hooks{})
	if err != nil {
		t.Fatal(err)
	}
	defer release()

	if got := strings.Join(registry.Names(), ","); got != "deepgram,speechmatics,speechmatics_live" {
		t.Errorf("Names = %s", got)
	}
	if _, ok := registry.Streaming("speechmatics"); ok {
		t.Error("speechmatics should be a batch system")
	}
}

func TestBuildRegistryErrors(t *testing.T) {
	_, _, err := buildRegistry(context.Background(), config.Settings{ASRSystems: []string{"ibm"}}, hooks{})
	if !errors.Is(err, stt.ErrUnknownSystem) {
		t.Errorf("unknown system: %v", err)
	}

	_, _, err = buildRegistry(context.Background(), config.Settings{ASRSystems: []string{"awslive"}}, hooks{})
	if !errors.Is(err, stream.ErrConfiguration) {
		t.Errorf("awslive without credentials: %v", err)
	}
}

func TestWriteScore(t *testing.T) {
	var buf bytes.Buffer
	stats := writeScore(&buf, "hyp.txt", "The cat sat.", "the cat sat down")
	if stats.Insertions != 1 || stats.Corrects != 3 {
		t.Errorf("stats = %+v", stats)
	}
	if out := buf.String(); !strings.Contains(out, "33.33333%") || !strings.Contains(out, "corrects: 3, changes: 1") {
		t.Errorf("output:\n%s", out)
	}
}

func TestWriteSettings(t *testing.T) {
	path := filepath.Join(t.TempDir(), "settings.yaml")
	err := writeSettings(path, setupAnswers{
		systems:      []string{"awslive", "deepgram"},
		dataFolders:  "data/en",
		language:     "en-GB",
		maxFiles:     "5",
		awsAccessKey: "AKID",
		awsSecretKey: "SECRET",
		awsRegion:    "eu-west-2",
	})
	if err != nil {
		t.Fatal(err)
	}

	v := viper.New()
	if err := config.Init(v, path, filepath.Join(t.TempDir(), "none.env")); err != nil {
		t.Fatal(err)
	}
	s, err := config.FromViper(v)
	if err != nil {
		t.Fatal(err)
	}
	if strings.Join(s.ASRSystems, ",") != "awslive,deepgram" || s.MaxDataFiles != 5 || s.SpeechLanguage != "en-GB" {
		t.Errorf("settings = %+v", s)
	}
	if s.Credentials.AmazonSecretAccessKey != "SECRET" || s.Credentials.AmazonRegion != "eu-west-2" {
		t.Errorf("credentials = %+v", s.Credentials)
	}
}
