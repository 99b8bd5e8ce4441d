package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/viper"
)

const settingsINI = `[general]
asr_systems = awslive, speechmatics ,deepgram
data_folders = data/a,data/b
speech_file_type = WAV
max_data_files = 3
transcribe = True
evaluate_transcriptions = False
delay_in_seconds_between_transcriptions = 1.5
exp_name = trial

[credentials]
amazon_access_key_id = AKIDFILE
amazon_region = eu-west-1
`

func TestInitReadsINI(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "settings.ini")
	if err := os.WriteFile(path, []byte(settingsINI), 0644); err != nil {
		t.Fatal(err)
	}

	v := viper.New()
	if err := Init(v, path, filepath.Join(dir, "missing.env")); err != nil {
		t.Fatal(err)
	}
	s, err := FromViper(v)
	if err != nil {
		t.Fatal(err)
	}

	if got := len(s.ASRSystems); got != 3 || s.ASRSystems[1] != "speechmatics" {
		t.Errorf("ASRSystems = %q", s.ASRSystems)
	}
	if len(s.DataFolders) != 2 || s.DataFolders[1] != "data/b" {
		t.Errorf("DataFolders = %q", s.DataFolders)
	}
	if s.SpeechFileType != "wav" || s.MaxDataFiles != 3 || s.ExpName != "trial" {
		t.Errorf("settings = %+v", s)
	}
	if !s.Transcribe || s.EvaluateTranscriptions {
		t.Errorf("Transcribe = %v, EvaluateTranscriptions = %v", s.Transcribe, s.EvaluateTranscriptions)
	}
	if s.Delay != 1500*time.Millisecond {
		t.Errorf("Delay = %v", s.Delay)
	}
	if s.Credentials.AmazonRegion != "eu-west-1" {
		t.Errorf("AmazonRegion = %q", s.Credentials.AmazonRegion)
	}
	// defaults
	if s.SpeechLanguage != "en-US" || s.Parallelism != 1 || !s.OverwriteEmpty || s.OverwriteNonEmpty {
		t.Errorf("defaults not applied: %+v", s)
	}
}

func TestEnvironmentOverridesFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "settings.ini")
	if err := os.WriteFile(path, []byte(settingsINI), 0644); err != nil {
		t.Fatal(err)
	}
	t.Setenv("AWS_ACCESS_KEY_ID", "AKIDENV")
	t.Setenv("ASRBENCH_GENERAL_EXP_NAME", "from-env")

	v := viper.New()
	if err := Init(v, path, filepath.Join(dir, "missing.env")); err != nil {
		t.Fatal(err)
	}
	s, err := FromViper(v)
	if err != nil {
		t.Fatal(err)
	}
	if s.Credentials.AmazonAccessKeyID != "AKIDENV" {
		t.Errorf("AmazonAccessKeyID = %q", s.Credentials.AmazonAccessKeyID)
	}
	if s.ExpName != "from-env" {
		t.Errorf("ExpName = %q", s.ExpName)
	}
}

func TestDotEnv(t *testing.T) {
	dir := t.TempDir()
	envFile := filepath.Join(dir, "test.env")
	if err := os.WriteFile(envFile, []byte("ASRBENCH_TEST_DEEPGRAM=dg-secret\n"), 0644); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { os.Unsetenv("ASRBENCH_TEST_DEEPGRAM") })

	v := viper.New()
	if err := Init(v, "", envFile); err != nil {
		t.Fatal(err)
	}
	if got := os.Getenv("ASRBENCH_TEST_DEEPGRAM"); got != "dg-secret" {
		t.Errorf("env = %q", got)
	}
}

func TestExplicitConfigMustExist(t *testing.T) {
	v := viper.New()
	err := Init(v, filepath.Join(t.TempDir(), "nope.yaml"), filepath.Join(t.TempDir(), "x.env"))
	if err == nil {
		t.Error("expected an error for a missing config file")
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		modify func(*Settings)
	}{
		{"no systems", func(s *Settings) { s.ASRSystems = nil }},
		{"no folders", func(s *Settings) { s.DataFolders = nil }},
		{"negative max files", func(s *Settings) { s.MaxDataFiles = -1 }},
		{"zero parallelism", func(s *Settings) { s.Parallelism = 0 }},
		{"negative delay", func(s *Settings) { s.Delay = -time.Second }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := Settings{ASRSystems: []string{"awslive"}, DataFolders: []string{"data"}, Parallelism: 1}
			if err := s.Validate(); err != nil {
				t.Fatalf("baseline invalid: %v", err)
			}
			tt.modify(&s)
			if err := s.Validate(); !errors.Is(err, ErrInvalid) {
				t.Errorf("Validate = %v, want ErrInvalid", err)
			}
		})
	}
}
