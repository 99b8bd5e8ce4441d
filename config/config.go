// Package config loads benchmark settings from a settings file, the
// environment and an optional .env file.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

const (
	KeyASRSystems             = "general.asr_systems"
	KeyDataFolders            = "general.data_folders"
	KeySpeechFileType         = "general.speech_file_type"
	KeyMaxDataFiles           = "general.max_data_files"
	KeyTranscribe             = "general.transcribe"
	KeyEvaluateTranscriptions = "general.evaluate_transcriptions"
	KeyEvaluateLatency        = "general.evaluate_latency"
	KeyExpName                = "general.exp_name"
	KeyOverwriteNonEmpty      = "general.overwrite_non_empty_transcriptions"
	KeyOverwriteEmpty         = "general.overwrite_empty_transcriptions"
	KeySpeechLanguage         = "general.speech_language"
	KeyPredictedEncoding      = "general.predicted_transcription_encoding"
	KeyGoldEncoding           = "general.gold_transcription_encoding"
	KeyDelay                  = "general.delay_in_seconds_between_transcriptions"
	KeyRealtime               = "general.realtime"
	KeyParallelism            = "general.parallelism"
	KeyDatabaseURL            = "general.database_url"

	KeyAmazonAccessKeyID     = "credentials.amazon_access_key_id"
	KeyAmazonSecretAccessKey = "credentials.amazon_secret_access_key"
	KeyAmazonRegion          = "credentials.amazon_region"
	KeySpeechmaticsToken     = "credentials.speechmatics_token"
	KeyDeepgramAPIKey        = "credentials.deepgram_api_key"
	KeyGeminiAPIKey          = "credentials.gemini_api_key"
	KeyGeminiModel           = "credentials.gemini_model"
)

// ErrInvalid marks settings that cannot drive a benchmark run.
var ErrInvalid = errors.New("invalid settings")

type Credentials struct {
	AmazonAccessKeyID     string
	AmazonSecretAccessKey string
	AmazonRegion          string
	SpeechmaticsToken     string
	DeepgramAPIKey        string
	GeminiAPIKey          string
	GeminiModel           string
}

type Settings struct {
	ASRSystems             []string
	DataFolders            []string
	SpeechFileType         string
	MaxDataFiles           int
	Transcribe             bool
	EvaluateTranscriptions bool
	EvaluateLatency        bool
	ExpName                string
	OverwriteNonEmpty      bool
	OverwriteEmpty         bool
	SpeechLanguage         string
	PredictedEncoding      string
	GoldEncoding           string
	Delay                  time.Duration
	Realtime               bool
	Parallelism            int
	DatabaseURL            string
	Credentials            Credentials
}

func SetDefaults(v *viper.Viper) {
	v.SetDefault(KeyASRSystems, "awslive")
	v.SetDefault(KeyDataFolders, "data")
	v.SetDefault(KeySpeechFileType, "auto")
	v.SetDefault(KeyMaxDataFiles, 0)
	v.SetDefault(KeyTranscribe, true)
	v.SetDefault(KeyEvaluateTranscriptions, true)
	v.SetDefault(KeyEvaluateLatency, false)
	v.SetDefault(KeyExpName, "asrbench")
	v.SetDefault(KeyOverwriteNonEmpty, false)
	v.SetDefault(KeyOverwriteEmpty, true)
	v.SetDefault(KeySpeechLanguage, "en-US")
	v.SetDefault(KeyPredictedEncoding, "utf-8")
	v.SetDefault(KeyGoldEncoding, "utf-8")
	v.SetDefault(KeyDelay, 0)
	v.SetDefault(KeyRealtime, true)
	v.SetDefault(KeyParallelism, 1)
	v.SetDefault(KeyAmazonRegion, "us-west-2")
	v.SetDefault(KeyGeminiModel, "gemini-1.5-pro")
}

var envBindings = map[string][]string{
	KeyAmazonAccessKeyID:     {"AWS_ACCESS_KEY_ID", "AMAZON_ACCESS_KEY_ID"},
	KeyAmazonSecretAccessKey: {"AWS_SECRET_ACCESS_KEY", "AMAZON_SECRET_ACCESS_KEY"},
	KeyAmazonRegion:          {"AWS_REGION", "AMAZON_REGION"},
	KeySpeechmaticsToken:     {"SPEECHMATICS_API_KEY"},
	KeyDeepgramAPIKey:        {"DEEPGRAM_API_KEY"},
	KeyGeminiAPIKey:          {"GEMINI_API_KEY"},
	KeyDatabaseURL:           {"DATABASE_URL"},
}

// Init prepares v: defaults, environment bindings, the .env files and
// the settings file. An explicit configFile must exist; otherwise a
// settings.{ini,yaml,...} in the working directory is optional.
func Init(v *viper.Viper, configFile string, envFiles ...string) error {
	SetDefaults(v)

	if len(envFiles) == 0 {
		envFiles = []string{".env"}
	}
	for _, f := range envFiles {
		if err := godotenv.Load(f); err != nil && !errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("failed to load %s: %w", f, err)
		}
	}

	v.SetEnvPrefix("asrbench")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	for key, names := range envBindings {
		if err := v.BindEnv(append([]string{key}, names...)...); err != nil {
			return err
		}
	}

	if configFile != "" {
		v.SetConfigFile(configFile)
	} else {
		v.SetConfigName("settings")
		v.AddConfigPath(".")
	}
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if configFile == "" && errors.As(err, &notFound) {
			return nil
		}
		return fmt.Errorf("error reading config file: %w", err)
	}
	return nil
}

// list splits a comma separated setting, as written in settings.ini.
func list(v *viper.Viper, key string) []string {
	var out []string
	switch raw := v.Get(key).(type) {
	case []any:
		for _, item := range raw {
			if s := strings.TrimSpace(fmt.Sprint(item)); s != "" {
				out = append(out, s)
			}
		}
	default:
		for _, s := range strings.Split(v.GetString(key), ",") {
			if s = strings.TrimSpace(s); s != "" {
				out = append(out, s)
			}
		}
	}
	return out
}

func FromViper(v *viper.Viper) (Settings, error) {
	s := Settings{
		ASRSystems:             list(v, KeyASRSystems),
		DataFolders:            list(v, KeyDataFolders),
		SpeechFileType:         strings.ToLower(v.GetString(KeySpeechFileType)),
		MaxDataFiles:           v.GetInt(KeyMaxDataFiles),
		Transcribe:             v.GetBool(KeyTranscribe),
		EvaluateTranscriptions: v.GetBool(KeyEvaluateTranscriptions),
		EvaluateLatency:        v.GetBool(KeyEvaluateLatency),
		ExpName:                v.GetString(KeyExpName),
		OverwriteNonEmpty:      v.GetBool(KeyOverwriteNonEmpty),
		OverwriteEmpty:         v.GetBool(KeyOverwriteEmpty),
		SpeechLanguage:         v.GetString(KeySpeechLanguage),
		PredictedEncoding:      v.GetString(KeyPredictedEncoding),
		GoldEncoding:           v.GetString(KeyGoldEncoding),
		Delay:                  time.Duration(v.GetFloat64(KeyDelay) * float64(time.Second)),
		Realtime:               v.GetBool(KeyRealtime),
		Parallelism:            v.GetInt(KeyParallelism),
		DatabaseURL:            v.GetString(KeyDatabaseURL),
		Credentials: Credentials{
			AmazonAccessKeyID:     v.GetString(KeyAmazonAccessKeyID),
			AmazonSecretAccessKey: v.GetString(KeyAmazonSecretAccessKey),
			AmazonRegion:          v.GetString(KeyAmazonRegion),
			SpeechmaticsToken:     v.GetString(KeySpeechmaticsToken),
			DeepgramAPIKey:        v.GetString(KeyDeepgramAPIKey),
			GeminiAPIKey:          v.GetString(KeyGeminiAPIKey),
			GeminiModel:           v.GetString(KeyGeminiModel),
		},
	}
	return s, s.Validate()
}

func (s Settings) Validate() error {
	if len(s.ASRSystems) == 0 {
		return fmt.Errorf("%w: %s is empty", ErrInvalid, KeyASRSystems)
	}
	if len(s.DataFolders) == 0 {
		return fmt.Errorf("%w: %s is empty", ErrInvalid, KeyDataFolders)
	}
	if s.MaxDataFiles < 0 {
		return fmt.Errorf("%w: %s must not be negative", ErrInvalid, KeyMaxDataFiles)
	}
	if s.Parallelism < 1 {
		return fmt.Errorf("%w: %s must be at least 1", ErrInvalid, KeyParallelism)
	}
	if s.Delay < 0 {
		return fmt.Errorf("%w: %s must not be negative", ErrInvalid, KeyDelay)
	}
	return nil
}
