package gemini

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/log"
	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/iterator"
	"google.golang.org/api/option"
)

const (
	Name         = "gemini"
	DefaultModel = "gemini-1.5-pro"
)

// Transcriber sends whole recordings to Gemini and asks for a verbatim
// transcript.
type Transcriber struct {
	client    *genai.Client
	model     *genai.GenerativeModel
	modelName string
	logger    *log.Logger
}

func New(ctx context.Context, apiKey, modelName string, logger *log.Logger) (*Transcriber, error) {
	if apiKey == "" {
		return nil, errors.New("gemini: api key is empty")
	}
	if modelName == "" {
		modelName = DefaultModel
	}
	if logger == nil {
		logger = log.New(io.Discard)
	}
	client, err := genai.NewClient(ctx, option.WithAPIKey(apiKey))
	if err != nil {
		return nil, fmt.Errorf("failed to create genai client: %w", err)
	}
	return &Transcriber{
		client:    client,
		model:     setupGenerativeModel(client, modelName),
		modelName: modelName,
		logger:    logger,
	}, nil
}

func (tm *Transcriber) Name() string {
	return Name
}

func (tm *Transcriber) Close() error {
	return tm.client.Close()
}

func setupGenerativeModel(client *genai.Client, name string) *genai.GenerativeModel {
	model := client.GenerativeModel(name)
	model.GenerationConfig.SetMaxOutputTokens(8192)
	model.GenerationConfig.SetTemperature(0)
	model.GenerationConfig.SetTopP(1.0)
	model.SafetySettings = []*genai.SafetySetting{
		{
			Category:  genai.HarmCategoryHarassment,
			Threshold: genai.HarmBlockOnlyHigh,
		},
		{
			Category:  genai.HarmCategoryHateSpeech,
			Threshold: genai.HarmBlockOnlyHigh,
		},
		{
			Category:  genai.HarmCategorySexuallyExplicit,
			Threshold: genai.HarmBlockNone,
		},
		{
			Category:  genai.HarmCategoryDangerousContent,
			Threshold: genai.HarmBlockOnlyHigh,
		},
	}
	return model
}

func systemPrompt(language string) string {
	return fmt.Sprintf(`Transcribe this recording verbatim. The speech is in %s.

Output only the words that were spoken, on a single line, without timestamps, speaker labels or commentary.
If nothing intelligible is said, output nothing.`, language)
}

func buildPrompt(language string, wav []byte) []genai.Part {
	return []genai.Part{
		genai.Text(systemPrompt(language)),
		genai.Text("<audio>\n"),
		genai.Blob{MIMEType: "audio/wav", Data: wav},
		genai.Text("</audio>\n"),
	}
}

// rawResponse is what gets cached next to the transcript.
type rawResponse struct {
	Model         string   `json:"model"`
	Language      string   `json:"language"`
	Chunks        []string `json:"chunks"`
	FinishReasons []string `json:"finish_reasons,omitempty"`
}

// TranscribeBatch streams the model's answer for one WAV recording.
func (tm *Transcriber) TranscribeBatch(
	ctx context.Context,
	wav []byte,
	language string,
) (string, []byte, error) {
	raw := rawResponse{Model: tm.modelName, Language: language}
	var builder strings.Builder

	tm.logger.Debug("sending prompt", "bytes", len(wav), "language", language)
	stream := tm.model.GenerateContentStream(ctx, buildPrompt(language, wav)...)
	for {
		resp, err := stream.Next()
		if errors.Is(err, iterator.Done) {
			break
		}
		if err != nil {
			return "", nil, fmt.Errorf("error streaming: %w", err)
		}

		chunk := getResponseText(resp)
		raw.Chunks = append(raw.Chunks, chunk)
		raw.FinishReasons = append(raw.FinishReasons, finishReasons(resp)...)
		builder.WriteString(chunk)
	}

	data, err := json.Marshal(raw)
	if err != nil {
		return "", nil, err
	}
	return normalizeOutput(builder.String()), data, nil
}

// normalizeOutput folds the model's line breaks into single spaces.
func normalizeOutput(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

func finishReasons(resp *genai.GenerateContentResponse) []string {
	var reasons []string
	for _, candidate := range resp.Candidates {
		if candidate.FinishReason != genai.FinishReasonUnspecified {
			reasons = append(reasons, candidate.FinishReason.String())
		}
	}
	return reasons
}

func getResponseText(resp *genai.GenerateContentResponse) string {
	var text strings.Builder
	for _, candidate := range resp.Candidates {
		if candidate.Content != nil {
			for _, part := range candidate.Content.Parts {
				if t, ok := part.(genai.Text); ok {
					text.WriteString(string(t))
				}
			}
		}
	}
	return text.String()
}
