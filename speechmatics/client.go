package speechmatics

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"time"

	"github.com/charmbracelet/log"
)

const (
	Name                = "speechmatics"
	LiveName            = "speechmatics_live"
	BaseURL             = "https://asr.api.speechmatics.com/v2"
	WebSocketBaseURL    = "wss://eu2.rt.speechmatics.com/v2"
	DefaultPollInterval = 5 * time.Second
)

type Client struct {
	APIKey       string
	HTTPClient   *http.Client
	BaseURL      string
	RealtimeURL  string
	PollInterval time.Duration
	Logger       *log.Logger
}

func NewClient(apiKey string, logger *log.Logger) *Client {
	if logger == nil {
		logger = log.New(io.Discard)
	}
	return &Client{
		APIKey:       apiKey,
		HTTPClient:   &http.Client{},
		BaseURL:      BaseURL,
		RealtimeURL:  WebSocketBaseURL,
		PollInterval: DefaultPollInterval,
		Logger:       logger,
	}
}

func (c *Client) Name() string {
	return Name
}

type TranscriptionConfig struct {
	Language           string            `json:"language"`
	Domain             string            `json:"domain,omitempty"`
	OutputLocale       string            `json:"output_locale,omitempty"`
	OperatingPoint     OperatingPoint    `json:"operating_point,omitempty"`
	AdditionalVocab    []AdditionalVocab `json:"additional_vocab,omitempty"`
	Diarization        string            `json:"diarization,omitempty"`
	EnablePartials     bool              `json:"enable_partials,omitempty"`
	MaxDelay           float64           `json:"max_delay,omitempty"`
	PunctuationEnabled bool              `json:"punctuation_enabled,omitempty"`
}

type OperatingPoint string

const (
	OperatingPointStandard OperatingPoint = "standard"
	OperatingPointEnhanced OperatingPoint = "enhanced"
)

type AdditionalVocab struct {
	Content string   `json:"content"`
	Sounds  []string `json:"sounds,omitempty"`
}

type JobConfig struct {
	Type                string               `json:"type"`
	TranscriptionConfig *TranscriptionConfig `json:"transcription_config,omitempty"`
}

type JobResponse struct {
	ID string `json:"id"`
}

type JobDetails struct {
	CreatedAt time.Time `json:"created_at"`
	DataName  string    `json:"data_name"`
	Duration  int       `json:"duration"`
	ID        string    `json:"id"`
	Status    string    `json:"status"`
}

func (c *Client) newRequest(
	ctx context.Context,
	method, path string,
	body io.Reader,
) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.BaseURL+path, body)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", fmt.Sprintf("Bearer %s", c.APIKey))
	return req, nil
}

func (c *Client) do(req *http.Request, want int) (*http.Response, error) {
	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != want {
		defer resp.Body.Close()
		body, err := io.ReadAll(resp.Body)
		if err != nil {
			return nil, fmt.Errorf(
				"unexpected status code: %d, failed to read response body: %w",
				resp.StatusCode,
				err,
			)
		}
		return nil, fmt.Errorf(
			"unexpected status code: %d, response body: %s",
			resp.StatusCode,
			string(body),
		)
	}
	return resp, nil
}

// CreateJob uploads audio under the given file name together with the
// job configuration.
func (c *Client) CreateJob(
	ctx context.Context,
	name string,
	audio io.Reader,
	config JobConfig,
) (*JobResponse, error) {
	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)

	part, err := writer.CreateFormFile("data_file", name)
	if err != nil {
		return nil, err
	}
	if _, err := io.Copy(part, audio); err != nil {
		return nil, err
	}

	configJSON, err := json.Marshal(config)
	if err != nil {
		return nil, err
	}
	if err := writer.WriteField("config", string(configJSON)); err != nil {
		return nil, err
	}
	if err := writer.Close(); err != nil {
		return nil, err
	}

	req, err := c.newRequest(ctx, http.MethodPost, "/jobs", body)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())

	resp, err := c.do(req, http.StatusCreated)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var jobResponse JobResponse
	if err := json.NewDecoder(resp.Body).Decode(&jobResponse); err != nil {
		return nil, err
	}
	return &jobResponse, nil
}

func (c *Client) GetJobDetails(
	ctx context.Context,
	jobID string,
) (*JobDetails, error) {
	req, err := c.newRequest(ctx, http.MethodGet, "/jobs/"+jobID, nil)
	if err != nil {
		return nil, err
	}
	resp, err := c.do(req, http.StatusOK)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var wrappedResponse struct {
		Job JobDetails `json:"job"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&wrappedResponse); err != nil {
		return nil, err
	}
	return &wrappedResponse.Job, nil
}

// GetTranscript fetches a finished job's transcript as "json" (json-v2),
// "txt" or "srt".
func (c *Client) GetTranscript(
	ctx context.Context,
	jobID string,
	format string,
) ([]byte, error) {
	switch format {
	case "json":
		format = "json-v2"
	case "txt", "srt":
	default:
		return nil, fmt.Errorf("unsupported format: %s", format)
	}

	req, err := c.newRequest(ctx, http.MethodGet, fmt.Sprintf("/jobs/%s/transcript?format=%s", jobID, format), nil)
	if err != nil {
		return nil, err
	}
	resp, err := c.do(req, http.StatusOK)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	return io.ReadAll(resp.Body)
}

func (c *Client) DeleteJob(ctx context.Context, jobID string) error {
	req, err := c.newRequest(ctx, http.MethodDelete, "/jobs/"+jobID, nil)
	if err != nil {
		return err
	}
	resp, err := c.do(req, http.StatusOK)
	if err != nil {
		return err
	}
	return resp.Body.Close()
}

func (c *Client) WaitForJobCompletion(
	ctx context.Context,
	jobID string,
	pollInterval time.Duration,
) (*JobDetails, error) {
	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-ticker.C:
			jobDetails, err := c.GetJobDetails(ctx, jobID)
			if err != nil {
				return nil, err
			}

			c.Logger.Debug("job", "id", jobID, "status", jobDetails.Status)
			switch jobDetails.Status {
			case "done":
				return jobDetails, nil
			case "rejected", "deleted", "expired":
				return nil, fmt.Errorf(
					"job failed with status: %s",
					jobDetails.Status,
				)
			}
		}
	}
}

// TranscribeBatch submits a WAV file as a transcription job, waits for it
// and returns the plain transcript with the raw json-v2 document.
func (c *Client) TranscribeBatch(
	ctx context.Context,
	wav []byte,
	language string,
) (string, []byte, error) {
	config := JobConfig{
		Type: "transcription",
		TranscriptionConfig: &TranscriptionConfig{
			Language:       language,
			OperatingPoint: OperatingPointEnhanced,
		},
	}
	jobResponse, err := c.CreateJob(ctx, "audio.wav", bytes.NewReader(wav), config)
	if err != nil {
		return "", nil, fmt.Errorf("failed to create job: %w", err)
	}
	c.Logger.Info("job created", "id", jobResponse.ID)

	if _, err := c.WaitForJobCompletion(ctx, jobResponse.ID, c.PollInterval); err != nil {
		return "", nil, fmt.Errorf(
			"failed while waiting for job completion: %w",
			err,
		)
	}

	raw, err := c.GetTranscript(ctx, jobResponse.ID, "json")
	if err != nil {
		return "", nil, fmt.Errorf("failed to get transcript: %w", err)
	}
	transcript, err := ParseTranscript(raw)
	if err != nil {
		return "", raw, err
	}

	if err := c.DeleteJob(ctx, jobResponse.ID); err != nil {
		c.Logger.Warn("failed to delete job", "id", jobResponse.ID, "error", err)
	}
	return transcript.Text(), raw, nil
}
