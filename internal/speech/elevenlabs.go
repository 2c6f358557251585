package speech

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/usmanalidev/demo-agent-ai/pkg/logging"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
)

const (
	defaultBaseURL = "https://api.elevenlabs.io"
	defaultVoiceID = "9BWtsMINqrJLrRacOk9x"
	defaultModelID = "eleven_multilingual_v2"
	defaultTimeout = 15 * time.Second
	maxErrorBody   = 300
)

// VoiceSettings tunes the synthesized voice.
type VoiceSettings struct {
	Stability       float64 `json:"stability"`
	SimilarityBoost float64 `json:"similarity_boost"`
}

// DefaultVoiceSettings matches the demo's narrator voice.
func DefaultVoiceSettings() VoiceSettings {
	return VoiceSettings{Stability: 0.5, SimilarityBoost: 0.75}
}

// ClientConfig configures the ElevenLabs client.
type ClientConfig struct {
	BaseURL    string
	VoiceID    string
	ModelID    string
	Voice      VoiceSettings
	Timeout    time.Duration
	HTTPClient *http.Client
	Logger     *logging.Logger
}

// Client calls the ElevenLabs text-to-speech endpoint.
type Client struct {
	httpClient *http.Client
	baseURL    string
	voiceID    string
	modelID    string
	voice      VoiceSettings
	logger     *logging.Logger
	tracer     trace.Tracer
}

type synthesisBody struct {
	Text          string        `json:"text"`
	ModelID       string        `json:"model_id"`
	VoiceSettings VoiceSettings `json:"voice_settings"`
}

// NewClient constructs a client, filling unset fields with defaults.
func NewClient(cfg ClientConfig) *Client {
	if strings.TrimSpace(cfg.BaseURL) == "" {
		cfg.BaseURL = defaultBaseURL
	}
	if strings.TrimSpace(cfg.VoiceID) == "" {
		cfg.VoiceID = defaultVoiceID
	}
	if strings.TrimSpace(cfg.ModelID) == "" {
		cfg.ModelID = defaultModelID
	}
	if cfg.Voice == (VoiceSettings{}) {
		cfg.Voice = DefaultVoiceSettings()
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = &http.Client{Timeout: cfg.Timeout}
	}
	if cfg.Logger == nil {
		cfg.Logger = logging.Default()
	}
	return &Client{
		httpClient: cfg.HTTPClient,
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		voiceID:    cfg.VoiceID,
		modelID:    cfg.ModelID,
		voice:      cfg.Voice,
		logger:     cfg.Logger,
		tracer:     otel.Tracer("demoagent.internal.speech.elevenlabs"),
	}
}

// Variant identifies the voice and model, used to scope cached audio.
func (c *Client) Variant() string {
	return c.voiceID + "|" + c.modelID
}

// Synthesize returns mpeg audio for req.Text.
func (c *Client) Synthesize(ctx context.Context, req Request) (*Audio, error) {
	apiKey := strings.TrimSpace(req.APIKey)
	if apiKey == "" {
		return nil, ErrCredentialMissing
	}
	if strings.TrimSpace(req.Text) == "" {
		return nil, errors.New("speech: text required")
	}

	ctx, span := c.tracer.Start(ctx, "speech.elevenlabs.synthesize")
	defer span.End()

	payload, err := json.Marshal(synthesisBody{Text: req.Text, ModelID: c.modelID, VoiceSettings: c.voice})
	if err != nil {
		return nil, fmt.Errorf("speech: marshal request: %w", err)
	}

	endpoint := fmt.Sprintf("%s/v1/text-to-speech/%s", c.baseURL, url.PathEscape(c.voiceID))
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("speech: build request: %w", err)
	}
	httpReq.Header.Set("Accept", "audio/mpeg")
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("xi-api-key", apiKey)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("%w: %w", ErrSynthesisFailed, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("%w: read response: %w", ErrSynthesisFailed, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		msg := string(body)
		if len(msg) > maxErrorBody {
			msg = msg[:maxErrorBody]
		}
		c.logger.Warn("speech API non-2xx response", "status", resp.StatusCode, "voice_id", c.voiceID, "body", msg)
		statusErr := &StatusError{StatusCode: resp.StatusCode, Body: msg}
		span.RecordError(statusErr)
		return nil, statusErr
	}
	if len(body) == 0 {
		return nil, fmt.Errorf("%w: empty audio", ErrSynthesisFailed)
	}

	contentType := resp.Header.Get("Content-Type")
	if contentType == "" {
		contentType = "audio/mpeg"
	}
	return &Audio{Data: body, ContentType: contentType}, nil
}
