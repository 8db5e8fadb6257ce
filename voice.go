package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
)

const (
	elevenLabsBaseURL = "https://api.elevenlabs.io/v1"
	elevenLabsTimeout = 30 * time.Second

	// defaultElevenOutputFormat is downsampled to telephonySampleRate.
	defaultElevenOutputFormat = "pcm_22050"
)

var errNotConfigured = errors.New("not configured")

// Synthesizer turns reply text into an audio file Twilio can play.
type Synthesizer interface {
	// Synthesize returns the path of a WAV file containing text spoken aloud.
	Synthesize(ctx context.Context, text string) (string, error)
}

// ElevenLabsSynthesizer implements Synthesizer with the ElevenLabs REST API.
type ElevenLabsSynthesizer struct {
	apiKey       string
	voiceID      string
	modelID      string
	outputFormat string // pcm_<rate>
	sampleRate   int
	audioDir     string
	baseURL      string
	client       *http.Client
	metrics      *Metrics
}

type elevenLabsRequest struct {
	Text          string                  `json:"text"`
	ModelID       string                  `json:"model_id,omitempty"`
	VoiceSettings elevenLabsVoiceSettings `json:"voice_settings"`
}

type elevenLabsVoiceSettings struct {
	Stability       float64 `json:"stability"`
	SimilarityBoost float64 `json:"similarity_boost"`
	Style           float64 `json:"style"`
}

// NewElevenLabsSynthesizer creates a synthesizer writing WAV files under
// audioDir. outputFormat is an ElevenLabs pcm_<rate> format; anything else
// selects pcm_22050.
func NewElevenLabsSynthesizer(apiKey, voiceID, modelID, outputFormat, audioDir string, metrics *Metrics) *ElevenLabsSynthesizer {
	if apiKey == "" || voiceID == "" {
		log.Println("[TTS] Warning: ELEVEN_API_KEY or ELEVEN_VOICE_ID not set, replies will use <Say>")
	}
	rate, ok := pcmRate(outputFormat)
	if !ok {
		if outputFormat != "" {
			log.Printf("[TTS] Unsupported output format %q, using %s", outputFormat, defaultElevenOutputFormat)
		}
		outputFormat = defaultElevenOutputFormat
		rate, _ = pcmRate(outputFormat)
	}
	return &ElevenLabsSynthesizer{
		apiKey:       apiKey,
		voiceID:      voiceID,
		modelID:      modelID,
		outputFormat: outputFormat,
		sampleRate:   rate,
		audioDir:     audioDir,
		baseURL:      elevenLabsBaseURL,
		client:       &http.Client{Timeout: elevenLabsTimeout},
		metrics:      metrics,
	}
}

// Synthesize requests raw PCM from ElevenLabs and stores it as a WAV file.
func (s *ElevenLabsSynthesizer) Synthesize(ctx context.Context, text string) (string, error) {
	if s.apiKey == "" || s.voiceID == "" {
		return "", fmt.Errorf("elevenlabs: %w", errNotConfigured)
	}
	if strings.TrimSpace(text) == "" {
		return "", errors.New("elevenlabs: empty text")
	}

	body, err := json.Marshal(elevenLabsRequest{
		Text:    text,
		ModelID: s.modelID,
		VoiceSettings: elevenLabsVoiceSettings{
			Stability:       0.4,
			SimilarityBoost: 0.8,
			Style:           0.3,
		},
	})
	if err != nil {
		return "", fmt.Errorf("marshal request: %w", err)
	}

	endpoint := fmt.Sprintf("%s/text-to-speech/%s?output_format=%s", s.baseURL, s.voiceID, s.outputFormat)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("xi-api-key", s.apiKey)
	req.Header.Set("Content-Type", "application/json")

	start := time.Now()
	resp, err := s.client.Do(req)
	if err != nil {
		s.metrics.observeLatency("tts", start)
		return "", fmt.Errorf("elevenlabs request: %w", err)
	}
	defer resp.Body.Close()

	pcm, err := io.ReadAll(resp.Body)
	s.metrics.observeLatency("tts", start)
	if err != nil {
		return "", fmt.Errorf("read audio: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("elevenlabs API error (status %d): %s", resp.StatusCode, truncate(string(pcm), 200))
	}
	if len(pcm) == 0 {
		return "", errors.New("elevenlabs: empty audio")
	}

	path := filepath.Join(s.audioDir, uuid.NewString()+".wav")
	if err := os.WriteFile(path, telephonyWAV(pcm, s.sampleRate), 0o644); err != nil {
		return "", fmt.Errorf("write audio: %w", err)
	}
	return path, nil
}

// pcmRate extracts the rate from an ElevenLabs pcm_<rate> format name.
func pcmRate(format string) (int, bool) {
	digits, ok := strings.CutPrefix(format, "pcm_")
	if !ok {
		return 0, false
	}
	rate, err := strconv.Atoi(digits)
	if err != nil || rate <= 0 {
		return 0, false
	}
	return rate, true
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
