package main

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all configuration for the Emily voice receptionist
type Config struct {
	WebhookPort   int    // Port for incoming webhooks
	PublicBaseURL string // Public origin Twilio reaches us at, e.g. https://emily.example.com
	DatabasePath  string
	AudioDir      string // Where synthesized WAV files are written

	OpenAIAPIKey  string
	OpenAIModel   string // empty selects the analyzer's default
	OpenAIBaseURL string

	ElevenAPIKey       string
	ElevenVoiceID      string
	ElevenModelID      string
	ElevenOutputFormat string // pcm_<rate>, resampled to 16 kHz for Twilio

	GoogleSheetsID    string // Spreadsheet holding the lead log
	GoogleSheetsTab   string
	GoogleCredentials string // Service account JSON file

	ResendAPIKey string   // Resend API key for email
	FromEmail    string   // Sender for outgoing email
	DigestTo     []string // Recipients of the daily digest
	DigestCron   string   // Optional in-process digest schedule, e.g. "0 18 * * *"
	DigestToken  string   // Bearer token protecting /daily-summary

	TwilioAuthToken string // Twilio Auth Token, enables webhook signature checks
	GatherLanguage  string
	GatherTimeout   int // seconds of silence before an empty gather result

	TelegramBotToken string
	AdminID          int64 // Telegram chat notified of new leads

	CollaboratorTimeout time.Duration
}

// LoadConfig loads configuration from environment variables
func LoadConfig() (*Config, error) {
	// Load .env file (overrides existing env vars)
	_ = godotenv.Overload()

	config := &Config{
		WebhookPort:         getEnvAsIntOrDefault("WEBHOOK_PORT", 8080),
		PublicBaseURL:       strings.TrimRight(os.Getenv("PUBLIC_BASE_URL"), "/"),
		DatabasePath:        getEnvOrDefault("DATABASE_PATH", "./emily.db"),
		AudioDir:            getEnvOrDefault("AUDIO_DIR", os.TempDir()),
		OpenAIAPIKey:        os.Getenv("OPENAI_API_KEY"),
		OpenAIModel:         os.Getenv("OPENAI_MODEL"),
		OpenAIBaseURL:       os.Getenv("OPENAI_BASE_URL"),
		ElevenAPIKey:        os.Getenv("ELEVEN_API_KEY"),
		ElevenVoiceID:       os.Getenv("ELEVEN_VOICE_ID"),
		ElevenModelID:       getEnvOrDefault("ELEVEN_MODEL_ID", "eleven_multilingual_v2"),
		ElevenOutputFormat:  getEnvOrDefault("ELEVEN_OUTPUT_FORMAT", defaultElevenOutputFormat),
		GoogleSheetsID:      os.Getenv("GOOGLE_SHEETS_ID"),
		GoogleSheetsTab:     getEnvOrDefault("GOOGLE_SHEETS_TAB", "Prospect"),
		GoogleCredentials:   os.Getenv("GOOGLE_APPLICATION_CREDENTIALS"),
		ResendAPIKey:        os.Getenv("RESEND_API_KEY"),
		FromEmail:           os.Getenv("FROM_EMAIL"),
		DigestTo:            getEnvAsListOrDefault("DIGEST_TO_EMAIL", nil),
		DigestCron:          os.Getenv("DIGEST_CRON"),
		DigestToken:         os.Getenv("DIGEST_TOKEN"),
		TwilioAuthToken:     os.Getenv("TWILIO_AUTH_TOKEN"),
		GatherLanguage:      getEnvOrDefault("GATHER_LANGUAGE", "fr-CA"),
		GatherTimeout:       getEnvAsIntOrDefault("GATHER_TIMEOUT", 8),
		TelegramBotToken:    os.Getenv("TELEGRAM_BOT_TOKEN"),
		AdminID:             int64(getEnvAsIntOrDefault("ADMIN_ID", 0)),
		CollaboratorTimeout: getEnvAsDurationOrDefault("COLLABORATOR_TIMEOUT", 30*time.Second),
	}

	if config.WebhookPort <= 0 {
		return nil, fmt.Errorf("invalid WEBHOOK_PORT %d", config.WebhookPort)
	}
	if _, ok := pcmRate(config.ElevenOutputFormat); !ok {
		return nil, fmt.Errorf("invalid ELEVEN_OUTPUT_FORMAT %q, want pcm_<rate>", config.ElevenOutputFormat)
	}

	return config, nil
}

// Warnings lists missing settings that degrade the service without stopping it.
func (c *Config) Warnings() []string {
	var warnings []string
	if c.PublicBaseURL == "" {
		warnings = append(warnings, "PUBLIC_BASE_URL not set - <Play> URLs will be relative")
	}
	if c.OpenAIAPIKey == "" {
		warnings = append(warnings, "OPENAI_API_KEY not set - every analysis falls back to an apology")
	}
	if c.ElevenAPIKey == "" || c.ElevenVoiceID == "" {
		warnings = append(warnings, "ELEVEN_API_KEY/ELEVEN_VOICE_ID not set - replies use <Say>")
	}
	if c.GoogleSheetsID == "" {
		warnings = append(warnings, "GOOGLE_SHEETS_ID not set - leads are only kept in the call log")
	}
	if c.ResendAPIKey == "" || len(c.DigestTo) == 0 {
		warnings = append(warnings, "RESEND_API_KEY/DIGEST_TO_EMAIL not set - the daily digest cannot be sent")
	}
	if c.TwilioAuthToken == "" {
		warnings = append(warnings, "TWILIO_AUTH_TOKEN not set - webhook signatures are not checked")
	}
	if c.DigestToken == "" {
		warnings = append(warnings, "DIGEST_TOKEN not set - /daily-summary is open")
	}
	return warnings
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsIntOrDefault(key string, defaultValue int) int {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}

	value, err := strconv.Atoi(valueStr)
	if err != nil {
		return defaultValue
	}

	return value
}

func getEnvAsDurationOrDefault(key string, defaultValue time.Duration) time.Duration {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}

	value, err := time.ParseDuration(valueStr)
	if err != nil || value <= 0 {
		return defaultValue
	}

	return value
}

// getEnvAsListOrDefault splits a comma-separated value, dropping blanks.
func getEnvAsListOrDefault(key string, defaultValue []string) []string {
	var out []string
	for _, part := range strings.Split(os.Getenv(key), ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	if len(out) == 0 {
		return defaultValue
	}
	return out
}
