package main

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// chdirTemp runs the test from an empty directory so no stray .env is loaded.
func chdirTemp(t *testing.T) {
	t.Helper()
	wd, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(t.TempDir()))
	t.Cleanup(func() { os.Chdir(wd) })
}

func TestLoadConfigDefaults(t *testing.T) {
	chdirTemp(t)
	for _, key := range []string{"WEBHOOK_PORT", "DATABASE_PATH", "GOOGLE_SHEETS_TAB", "GATHER_LANGUAGE", "GATHER_TIMEOUT", "COLLABORATOR_TIMEOUT", "DIGEST_TO_EMAIL", "ELEVEN_MODEL_ID", "ELEVEN_OUTPUT_FORMAT"} {
		t.Setenv(key, "")
	}

	cfg, err := LoadConfig()
	require.NoError(t, err)
	assert.Equal(t, 8080, cfg.WebhookPort)
	assert.Equal(t, "./emily.db", cfg.DatabasePath)
	assert.Equal(t, "Prospect", cfg.GoogleSheetsTab)
	assert.Equal(t, "fr-CA", cfg.GatherLanguage)
	assert.Equal(t, 8, cfg.GatherTimeout)
	assert.Equal(t, "eleven_multilingual_v2", cfg.ElevenModelID)
	assert.Equal(t, "pcm_22050", cfg.ElevenOutputFormat)
	assert.Equal(t, 30*time.Second, cfg.CollaboratorTimeout)
	assert.Empty(t, cfg.DigestTo)
}

func TestLoadConfigFromEnv(t *testing.T) {
	chdirTemp(t)
	t.Setenv("WEBHOOK_PORT", "9090")
	t.Setenv("PUBLIC_BASE_URL", "https://emily.example.com/")
	t.Setenv("DIGEST_TO_EMAIL", " a@x.com, ,b@x.com ")
	t.Setenv("COLLABORATOR_TIMEOUT", "12s")
	t.Setenv("GATHER_TIMEOUT", "not-a-number")
	t.Setenv("ADMIN_ID", "42")
	t.Setenv("ELEVEN_OUTPUT_FORMAT", "pcm_24000")

	cfg, err := LoadConfig()
	require.NoError(t, err)
	assert.Equal(t, 9090, cfg.WebhookPort)
	assert.Equal(t, "https://emily.example.com", cfg.PublicBaseURL)
	assert.Equal(t, []string{"a@x.com", "b@x.com"}, cfg.DigestTo)
	assert.Equal(t, 12*time.Second, cfg.CollaboratorTimeout)
	assert.Equal(t, 8, cfg.GatherTimeout)
	assert.Equal(t, int64(42), cfg.AdminID)
	assert.Equal(t, "pcm_24000", cfg.ElevenOutputFormat)
}

func TestLoadConfigDotEnvOverrides(t *testing.T) {
	chdirTemp(t)
	t.Setenv("GOOGLE_SHEETS_TAB", "FromEnv")
	require.NoError(t, os.WriteFile(filepath.Join(".", ".env"), []byte("GOOGLE_SHEETS_TAB=FromFile\n"), 0o600))

	cfg, err := LoadConfig()
	require.NoError(t, err)
	assert.Equal(t, "FromFile", cfg.GoogleSheetsTab)
}

func TestLoadConfigRejectsBadPort(t *testing.T) {
	chdirTemp(t)
	t.Setenv("WEBHOOK_PORT", "-1")
	_, err := LoadConfig()
	assert.Error(t, err)
}

func TestLoadConfigRejectsNonPCMOutputFormat(t *testing.T) {
	chdirTemp(t)
	t.Setenv("WEBHOOK_PORT", "")
	t.Setenv("ELEVEN_OUTPUT_FORMAT", "mp3_44100_128")
	_, err := LoadConfig()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "ELEVEN_OUTPUT_FORMAT")
}

func TestConfigWarnings(t *testing.T) {
	cfg := &Config{}
	assert.Len(t, cfg.Warnings(), 7)

	cfg = &Config{
		PublicBaseURL:   "https://emily.example.com",
		OpenAIAPIKey:    "k",
		ElevenAPIKey:    "k",
		ElevenVoiceID:   "v",
		GoogleSheetsID:  "s",
		ResendAPIKey:    "r",
		DigestTo:        []string{"a@x.com"},
		TwilioAuthToken: "t",
		DigestToken:     "d",
	}
	assert.Empty(t, cfg.Warnings())
}
