package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"emily/tools"
)

// ServerState holds the running server components
type ServerState struct {
	db        *DB
	conv      *Conversation
	webhook   *WebhookServer
	scheduler *DigestScheduler
	running   bool
}

var serverState *ServerState
var serverMu sync.Mutex

// StartServer starts the Emily server with the given configuration
func StartServer(config *Config) error {
	serverMu.Lock()
	defer serverMu.Unlock()

	if serverState != nil && serverState.running {
		return fmt.Errorf("server already running")
	}

	log.SetFlags(log.LstdFlags | log.Lshortfile)
	log.Println("Starting Emily - voice receptionist")
	for _, w := range config.Warnings() {
		log.Printf("WARNING: %s", w)
	}

	metrics := NewMetrics()

	// Initialize database
	db, err := InitDB(config.DatabasePath)
	if err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}
	log.Println("Database initialized")

	// Initialize email
	if config.ResendAPIKey != "" {
		tools.SetResendAPIKey(config.ResendAPIKey)
		tools.SetFromEmail(config.FromEmail)
		log.Println("Email (Resend) configured")
	}

	sheet, err := NewGoogleSheet(context.Background(), config.GoogleCredentials, config.GoogleSheetsID, config.GoogleSheetsTab, metrics)
	if err != nil {
		db.Close()
		return fmt.Errorf("failed to initialize Google Sheets: %w", err)
	}

	analyzer := NewOpenAIAnalyzer(config.OpenAIAPIKey, config.OpenAIModel, config.OpenAIBaseURL, metrics)
	tts := NewElevenLabsSynthesizer(config.ElevenAPIKey, config.ElevenVoiceID, config.ElevenModelID, config.ElevenOutputFormat, config.AudioDir, metrics)

	var notifier LeadNotifier
	if config.TelegramBotToken != "" {
		bot, err := NewBot(config.TelegramBotToken, config.AdminID)
		if err != nil {
			log.Printf("Telegram disabled: %v", err)
		} else {
			notifier = bot
			log.Println("Telegram lead notifications configured")
		}
	}

	finalizer := NewFinalizer(analyzer, sheet, db, notifier, metrics, config.CollaboratorTimeout)
	calls := NewCallStore()
	metrics.TrackCalls(calls)
	conv := NewConversation(calls, analyzer, tts, sheet, finalizer, metrics, config.CollaboratorTimeout)
	digest := NewDigest(db, resendMailer{}, config.DigestTo, metrics)

	state := &ServerState{
		db:      db,
		conv:    conv,
		running: true,
	}

	if config.DigestCron != "" {
		state.scheduler, err = NewDigestScheduler(config.DigestCron, digest, config.CollaboratorTimeout)
		if err != nil {
			db.Close()
			return err
		}
		state.scheduler.Start()
	}

	// Start webhook server
	state.webhook = NewWebhookServer(conv, digest, metrics, WebhookOptions{
		Port:        config.WebhookPort,
		BaseURL:     config.PublicBaseURL,
		AuthToken:   config.TwilioAuthToken,
		DigestToken: config.DigestToken,
		Gather: GatherSettings{
			Language: config.GatherLanguage,
			Timeout:  config.GatherTimeout,
		},
	})
	go func() {
		if err := state.webhook.Start(); err != nil {
			log.Printf("Webhook server error: %v", err)
		}
	}()

	serverState = state
	return nil
}

// StopServer stops the running Emily server
func StopServer() {
	serverMu.Lock()
	defer serverMu.Unlock()

	if serverState == nil || !serverState.running {
		return
	}

	log.Println("Stopping Emily...")

	if serverState.scheduler != nil {
		serverState.scheduler.Stop()
	}

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := serverState.webhook.Shutdown(ctx); err != nil {
		log.Printf("Webhook shutdown: %v", err)
	}

	// Let in-flight generators finish before the database goes away.
	serverState.conv.Wait()

	if serverState.db != nil {
		serverState.db.Close()
	}

	serverState.running = false
	serverState = nil

	log.Println("Emily shutdown complete")
}

// WaitForShutdown blocks until a shutdown signal is received
func WaitForShutdown() {
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	sig := <-sigChan
	log.Printf("Received %v, shutting down...", sig)
}
