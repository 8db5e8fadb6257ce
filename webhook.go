package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"time"
)

// WebhookServer serves the Twilio voice webhooks and the operational endpoints.
type WebhookServer struct {
	conv        *Conversation
	twiml       *TwiML
	digest      *Digest
	metrics     *Metrics
	port        int
	authToken   string
	baseURL     string
	digestToken string
	limiter     *RateLimiter
	srv         *http.Server
}

// WebhookOptions carries the server's wiring.
type WebhookOptions struct {
	Port        int
	BaseURL     string
	AuthToken   string // Twilio auth token; empty disables signature checks
	DigestToken string // bearer token for /daily-summary; empty disables the check
	Gather      GatherSettings
}

// NewWebhookServer creates a new webhook server
func NewWebhookServer(conv *Conversation, digest *Digest, metrics *Metrics, opts WebhookOptions) *WebhookServer {
	return &WebhookServer{
		conv:        conv,
		twiml:       NewTwiML(opts.BaseURL, opts.Gather),
		digest:      digest,
		metrics:     metrics,
		port:        opts.Port,
		authToken:   opts.AuthToken,
		baseURL:     opts.BaseURL,
		digestToken: opts.DigestToken,
		limiter:     NewRateLimiter(20, 40),
	}
}

// Handler returns the routed handler.
func (w *WebhookServer) Handler() http.Handler {
	twilio := func(h http.HandlerFunc) http.HandlerFunc {
		return chainMiddleware(h,
			w.limiter.Middleware,
			func(next http.HandlerFunc) http.HandlerFunc { return maxBodyMiddleware(maxWebhookBody, next) },
			func(next http.HandlerFunc) http.HandlerFunc { return twilioWebhookAuth(w.authToken, w.baseURL, next) },
		)
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/voice", twilio(w.handleVoice))
	mux.HandleFunc("/listen", twilio(w.handleListen))
	mux.HandleFunc("/call-status", twilio(w.handleCallStatus))
	mux.HandleFunc("/voice-file", w.limiter.Middleware(w.handleVoiceFile))
	mux.HandleFunc("/daily-summary", w.limiter.Middleware(tokenAuth(w.digestToken, w.handleDailySummary)))
	mux.HandleFunc("/health", w.handleHealth)
	mux.Handle("/metrics", w.metrics.Handler())
	return mux
}

// Start starts the webhook server
func (w *WebhookServer) Start() error {
	addr := fmt.Sprintf(":%d", w.port)
	w.srv = &http.Server{
		Addr:              addr,
		Handler:           w.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	log.Printf("Webhook server starting on %s", addr)
	log.Println("Voice endpoints: /voice, /listen, /voice-file, /call-status")
	if err := w.srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown stops accepting requests and waits for in-flight ones.
func (w *WebhookServer) Shutdown(ctx context.Context) error {
	w.limiter.Close()
	if w.srv == nil {
		return nil
	}
	return w.srv.Shutdown(ctx)
}

func (w *WebhookServer) handleHealth(rw http.ResponseWriter, r *http.Request) {
	rw.WriteHeader(http.StatusOK)
	rw.Write([]byte("OK"))
}

// handleVoice handles POST /voice: one speech-gather cycle.
func (w *WebhookServer) handleVoice(rw http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(rw, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	callSID := r.FormValue(formCallSID)
	if callSID == "" {
		http.Error(rw, "Missing CallSid", http.StatusBadRequest)
		return
	}

	if r.FormValue(formCallStatus) == callStatusCompleted {
		w.conv.EndCall(r.Context(), callSID)
		w.writeTwiML(rw, w.twiml.Empty)
		return
	}

	reply := w.conv.HandleVoice(r.Context(), callSID, r.FormValue(formSpeechResult))
	w.writeTwiML(rw, func() (string, error) { return w.twiml.Reply(callSID, reply) })
}

// handleListen handles POST /listen, reached once the utterance finished playing.
func (w *WebhookServer) handleListen(rw http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(rw, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if callSID := r.FormValue(formCallSID); callSID != "" {
		w.conv.MarkListening(callSID)
	}
	w.writeTwiML(rw, w.twiml.Listen)
}

// handleVoiceFile handles GET /voice-file?call_sid=...
func (w *WebhookServer) handleVoiceFile(rw http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet && r.Method != http.MethodHead {
		http.Error(rw, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	rw.Header().Set("Content-Type", "audio/wav")
	rw.Header().Set("Cache-Control", "no-store")

	callSID := r.URL.Query().Get("call_sid")
	if path := w.conv.CurrentAudio(callSID); path != "" {
		err := serveAudioFile(rw, r, path)
		if err == nil {
			return
		}
		log.Printf("[Voice] %s: audio %s unavailable: %v", callSID, path, err)
	}

	rw.Write(silenceWAV(time.Second))
}

func serveAudioFile(rw http.ResponseWriter, r *http.Request, path string) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()
	info, err := f.Stat()
	if err != nil {
		return err
	}
	http.ServeContent(rw, r, "", info.ModTime(), f)
	return nil
}

// handleCallStatus handles POST /call-status from the status callback.
func (w *WebhookServer) handleCallStatus(rw http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(rw, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	callSID := r.FormValue(formCallSID)
	if callSID == "" {
		http.Error(rw, "Missing CallSid", http.StatusBadRequest)
		return
	}

	status := r.FormValue(formCallStatus)
	log.Printf("[Voice] %s: status %s", callSID, status)
	if status == callStatusCompleted {
		w.conv.EndCall(r.Context(), callSID)
	}
	rw.WriteHeader(http.StatusOK)
}

// handleDailySummary handles GET /daily-summary[?date=YYYY-MM-DD].
func (w *WebhookServer) handleDailySummary(rw http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet && r.Method != http.MethodPost {
		http.Error(rw, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	day := r.URL.Query().Get("date")
	if day != "" {
		if _, err := time.Parse(dateLayout, day); err != nil {
			http.Error(rw, "Invalid date", http.StatusBadRequest)
			return
		}
	}

	status := "OK"
	if _, err := w.digest.Send(r.Context(), day); err != nil {
		log.Printf("[Digest] %v", err)
		status = "ERROR"
	}

	rw.Header().Set("Content-Type", "application/json")
	json.NewEncoder(rw).Encode(map[string]string{"status": status})
}

func (w *WebhookServer) writeTwiML(rw http.ResponseWriter, render func() (string, error)) {
	doc, err := render()
	if err != nil {
		log.Printf("[Voice] Failed to render TwiML: %v", err)
		http.Error(rw, "Internal error", http.StatusInternalServerError)
		return
	}
	rw.Header().Set("Content-Type", "application/xml")
	rw.Write([]byte(doc))
}
