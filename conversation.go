package main

import (
	"context"
	"log"
	"os"
	"strings"
	"sync"
	"time"
)

// Reply is what the webhook speaks back for one turn. Audio is a synthesized
// file served by /voice-file; when empty, Text is spoken with <Say>.
type Reply struct {
	Case   TurnCase
	Text   string
	Audio  string
	HangUp bool
}

// Conversation drives the per-call turn protocol: an instant reply for every
// turn plus a detached generator producing the real answer.
type Conversation struct {
	calls     *CallStore
	analyzer  Analyzer
	tts       Synthesizer
	sheet     LeadSheet
	finalizer *Finalizer
	metrics   *Metrics
	timeout   time.Duration

	// instant caches synthesized canned utterances by text.
	instant sync.Map // text -> audio path

	wg sync.WaitGroup
}

// NewConversation wires the turn protocol to its collaborators.
func NewConversation(calls *CallStore, analyzer Analyzer, tts Synthesizer, sheet LeadSheet, finalizer *Finalizer, metrics *Metrics, timeout time.Duration) *Conversation {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Conversation{
		calls:     calls,
		analyzer:  analyzer,
		tts:       tts,
		sheet:     sheet,
		finalizer: finalizer,
		metrics:   metrics,
		timeout:   timeout,
	}
}

// HandleVoice classifies one webhook turn and returns the reply to speak.
// Speech turns spawn the response generator and return without waiting on it.
func (c *Conversation) HandleVoice(ctx context.Context, callSID, speech string) Reply {
	speech = cleanText(speech)
	rec := c.calls.Get(callSID)

	rec.Lock()
	if rec.closed() {
		rec.Unlock()
		return Reply{Case: TurnSilence, Text: goodbyeText, HangUp: true}
	}
	tc := classifyTurn(rec, speech)
	c.metrics.turn(tc)

	switch tc {
	case TurnSilence:
		if rec.SilenceCount >= silenceHangUp {
			rec.Unlock()
			log.Printf("[Voice] %s: silence #%d, ending call", callSID, silenceHangUp)
			c.finalizer.Finalize(ctx, callSID, rec, "silence")
			return Reply{Case: tc, Text: goodbyeText, HangUp: true}
		}
	case TurnInterrupted, TurnUserTurn:
		rec.SilenceCount = 0
		rec.IsPlayingAudio = false
	}
	// A finished answer in the slot replaces the placeholder on any turn.
	pendingAudio, pendingText := rec.PendingAudio, rec.PendingText
	rec.PendingAudio, rec.PendingText = "", ""
	silenceCount := rec.SilenceCount
	fields := rec.Fields
	rec.Unlock()

	if tc == TurnInterrupted || tc == TurnUserTurn {
		log.Printf("[Voice] %s: %s %q", callSID, tc, speech)
		c.spawn(callSID, rec, speech)
	} else {
		log.Printf("[Voice] %s: %s (silence=%d)", callSID, tc, silenceCount)
	}

	reply := Reply{Case: tc, Text: pendingText, Audio: pendingAudio}
	if pendingText == "" && pendingAudio == "" {
		reply.Text = selectInstant(tc, silenceCount, fields)
		reply.Audio = c.instantAudio(ctx, reply.Text)
	}

	rec.Lock()
	if !rec.closed() {
		rec.CurrentAudio = reply.Audio
		rec.CurrentText = reply.Text
		rec.IsPlayingAudio = true
	}
	rec.Unlock()
	return reply
}

// MarkListening records that the current utterance finished playing.
func (c *Conversation) MarkListening(callSID string) {
	rec, ok := c.calls.Lookup(callSID)
	if !ok {
		return
	}
	rec.Lock()
	rec.IsPlayingAudio = false
	rec.Unlock()
}

// CurrentAudio returns the audio file currently served for callSID.
func (c *Conversation) CurrentAudio(callSID string) string {
	rec, ok := c.calls.Lookup(callSID)
	if !ok {
		return ""
	}
	rec.Lock()
	defer rec.Unlock()
	return rec.CurrentAudio
}

// EndCall finalizes a call reported completed by the platform.
func (c *Conversation) EndCall(ctx context.Context, callSID string) bool {
	rec, ok := c.calls.Lookup(callSID)
	if !ok {
		log.Printf("[Voice] %s: completed but never seen, nothing to finalize", callSID)
		return false
	}
	return c.finalizer.Finalize(ctx, callSID, rec, "status")
}

// Wait blocks until every spawned generator has returned.
func (c *Conversation) Wait() {
	c.wg.Wait()
}

// instantAudio synthesizes a canned utterance once and reuses the file.
// An empty result means the caller should fall back to <Say>.
func (c *Conversation) instantAudio(ctx context.Context, text string) string {
	if v, ok := c.instant.Load(text); ok {
		path := v.(string)
		if _, err := os.Stat(path); err == nil {
			return path
		}
		log.Printf("[TTS] Cached audio %s is gone, synthesizing again", path)
		c.instant.CompareAndDelete(text, path)
	}
	path, err := c.synthesize(ctx, text)
	if err != nil {
		return ""
	}
	c.instant.Store(text, path)
	return path
}

func (c *Conversation) synthesize(ctx context.Context, text string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()
	path, err := c.tts.Synthesize(ctx, text)
	if err != nil {
		log.Printf("[TTS] Synthesis failed, falling back to <Say>: %v", err)
		c.metrics.failure("tts")
		return "", err
	}
	return path, nil
}

func (c *Conversation) spawn(callSID string, rec *CallRecord, utterance string) {
	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		ctx, cancel := context.WithTimeout(context.Background(), c.timeout)
		defer cancel()
		c.generate(ctx, callSID, rec, utterance)
	}()
}

// generate analyzes the utterance, updates the record and leaves the real
// answer in the pending slot for the next turn to surface.
func (c *Conversation) generate(ctx context.Context, callSID string, rec *CallRecord, utterance string) {
	rec.Lock()
	known := rec.Fields
	rec.Unlock()

	analysis, err := c.analyzer.Analyze(ctx, utterance, known)
	failed := err != nil
	if failed {
		log.Printf("[OpenAI] %s: analysis failed: %v", callSID, err)
		c.metrics.failure("openai")
		analysis = fallbackAnalysis()
	}

	rec.Lock()
	if rec.closed() {
		rec.Unlock()
		log.Printf("[Voice] %s: call finalized, dropping late analysis", callSID)
		return
	}
	rec.Fields.Merge(analysis.Fields)
	if !failed {
		rec.Intent = analysis.Intent
	}
	rec.History = append(rec.History, Exchange{Utterance: utterance, Analysis: analysis, At: time.Now().UTC()})
	fields := rec.Fields
	lookup := fields.CanLookup() && rec.RecognizedCustomer == nil
	rec.Unlock()

	if lookup {
		c.lookupCustomer(ctx, callSID, rec, fields)
	}

	text := replyText(analysis)
	path, _ := c.synthesize(ctx, text)

	rec.Lock()
	if !rec.closed() {
		rec.PendingAudio = path
		rec.PendingText = text
	}
	rec.Unlock()
}

func (c *Conversation) lookupCustomer(ctx context.Context, callSID string, rec *CallRecord, fields LeadFields) {
	match, err := c.sheet.FindCustomer(ctx, fields.LastName, fields.FirstName, normalizePhone(fields.Phone))
	if err != nil {
		log.Printf("[Sheets] %s: customer lookup failed: %v", callSID, err)
		c.metrics.failure("sheets")
		return
	}
	if match == nil {
		return
	}
	log.Printf("[Sheets] %s: recognized customer at row %d", callSID, match.RowIndex)
	rec.Lock()
	if !rec.closed() && rec.RecognizedCustomer == nil {
		rec.RecognizedCustomer = match
	}
	rec.Unlock()
}

// replyText picks what to say back for an analysis. Every analyzed turn
// leaves an answer, even when the model filled none of the reply fields.
func replyText(a *Analysis) string {
	for _, text := range []string{a.FinalReply, a.NextQuestion, a.Reformulation} {
		if text = strings.TrimSpace(text); text != "" {
			return text
		}
	}
	return apologyText
}
