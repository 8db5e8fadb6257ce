package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"
)

type fakeAnalyzer struct {
	mu             sync.Mutex
	analysis       *Analysis
	analyzeErr     error
	summary        *CallSummary
	summarizeErr   error
	utterances     []string
	summarizeCalls int

	// release, when set, holds Analyze until it is closed.
	release chan struct{}
}

func (a *fakeAnalyzer) Analyze(ctx context.Context, utterance string, known LeadFields) (*Analysis, error) {
	if a.release != nil {
		<-a.release
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	a.utterances = append(a.utterances, utterance)
	if a.analyzeErr != nil {
		return nil, a.analyzeErr
	}
	if a.analysis == nil {
		return &Analysis{Intent: "information", FinalReply: "D'accord."}, nil
	}
	out := *a.analysis
	return &out, nil
}

func (a *fakeAnalyzer) Summarize(ctx context.Context, fields LeadFields, intent string) (*CallSummary, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.summarizeCalls++
	if a.summarizeErr != nil {
		return nil, a.summarizeErr
	}
	if a.summary == nil {
		return &CallSummary{Summary: "Appel traité.", MainIntent: "Soumission", Actions: "Rappeler."}, nil
	}
	out := *a.summary
	return &out, nil
}

func (a *fakeAnalyzer) summaries() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.summarizeCalls
}

// fakeSynth writes a small real WAV per call so /voice-file can serve it.
type fakeSynth struct {
	mu    sync.Mutex
	dir   string
	texts []string
	err   error
}

func (s *fakeSynth) Synthesize(ctx context.Context, text string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.texts = append(s.texts, text)
	if s.err != nil {
		return "", s.err
	}
	path := filepath.Join(s.dir, fmt.Sprintf("%d.wav", len(s.texts)))
	if err := os.WriteFile(path, silenceWAV(10*time.Millisecond), 0o644); err != nil {
		return "", err
	}
	return path, nil
}

func (s *fakeSynth) count(text string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, t := range s.texts {
		if t == text {
			n++
		}
	}
	return n
}

type fakeSheet struct {
	mu        sync.Mutex
	match     *CustomerMatch
	findErr   error
	appendErr error
	finds     int
	rows      []LeadRow
}

func (s *fakeSheet) FindCustomer(ctx context.Context, lastName, firstName, phone string) (*CustomerMatch, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.finds++
	return s.match, s.findErr
}

func (s *fakeSheet) AppendLead(ctx context.Context, row LeadRow) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.appendErr != nil {
		return "", s.appendErr
	}
	s.rows = append(s.rows, row)
	return fmt.Sprintf("Prospect!A%d:K%d", len(s.rows)+1, len(s.rows)+1), nil
}

func (s *fakeSheet) lookups() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.finds
}

func (s *fakeSheet) appended() []LeadRow {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]LeadRow(nil), s.rows...)
}

type fakeCallLog struct {
	mu      sync.Mutex
	entries []CallLogEntry
	err     error
}

func (l *fakeCallLog) AppendCallLog(entry CallLogEntry) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.err != nil {
		return l.err
	}
	l.entries = append(l.entries, entry)
	return nil
}

func (l *fakeCallLog) CallLogsForDate(day string) ([]CallLogEntry, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	var out []CallLogEntry
	for _, e := range l.entries {
		if e.Date == day {
			out = append(out, e)
		}
	}
	return out, l.err
}

func (l *fakeCallLog) all() []CallLogEntry {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]CallLogEntry(nil), l.entries...)
}

type fakeNotifier struct {
	mu      sync.Mutex
	entries []CallLogEntry
}

func (n *fakeNotifier) NotifyLead(entry CallLogEntry) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.entries = append(n.entries, entry)
	return nil
}

type harness struct {
	calls    *CallStore
	analyzer *fakeAnalyzer
	tts      *fakeSynth
	sheet    *fakeSheet
	callLog  *fakeCallLog
	notifier *fakeNotifier
	metrics  *Metrics
	fin      *Finalizer
	conv     *Conversation
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	h := &harness{
		calls:    NewCallStore(),
		analyzer: &fakeAnalyzer{},
		tts:      &fakeSynth{dir: t.TempDir()},
		sheet:    &fakeSheet{},
		callLog:  &fakeCallLog{},
		notifier: &fakeNotifier{},
		metrics:  NewMetrics(),
	}
	h.fin = NewFinalizer(h.analyzer, h.sheet, h.callLog, h.notifier, h.metrics, time.Second)
	h.conv = NewConversation(h.calls, h.analyzer, h.tts, h.sheet, h.fin, h.metrics, time.Second)
	t.Cleanup(h.conv.Wait)
	return h
}

// record returns a copy of the parts of a call record tests assert on.
func (h *harness) record(callSID string) CallRecord {
	rec, ok := h.calls.Lookup(callSID)
	if !ok {
		return CallRecord{}
	}
	rec.Lock()
	defer rec.Unlock()
	return CallRecord{
		Greeted:               rec.Greeted,
		SilenceCount:          rec.SilenceCount,
		IsPlayingAudio:        rec.IsPlayingAudio,
		CurrentAudio:          rec.CurrentAudio,
		CurrentText:           rec.CurrentText,
		PendingAudio:          rec.PendingAudio,
		PendingText:           rec.PendingText,
		Fields:                rec.Fields,
		History:               append([]Exchange(nil), rec.History...),
		Intent:                rec.Intent,
		RecognizedCustomer:    rec.RecognizedCustomer,
		StartedAt:             rec.StartedAt,
		FinalSummaryGenerated: rec.FinalSummaryGenerated,
	}
}
