package main

import (
	"context"
	"log"
	"time"
)

const (
	defaultCategory     = "Information"
	customerTypeRegular = "Régulier"
	customerTypeNewLead = "Nouveau"
)

// LeadNotifier is told about every finalized call. Optional.
type LeadNotifier interface {
	NotifyLead(entry CallLogEntry) error
}

// Finalizer commits a call's summary exactly once.
type Finalizer struct {
	analyzer Analyzer
	sheet    LeadSheet
	calls    CallLog
	notifier LeadNotifier
	metrics  *Metrics
	timeout  time.Duration
	now      func() time.Time
}

// NewFinalizer creates a finalizer. notifier may be nil.
func NewFinalizer(analyzer Analyzer, sheet LeadSheet, calls CallLog, notifier LeadNotifier, metrics *Metrics, timeout time.Duration) *Finalizer {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Finalizer{
		analyzer: analyzer,
		sheet:    sheet,
		calls:    calls,
		notifier: notifier,
		metrics:  metrics,
		timeout:  timeout,
		now:      time.Now,
	}
}

// Finalize summarizes the call, appends the spreadsheet row and the call log
// entry, and marks the record. It returns false without touching any
// collaborator when the record was already claimed.
func (f *Finalizer) Finalize(ctx context.Context, callSID string, rec *CallRecord, trigger string) bool {
	rec.Lock()
	if rec.closed() {
		rec.Unlock()
		return false
	}
	rec.finalizing = true
	snap := rec.snapshot()
	rec.Unlock()

	// The platform may drop the request once it has its TwiML.
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), f.timeout)
	defer cancel()

	summary, err := f.analyzer.Summarize(ctx, snap.Fields, snap.Intent)
	if err != nil {
		log.Printf("[Finalize] %s: summary failed: %v", callSID, err)
		f.metrics.failure("openai")
		summary = fallbackSummary(snap.Intent)
	}

	category := summary.MainIntent
	if category == "" {
		category = defaultCategory
	}
	customerType := customerTypeNewLead
	if snap.Recognized {
		customerType = customerTypeRegular
	}

	updated, err := f.sheet.AppendLead(ctx, LeadRow{
		CalledAt:     snap.StartedAt,
		Fields:       snap.Fields,
		Category:     category,
		CustomerType: customerType,
	})
	if err != nil {
		log.Printf("[Finalize] %s: sheet append failed: %v", callSID, err)
		f.metrics.failure("sheets")
	} else {
		log.Printf("[Finalize] %s: sheet row written (%s)", callSID, updated)
	}

	entry := CallLogEntry{
		CallSID:       callSID,
		Date:          logDate(f.now()),
		CallStartedAt: snap.StartedAt,
		Fields:        snap.Fields,
		Intent:        snap.Intent,
		Summary:       summary.Summary,
		MainIntent:    summary.MainIntent,
		Actions:       summary.Actions,
		Category:      category,
		CustomerType:  customerType,
	}
	if err := f.calls.AppendCallLog(entry); err != nil {
		log.Printf("[Finalize] %s: call log append failed: %v", callSID, err)
		f.metrics.failure("calllog")
	}

	rec.Lock()
	rec.FinalSummaryGenerated = true
	rec.Unlock()
	f.metrics.finalized(trigger)
	log.Printf("[Finalize] %s: finalized by %s (%s, %s, %d turns)", callSID, trigger, category, customerType, snap.Turns)

	if f.notifier != nil {
		if err := f.notifier.NotifyLead(entry); err != nil {
			log.Printf("[Finalize] %s: notification failed: %v", callSID, err)
			f.metrics.failure("telegram")
		}
	}
	return true
}
