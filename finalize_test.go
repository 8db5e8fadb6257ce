package main

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFinalizeWritesRowAndLog(t *testing.T) {
	h := newHarness(t)
	started := time.Date(2026, 6, 2, 13, 0, 0, 0, time.UTC)
	h.fin.now = func() time.Time { return started.Add(5 * time.Minute) }

	rec := h.calls.Get("CA1")
	rec.StartedAt = started
	rec.Fields = LeadFields{LastName: "Roy", FirstName: "Luc", Phone: "418-555-0000"}
	rec.Intent = "soumission"

	require.True(t, h.fin.Finalize(context.Background(), "CA1", rec, "status"))

	rows := h.sheet.appended()
	require.Len(t, rows, 1)
	assert.Equal(t, "Soumission", rows[0].Category)
	assert.Equal(t, customerTypeNewLead, rows[0].CustomerType)
	assert.Equal(t, started, rows[0].CalledAt)
	assert.Equal(t, "Roy", rows[0].Fields.LastName)

	entries := h.callLog.all()
	require.Len(t, entries, 1)
	e := entries[0]
	assert.Equal(t, "CA1", e.CallSID)
	assert.Equal(t, logDate(started.Add(5*time.Minute)), e.Date)
	assert.Equal(t, "Appel traité.", e.Summary)
	assert.Equal(t, "Rappeler.", e.Actions)
	assert.Equal(t, "soumission", e.Intent)

	assert.True(t, h.record("CA1").FinalSummaryGenerated)
	require.Len(t, h.notifier.entries, 1)
	assert.Equal(t, "CA1", h.notifier.entries[0].CallSID)
}

func TestFinalizeIsAtMostOnce(t *testing.T) {
	h := newHarness(t)
	rec := h.calls.Get("CA1")

	var wg sync.WaitGroup
	results := make(chan bool, 8)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			results <- h.fin.Finalize(context.Background(), "CA1", rec, "status")
		}()
	}
	wg.Wait()
	close(results)

	won := 0
	for ok := range results {
		if ok {
			won++
		}
	}
	assert.Equal(t, 1, won)
	assert.Equal(t, 1, h.analyzer.summaries())
	assert.Len(t, h.sheet.appended(), 1)
	assert.Len(t, h.callLog.all(), 1)
}

func TestFinalizeSummaryFallback(t *testing.T) {
	h := newHarness(t)
	h.analyzer.summarizeErr = errors.New("timeout")

	rec := h.calls.Get("CA1")
	rec.Intent = "urgence"
	require.True(t, h.fin.Finalize(context.Background(), "CA1", rec, "silence"))

	e := h.callLog.all()[0]
	assert.Equal(t, "Résumé indisponible.", e.Summary)
	assert.Equal(t, "urgence", e.MainIntent)
	assert.Equal(t, "urgence", e.Category)
	assert.Equal(t, "Vérifier manuellement.", e.Actions)
}

func TestFinalizeDefaultCategory(t *testing.T) {
	h := newHarness(t)
	h.analyzer.summary = &CallSummary{Summary: "Rien."}

	rec := h.calls.Get("CA1")
	rec.RecognizedCustomer = &CustomerMatch{RowIndex: 3}
	require.True(t, h.fin.Finalize(context.Background(), "CA1", rec, "status"))

	row := h.sheet.appended()[0]
	assert.Equal(t, defaultCategory, row.Category)
	assert.Equal(t, customerTypeRegular, row.CustomerType)
}

func TestFinalizeSurvivesCollaboratorFailures(t *testing.T) {
	h := newHarness(t)
	h.sheet.appendErr = errors.New("403")
	h.callLog.err = errors.New("disk full")

	rec := h.calls.Get("CA1")
	assert.True(t, h.fin.Finalize(context.Background(), "CA1", rec, "status"))
	assert.True(t, h.record("CA1").FinalSummaryGenerated)

	// Still terminal: nothing is retried.
	h.sheet.appendErr = nil
	assert.False(t, h.fin.Finalize(context.Background(), "CA1", rec, "status"))
	assert.Empty(t, h.sheet.appended())
}

func TestFinalizeIgnoresCanceledRequest(t *testing.T) {
	h := newHarness(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	rec := h.calls.Get("CA1")
	require.True(t, h.fin.Finalize(ctx, "CA1", rec, "status"))
	assert.Len(t, h.sheet.appended(), 1)
}
