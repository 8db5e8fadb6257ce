package main

import (
	"sync"
	"time"
)

// LeadFields holds the lead information extracted during a call.
// JSON keys match the ones the language model is prompted with.
type LeadFields struct {
	LastName      string `json:"nom"`
	FirstName     string `json:"prenom"`
	Address       string `json:"adresse"`
	City          string `json:"ville"`
	PostalCode    string `json:"code_postal"`
	Phone         string `json:"telephone"`
	ReasonForCall string `json:"raison_appel"`
	Budget        string `json:"budget"`
}

// Merge copies every non-empty field of other into f. Existing values are
// never cleared by an empty or missing value.
func (f *LeadFields) Merge(other LeadFields) {
	set := func(dst *string, v string) {
		if v = cleanText(v); v != "" {
			*dst = v
		}
	}
	set(&f.LastName, other.LastName)
	set(&f.FirstName, other.FirstName)
	set(&f.Address, other.Address)
	set(&f.City, other.City)
	set(&f.PostalCode, other.PostalCode)
	set(&f.Phone, other.Phone)
	set(&f.ReasonForCall, other.ReasonForCall)
	set(&f.Budget, other.Budget)
}

// CanLookup reports whether enough is known to search for an existing customer.
func (f LeadFields) CanLookup() bool {
	return f.LastName != "" && f.FirstName != "" && isCanonicalPhone(normalizePhone(f.Phone))
}

// Exchange is one entry of the conversation history.
type Exchange struct {
	Utterance string    `json:"utterance"`
	Analysis  *Analysis `json:"analysis"`
	At        time.Time `json:"at"`
}

// CallRecord is the per-call conversational memory.
type CallRecord struct {
	mu sync.Mutex

	Greeted               bool // first turn handled; later empty turns are silences
	SilenceCount          int
	IsPlayingAudio        bool
	CurrentAudio          string // path of the audio served by /voice-file
	CurrentText           string
	PendingAudio          string // finished "true" reply not yet surfaced
	PendingText           string
	Fields                LeadFields
	History               []Exchange
	Intent                string
	RecognizedCustomer    *CustomerMatch
	StartedAt             time.Time
	FinalSummaryGenerated bool

	// finalizing is claimed by the first Finalize call and blocks later writes.
	finalizing bool
}

// Lock acquires the record's mutex.
func (r *CallRecord) Lock() { r.mu.Lock() }

// Unlock releases the record's mutex.
func (r *CallRecord) Unlock() { r.mu.Unlock() }

// closed reports whether finalization has started. Caller holds the lock.
func (r *CallRecord) closed() bool {
	return r.finalizing || r.FinalSummaryGenerated
}

// callSnapshot is a lock-free copy of the parts of a record read by the
// finalizer and the digest.
type callSnapshot struct {
	Fields     LeadFields
	Intent     string
	Recognized bool
	StartedAt  time.Time
	Turns      int
}

// snapshot copies the record. Caller holds the lock.
func (r *CallRecord) snapshot() callSnapshot {
	return callSnapshot{
		Fields:     r.Fields,
		Intent:     r.Intent,
		Recognized: r.RecognizedCustomer != nil,
		StartedAt:  r.StartedAt,
		Turns:      len(r.History),
	}
}

// CallStore maps call SIDs to their records. Records are created lazily and
// kept for the lifetime of the process.
type CallStore struct {
	calls sync.Map // callSID -> *CallRecord
	now   func() time.Time
}

// NewCallStore creates an empty store.
func NewCallStore() *CallStore {
	return &CallStore{now: time.Now}
}

// Get returns the record for callSID, creating it on first reference.
func (s *CallStore) Get(callSID string) *CallRecord {
	if v, ok := s.calls.Load(callSID); ok {
		return v.(*CallRecord)
	}
	v, _ := s.calls.LoadOrStore(callSID, &CallRecord{StartedAt: s.now().UTC()})
	return v.(*CallRecord)
}

// Lookup returns the record for callSID without creating it.
func (s *CallStore) Lookup(callSID string) (*CallRecord, bool) {
	v, ok := s.calls.Load(callSID)
	if !ok {
		return nil, false
	}
	return v.(*CallRecord), true
}

// Range calls fn for every known call until fn returns false.
func (s *CallStore) Range(fn func(callSID string, rec *CallRecord) bool) {
	s.calls.Range(func(k, v any) bool {
		return fn(k.(string), v.(*CallRecord))
	})
}

// Len returns the number of known calls.
func (s *CallStore) Len() int {
	n := 0
	s.Range(func(string, *CallRecord) bool {
		n++
		return true
	})
	return n
}

// Open returns the number of calls not yet finalized.
func (s *CallStore) Open() int {
	n := 0
	s.Range(func(_ string, rec *CallRecord) bool {
		rec.Lock()
		if !rec.closed() {
			n++
		}
		rec.Unlock()
		return true
	})
	return n
}
