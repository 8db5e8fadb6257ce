package main

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/robfig/cron/v3"
)

// DigestScheduler sends the daily digest on a cron schedule.
type DigestScheduler struct {
	cron    *cron.Cron
	digest  *Digest
	timeout time.Duration
}

// NewDigestScheduler parses spec (standard 5-field cron or a descriptor such
// as "@daily") in the local time zone.
func NewDigestScheduler(spec string, digest *Digest, timeout time.Duration) (*DigestScheduler, error) {
	s := &DigestScheduler{
		cron:    cron.New(cron.WithLocation(time.Local)),
		digest:  digest,
		timeout: timeout,
	}
	if _, err := s.cron.AddFunc(spec, s.run); err != nil {
		return nil, fmt.Errorf("invalid DIGEST_CRON %q: %w", spec, err)
	}
	return s, nil
}

// Start starts the scheduler
func (s *DigestScheduler) Start() {
	s.cron.Start()
	log.Printf("[Digest] Scheduler started, next run %s", s.Next().Format(time.RFC3339))
}

// Stop stops the scheduler and waits for a running digest to finish.
func (s *DigestScheduler) Stop() {
	<-s.cron.Stop().Done()
}

// Next returns the next scheduled run.
func (s *DigestScheduler) Next() time.Time {
	entries := s.cron.Entries()
	if len(entries) == 0 {
		return time.Time{}
	}
	return entries[0].Next
}

func (s *DigestScheduler) run() {
	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()
	if _, err := s.digest.Send(ctx, ""); err != nil {
		log.Printf("[Digest] Scheduled digest failed: %v", err)
	}
}
