package main

import (
	"bytes"
	"context"
	"fmt"
	"html/template"
	"log"
	"sort"
	"time"

	"emily/tools"
)

// Mailer delivers one HTML email.
type Mailer interface {
	SendHTML(ctx context.Context, to []string, subject, html string) error
}

// resendMailer sends through tools.SendEmail.
type resendMailer struct{}

func (resendMailer) SendHTML(ctx context.Context, to []string, subject, html string) error {
	id, err := tools.SendEmail(ctx, tools.Email{To: to, Subject: subject, HTML: html})
	if err != nil {
		return err
	}
	log.Printf("[Digest] Email sent (id=%s)", id)
	return nil
}

// Digest emails the day's finalized calls to the business owner.
type Digest struct {
	calls   CallLog
	mailer  Mailer
	to      []string
	metrics *Metrics
	now     func() time.Time
}

// NewDigest creates a digest sender. to may be empty, in which case Send fails.
func NewDigest(calls CallLog, mailer Mailer, to []string, metrics *Metrics) *Digest {
	return &Digest{calls: calls, mailer: mailer, to: to, metrics: metrics, now: time.Now}
}

type intentCount struct {
	Intent string
	Count  int
}

type digestView struct {
	Date    string
	Count   int
	Intents []intentCount
	Calls   []CallLogEntry
}

var digestTemplate = template.Must(template.New("digest").Parse(`<h2>Récapitulatif des appels - {{.Date}}</h2>
<p>Nombre d'appels : {{.Count}}</p>
<p>Intentions principales :<br>
{{- range .Intents}}
{{.Intent}} : {{.Count}}<br>
{{- end}}
</p>
<table border="1" cellpadding="4">
<tr><th>CallSid</th><th>Client</th><th>Téléphone</th><th>Intention</th><th>Type</th><th>Résumé</th><th>Actions</th></tr>
{{- range .Calls}}
<tr><td>{{.CallSID}}</td><td>{{.Fields.LastName}} {{.Fields.FirstName}}</td><td>{{.Fields.Phone}}</td><td>{{.MainIntent}}</td><td>{{.CustomerType}}</td><td>{{.Summary}}</td><td>{{.Actions}}</td></tr>
{{- end}}
</table>
`))

// renderDigest builds the email body for the calls of one day.
func renderDigest(day string, entries []CallLogEntry) (string, error) {
	tally := make(map[string]int)
	for _, e := range entries {
		intent := e.MainIntent
		if intent == "" {
			intent = "inconnu"
		}
		tally[intent]++
	}
	intents := make([]intentCount, 0, len(tally))
	for k, v := range tally {
		intents = append(intents, intentCount{Intent: k, Count: v})
	}
	sort.Slice(intents, func(i, j int) bool {
		if intents[i].Count != intents[j].Count {
			return intents[i].Count > intents[j].Count
		}
		return intents[i].Intent < intents[j].Intent
	})

	var buf bytes.Buffer
	err := digestTemplate.Execute(&buf, digestView{
		Date:    day,
		Count:   len(entries),
		Intents: intents,
		Calls:   entries,
	})
	if err != nil {
		return "", fmt.Errorf("render digest: %w", err)
	}
	return buf.String(), nil
}

// Send emails the digest for day (YYYY-MM-DD, empty for today) and returns
// the number of calls it covered.
func (d *Digest) Send(ctx context.Context, day string) (int, error) {
	if day == "" {
		day = logDate(d.now())
	}
	if len(d.to) == 0 {
		return 0, fmt.Errorf("digest recipient: %w", errNotConfigured)
	}

	entries, err := d.calls.CallLogsForDate(day)
	if err != nil {
		d.metrics.failure("calllog")
		return 0, fmt.Errorf("load call logs: %w", err)
	}

	html, err := renderDigest(day, entries)
	if err != nil {
		return 0, err
	}

	start := time.Now()
	err = d.mailer.SendHTML(ctx, d.to, "Récapitulatif appels "+day, html)
	d.metrics.observeLatency("email", start)
	if err != nil {
		d.metrics.failure("email")
		return 0, fmt.Errorf("send digest: %w", err)
	}
	log.Printf("[Digest] Sent digest for %s (%d calls)", day, len(entries))
	return len(entries), nil
}
