package main

import (
	"net/url"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/twilio/twilio-go/twiml"
)

// Form fields posted by Twilio voice webhooks.
const (
	formCallSID      = "CallSid"
	formSpeechResult = "SpeechResult"
	formCallStatus   = "CallStatus"
)

const callStatusCompleted = "completed"

// GatherSettings configures the speech <Gather> verbs.
type GatherSettings struct {
	Language string
	Timeout  int
}

// TwiML renders the voice documents returned to Twilio.
type TwiML struct {
	baseURL string
	gather  GatherSettings
}

// NewTwiML creates a renderer. baseURL is the public origin Twilio reaches us at.
func NewTwiML(baseURL string, gather GatherSettings) *TwiML {
	if gather.Language == "" {
		gather.Language = "fr-CA"
	}
	if gather.Timeout <= 0 {
		gather.Timeout = 8
	}
	return &TwiML{baseURL: strings.TrimRight(baseURL, "/"), gather: gather}
}

// Reply plays (or says) the turn's utterance inside a barge-in gather so
// speech during playback comes back as an interruption, then hands over to
// /listen once playback is done.
func (t *TwiML) Reply(callSID string, reply Reply) (string, error) {
	if reply.HangUp {
		return twiml.Voice([]twiml.Element{
			t.say(reply.Text),
			&twiml.VoiceHangup{},
		})
	}

	var utterance twiml.Element
	if reply.Audio != "" {
		utterance = &twiml.VoicePlay{Url: t.VoiceFileURL(callSID, reply.Audio)}
	} else {
		utterance = t.say(reply.Text)
	}

	return twiml.Voice([]twiml.Element{
		&twiml.VoiceGather{
			Input:         "speech",
			Language:      t.gather.Language,
			Timeout:       "1",
			SpeechTimeout: "auto",
			BargeIn:       "true",
			Action:        "/voice",
			Method:        "POST",
			InnerElements: []twiml.Element{utterance},
		},
		&twiml.VoiceRedirect{Url: "/listen", Method: "POST"},
	})
}

// Listen waits for the caller once playback finished. An empty result still
// posts to /voice so silence is counted.
func (t *TwiML) Listen() (string, error) {
	return twiml.Voice([]twiml.Element{
		&twiml.VoiceGather{
			Input:               "speech",
			Language:            t.gather.Language,
			Timeout:             strconv.Itoa(t.gather.Timeout),
			SpeechTimeout:       "auto",
			BargeIn:             "true",
			ActionOnEmptyResult: "true",
			Action:              "/voice",
			Method:              "POST",
		},
	})
}

// Empty is a document with no verbs.
func (t *TwiML) Empty() (string, error) {
	return twiml.Voice(nil)
}

// VoiceFileURL is the public URL of the audio for callSID. The file name is
// appended so each utterance has a distinct URL and Twilio never replays a
// cached one.
func (t *TwiML) VoiceFileURL(callSID, audio string) string {
	q := url.Values{}
	q.Set("call_sid", callSID)
	if audio != "" {
		q.Set("v", strings.TrimSuffix(filepath.Base(audio), filepath.Ext(audio)))
	}
	return t.baseURL + "/voice-file?" + q.Encode()
}

func (t *TwiML) say(text string) *twiml.VoiceSay {
	return &twiml.VoiceSay{Message: text, Language: t.gather.Language}
}
