package main

import "fmt"

// TurnCase is the classification of one speech-gather cycle.
type TurnCase int

const (
	TurnNewCall TurnCase = iota
	TurnSilence
	TurnInterrupted
	TurnUserTurn
)

func (t TurnCase) String() string {
	switch t {
	case TurnNewCall:
		return "new_call"
	case TurnSilence:
		return "silence"
	case TurnInterrupted:
		return "interrupted"
	case TurnUserTurn:
		return "user_turn"
	default:
		return fmt.Sprintf("turn(%d)", int(t))
	}
}

// Silence counts at which the line is checked, a call-back is requested and
// the call is ended.
const (
	silenceCheckIn  = 1
	silenceCallBack = 2
	silenceHangUp   = 3
)

// Fixed utterances. The business operates in Québec French.
const (
	greetingText   = "Bonjour, ici Emily, assistante virtuelle des Constructions P Gendreau. Merci d'avoir appelé aujourd'hui. Comment puis-je vous aider?"
	checkInText    = "Êtes-vous toujours là ? Je vous écoute."
	callBackText   = "Vu qu'il semble que vous ne soyez plus là ou que la ligne soit mauvaise, veuillez s'il vous plaît nous rappeler à un meilleur moment pour vous."
	thinkingText   = "Parfait, je regarde ça pour vous..."
	thinkingByName = "Très bien %s, je regarde ça pour vous..."
	ackText        = "Hum, parfait, bien reçu..."
	goodbyeText    = "Merci pour votre appel. Au revoir."
	apologyText    = "Je suis désolée, une erreur est survenue."
)

// classifyTurn selects exactly one turn case for the incoming speech. Only the
// first turn of a call can be a new call: every turn marks the record greeted,
// and the silence case increments its silence counter. Caller holds the lock.
func classifyTurn(rec *CallRecord, speech string) TurnCase {
	first := !rec.Greeted
	rec.Greeted = true
	switch {
	case first && len(rec.History) == 0 && rec.SilenceCount == 0 && speech == "":
		return TurnNewCall
	case speech == "":
		rec.SilenceCount++
		return TurnSilence
	case rec.IsPlayingAudio:
		return TurnInterrupted
	default:
		return TurnUserTurn
	}
}

// selectInstant returns the placeholder utterance spoken right away for a turn.
func selectInstant(tc TurnCase, silenceCount int, fields LeadFields) string {
	switch tc {
	case TurnNewCall:
		return greetingText
	case TurnSilence:
		switch silenceCount {
		case silenceCheckIn:
			return checkInText
		case silenceCallBack:
			return callBackText
		}
		return ackText
	case TurnInterrupted, TurnUserTurn:
		if name := callerName(fields); name != "" {
			return fmt.Sprintf(thinkingByName, name)
		}
		return thinkingText
	}
	return ackText
}

func callerName(fields LeadFields) string {
	if fields.LastName != "" {
		return fields.LastName
	}
	return fields.FirstName
}
