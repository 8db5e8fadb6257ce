package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// Analysis is the structured result of analyzing one caller utterance.
type Analysis struct {
	Intent        string     `json:"intent"`
	Fields        LeadFields `json:"extracted_info"`
	MissingInfo   []string   `json:"missing_info"`
	NextQuestion  string     `json:"next_question"`
	Reformulation string     `json:"reformulation"`
	FinalReply    string     `json:"final_reply"`
}

// UnmarshalJSON accepts numbers and nulls for any field; models often send
// the budget as a number.
func (f *LeadFields) UnmarshalJSON(data []byte) error {
	var raw map[string]any
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	get := func(key string) string {
		switch v := raw[key].(type) {
		case nil:
			return ""
		case string:
			return v
		case float64:
			return strconv.FormatFloat(v, 'f', -1, 64)
		default:
			return fmt.Sprint(v)
		}
	}
	*f = LeadFields{
		LastName:      get("nom"),
		FirstName:     get("prenom"),
		Address:       get("adresse"),
		City:          get("ville"),
		PostalCode:    get("code_postal"),
		Phone:         get("telephone"),
		ReasonForCall: get("raison_appel"),
		Budget:        get("budget"),
	}
	return nil
}

// CallSummary is the end-of-call summary written to the sheet and the log.
type CallSummary struct {
	Summary    string `json:"resume_conversationnel"`
	MainIntent string `json:"intent_principale"`
	Actions    string `json:"actions_a_prendre"`
}

// Analyzer is the language-model collaborator.
type Analyzer interface {
	Analyze(ctx context.Context, utterance string, known LeadFields) (*Analysis, error)
	Summarize(ctx context.Context, fields LeadFields, intent string) (*CallSummary, error)
}

var errMalformedOutput = errors.New("malformed model output")

// fallbackAnalysis is used whenever analysis fails: apology, no fields.
func fallbackAnalysis() *Analysis {
	return &Analysis{FinalReply: apologyText}
}

// fallbackSummary is used whenever summarization fails.
func fallbackSummary(intent string) *CallSummary {
	if intent == "" {
		intent = "inconnu"
	}
	return &CallSummary{
		Summary:    "Résumé indisponible.",
		MainIntent: intent,
		Actions:    "Vérifier manuellement.",
	}
}

const analysisSystemPrompt = "Tu es Emily, agente virtuelle professionnelle pour Construction P. Gendreau. Réponds STRICTEMENT en JSON brut, sans texte additionnel."

func buildAnalysisPrompt(utterance string, known LeadFields) string {
	state, _ := json.Marshal(known)
	return fmt.Sprintf(`Tu es Emily, agente virtuelle pour Construction P Gendreau.
Ton rôle : comprendre le message, répondre avec empathie, extraire les informations importantes, déterminer ce qui manque et poser la prochaine question logique.

Informations déjà extraites : %s
Message de l'utilisateur : "%s"

Retourne STRICTEMENT un JSON valide, sans balises de code ni texte avant ou après, contenant :
- "intent" : intention principale
- "extracted_info" : objet avec nom, prenom, adresse, ville, code_postal, telephone, raison_appel, budget
- "missing_info" : liste des infos manquantes parmi ["nom", "prenom", "adresse", "ville", "code_postal", "telephone", "raison_appel", "budget"]
- "next_question" : la prochaine question logique
- "reformulation" : reformulation courte de la demande
- "final_reply" : la réponse complète d'Emily (empathie + question)`, state, utterance)
}

const summarySystemPrompt = "Tu es Emily. Réponds STRICTEMENT en JSON brut."

func buildSummaryPrompt(fields LeadFields, intent string) string {
	state, _ := json.Marshal(fields)
	return fmt.Sprintf(`Tu es Emily, agente virtuelle.
Voici les informations extraites : %s
Intention principale : %s

Génère STRICTEMENT un JSON avec :
- "resume_conversationnel"
- "intent_principale"
- "actions_a_prendre"`, state, intent)
}

// decodeModelJSON parses a JSON object out of model output, tolerating
// surrounding code fences.
func decodeModelJSON(content string, out any) error {
	content = strings.TrimSpace(content)
	content = strings.TrimPrefix(content, "```json")
	content = strings.TrimPrefix(content, "```")
	content = strings.TrimSuffix(content, "```")
	content = strings.TrimSpace(content)
	if content == "" {
		return fmt.Errorf("%w: empty content", errMalformedOutput)
	}
	if err := json.Unmarshal([]byte(content), out); err != nil {
		return fmt.Errorf("%w: %v", errMalformedOutput, err)
	}
	return nil
}
