package main

import (
	"fmt"
	"log"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

// Bot pushes new leads to the admin's Telegram chat.
type Bot struct {
	api     *tgbotapi.BotAPI
	adminID int64
}

// NewBot creates a new Telegram bot instance
func NewBot(token string, adminID int64) (*Bot, error) {
	if token == "" || adminID == 0 {
		return nil, errNotConfigured
	}
	api, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("failed to create bot API: %w", err)
	}

	log.Printf("Authorized as @%s", api.Self.UserName)

	return &Bot{api: api, adminID: adminID}, nil
}

// NotifyLead sends a short card for a finalized call.
func (b *Bot) NotifyLead(entry CallLogEntry) error {
	if err := b.sendMessage(b.adminID, formatLead(entry)); err != nil {
		return fmt.Errorf("telegram: %w", err)
	}
	return nil
}

// formatLead renders the Markdown card for a call.
func formatLead(entry CallLogEntry) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "📞 *Nouvel appel* (%s)\n", escapeMarkdown(entry.CustomerType))

	name := strings.TrimSpace(entry.Fields.LastName + " " + entry.Fields.FirstName)
	if name == "" {
		name = "Inconnu"
	}
	fmt.Fprintf(&sb, "Client : %s\n", escapeMarkdown(name))
	if entry.Fields.Phone != "" {
		fmt.Fprintf(&sb, "Téléphone : %s\n", escapeMarkdown(entry.Fields.Phone))
	}
	if entry.Fields.City != "" {
		fmt.Fprintf(&sb, "Ville : %s\n", escapeMarkdown(entry.Fields.City))
	}
	fmt.Fprintf(&sb, "Catégorie : %s\n", escapeMarkdown(entry.Category))
	if entry.Summary != "" {
		fmt.Fprintf(&sb, "\n%s\n", escapeMarkdown(entry.Summary))
	}
	if entry.Actions != "" {
		fmt.Fprintf(&sb, "\n*À faire :* %s\n", escapeMarkdown(entry.Actions))
	}
	fmt.Fprintf(&sb, "\n`%s`", entry.CallSID)
	return sb.String()
}

var markdownEscaper = strings.NewReplacer("_", "\\_", "*", "\\*", "`", "\\`", "[", "\\[")

// escapeMarkdown escapes caller-provided text for legacy Markdown mode.
func escapeMarkdown(s string) string {
	return markdownEscaper.Replace(s)
}

func (b *Bot) sendMessage(chatID int64, text string) error {
	if strings.TrimSpace(text) == "" {
		return nil
	}
	chunks := splitMessage(text, 4096)
	for _, chunk := range chunks {
		msg := tgbotapi.NewMessage(chatID, chunk)
		msg.ParseMode = "Markdown"
		_, err := b.api.Send(msg)
		if err != nil && strings.Contains(err.Error(), "can't parse entities") {
			msg.ParseMode = ""
			_, err = b.api.Send(msg)
		}
		if err != nil {
			return err
		}
	}
	return nil
}

// splitMessage splits text into chunks of at most maxLen bytes, breaking at
// newlines, then spaces.
func splitMessage(text string, maxLen int) []string {
	if len(text) <= maxLen {
		return []string{text}
	}
	var chunks []string
	for len(text) > 0 {
		if len(text) <= maxLen {
			chunks = append(chunks, text)
			break
		}
		chunk := text[:maxLen]
		if idx := strings.LastIndex(chunk, "\n"); idx > maxLen/4 {
			chunks = append(chunks, text[:idx])
			text = text[idx+1:]
		} else if idx := strings.LastIndex(chunk, " "); idx > maxLen/4 {
			chunks = append(chunks, text[:idx])
			text = text[idx+1:]
		} else {
			chunks = append(chunks, chunk)
			text = text[maxLen:]
		}
	}
	return chunks
}
