package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"os"
	"strconv"
	"strings"
	"syscall"
	"time"

	"emily/tools"
)

var lockFd *os.File

func getLockFile() string {
	if home := os.Getenv("HOME"); home != "" {
		return home + "/.emily.lock"
	}
	if tmpDir := os.Getenv("TMPDIR"); tmpDir != "" {
		return tmpDir + "/emily.lock"
	}
	return "/tmp/emily.lock"
}

// acquireLock uses flock to ensure only one instance of emily runs at a time.
func acquireLock() error {
	f, err := os.OpenFile(getLockFile(), os.O_CREATE|os.O_RDWR, 0644)
	if err != nil {
		return fmt.Errorf("cannot open lock file %s: %w", getLockFile(), err)
	}

	// Try non-blocking exclusive lock
	err = syscall.Flock(int(f.Fd()), syscall.LOCK_EX|syscall.LOCK_NB)
	if err != nil {
		data, _ := io.ReadAll(f)
		f.Close()
		pid, _ := strconv.Atoi(strings.TrimSpace(string(data)))
		if pid > 0 {
			return fmt.Errorf("another instance is already running (PID %d, lock file: %s)", pid, getLockFile())
		}
		return fmt.Errorf("another instance is already running (lock file: %s)", getLockFile())
	}

	// Lock acquired, write our PID
	_ = f.Truncate(0)
	_, _ = f.Seek(0, 0)
	_, _ = fmt.Fprintf(f, "%d\n", os.Getpid())
	_ = f.Sync()

	lockFd = f // keep open so the flock is held for the process lifetime
	return nil
}

// releaseLock releases the flock and removes the lock file.
func releaseLock() {
	if lockFd != nil {
		syscall.Flock(int(lockFd.Fd()), syscall.LOCK_UN)
		lockFd.Close()
		os.Remove(getLockFile())
	}
}

func main() {
	// Check if CLI subcommand is provided
	if len(os.Args) > 1 {
		runCLI()
		return
	}

	runServer()
}

// runCLI handles CLI subcommands
func runCLI() {
	cmd := os.Args[1]
	args := os.Args[2:]

	if cmd == "help" || cmd == "--help" || cmd == "-h" {
		printUsage()
		return
	}

	config, err := LoadConfig()
	if err != nil {
		fatalf("failed to load config: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), config.CollaboratorTimeout)
	defer cancel()

	switch cmd {
	case "sheets":
		handleSheetsCLI(ctx, config, args)
	case "email":
		handleEmailCLI(ctx, config, args)
	case "digest":
		handleDigestCLI(ctx, config, args)
	case "calls":
		handleCallsCLI(config, args)
	default:
		fmt.Fprintf(os.Stderr, "error: unknown command: %s\n", cmd)
		printUsage()
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Println(`Emily - voice receptionist

Usage:
  emily                         Run the webhook server
  emily sheets header           Show the lead tab header and whether it matches
  emily sheets init             Write the expected header to the lead tab
  emily sheets test-write       Append a test row to the lead tab
  emily email test <to>         Send a test email via Resend
  emily digest send [date]      Send the daily digest (date: YYYY-MM-DD, default today)
  emily calls list [date]       List logged calls for a day
  emily help                    Show this help message`)
}

func fatalf(format string, args ...any) {
	fmt.Fprintf(os.Stderr, "error: "+format+"\n", args...)
	os.Exit(1)
}

func printJSON(v any) {
	out, _ := json.Marshal(v)
	fmt.Println(string(out))
}

func openSheet(ctx context.Context, config *Config) *GoogleSheet {
	if config.GoogleSheetsID == "" {
		fatalf("GOOGLE_SHEETS_ID not configured")
	}
	sheet, err := NewGoogleSheet(ctx, config.GoogleCredentials, config.GoogleSheetsID, config.GoogleSheetsTab, nil)
	if err != nil {
		fatalf("%v", err)
	}
	return sheet
}

func handleSheetsCLI(ctx context.Context, config *Config, args []string) {
	if len(args) < 1 {
		fatalf("sheets subcommand required (header, init, test-write)")
	}

	sheet := openSheet(ctx, config)

	switch args[0] {
	case "header":
		header, err := sheet.Header(ctx)
		if err != nil {
			fatalf("%v", err)
		}
		printJSON(map[string]any{
			"header":   header,
			"expected": sheetHeader,
			"matches":  strings.Join(header, "|") == strings.Join(sheetHeader, "|"),
		})

	case "init":
		if err := sheet.WriteHeader(ctx); err != nil {
			fatalf("%v", err)
		}
		printJSON(map[string]any{"success": true, "header": sheetHeader})

	case "test-write":
		updated, err := sheet.AppendLead(ctx, LeadRow{
			CalledAt: time.Now(),
			Fields: LeadFields{
				LastName:      "TEST",
				FirstName:     "Emily",
				Phone:         "0000000000",
				ReasonForCall: "Ligne de test",
			},
			Category:     defaultCategory,
			CustomerType: customerTypeNewLead,
		})
		if err != nil {
			fatalf("%v", err)
		}
		printJSON(map[string]any{"success": true, "updated_range": updated})

	default:
		fatalf("unknown sheets subcommand: %s", args[0])
	}
}

func handleEmailCLI(ctx context.Context, config *Config, args []string) {
	if len(args) < 2 || args[0] != "test" {
		fatalf("usage: emily email test <to>")
	}
	if config.ResendAPIKey == "" {
		fatalf("RESEND_API_KEY not configured")
	}
	tools.SetResendAPIKey(config.ResendAPIKey)
	tools.SetFromEmail(config.FromEmail)

	id, err := tools.SendEmail(ctx, tools.Email{
		To:      []string{args[1]},
		Subject: "Test Emily",
		Text:    "Ceci est un courriel de test envoyé par Emily.",
	})
	if err != nil {
		fatalf("%v", err)
	}
	printJSON(map[string]any{"success": true, "id": id})
}

func handleDigestCLI(ctx context.Context, config *Config, args []string) {
	if len(args) < 1 || args[0] != "send" {
		fatalf("usage: emily digest send [YYYY-MM-DD]")
	}
	day := ""
	if len(args) > 1 {
		day = args[1]
		if _, err := time.Parse(dateLayout, day); err != nil {
			fatalf("invalid date %q", day)
		}
	}

	db, err := InitDB(config.DatabasePath)
	if err != nil {
		fatalf("failed to initialize database: %v", err)
	}
	defer db.Close()

	tools.SetResendAPIKey(config.ResendAPIKey)
	tools.SetFromEmail(config.FromEmail)

	n, err := NewDigest(db, resendMailer{}, config.DigestTo, nil).Send(ctx, day)
	if err != nil {
		fatalf("%v", err)
	}
	printJSON(map[string]any{"success": true, "calls": n})
}

func handleCallsCLI(config *Config, args []string) {
	if len(args) < 1 || args[0] != "list" {
		fatalf("usage: emily calls list [YYYY-MM-DD]")
	}
	day := logDate(time.Now())
	if len(args) > 1 {
		day = args[1]
	}

	db, err := InitDB(config.DatabasePath)
	if err != nil {
		fatalf("failed to initialize database: %v", err)
	}
	defer db.Close()

	entries, err := db.CallLogsForDate(day)
	if err != nil {
		fatalf("%v", err)
	}
	printJSON(map[string]any{"date": day, "count": len(entries), "calls": entries})
}

// runServer runs the webhook server until a signal arrives
func runServer() {
	// Check for existing instance
	if err := acquireLock(); err != nil {
		log.Fatalf("Failed to start: %v", err)
	}
	defer releaseLock()

	config, err := LoadConfig()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}
	log.Println("Configuration loaded")
	log.Printf("  Database: %s", config.DatabasePath)
	log.Printf("  Webhook port: %d", config.WebhookPort)
	log.Printf("  Public URL: %s", config.PublicBaseURL)

	if err := StartServer(config); err != nil {
		log.Fatalf("Failed to start server: %v", err)
	}

	// Wait for shutdown signal
	WaitForShutdown()

	StopServer()
}
