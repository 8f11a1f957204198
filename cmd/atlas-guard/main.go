// ABOUTME: Diagnostic CLI for the identity gate and its encrypted stores
// ABOUTME: Walks the detect/challenge/verify flow and inspects vault and memory

package main

import (
	"bufio"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/fatih/color"

	"github.com/oleg121203/Atlas-sub004/internal/identity"
	"github.com/oleg121203/Atlas-sub004/internal/memory"
	"github.com/oleg121203/Atlas-sub004/internal/vault"
)

// secretEnv holds the provisioned master secret as 64 hex characters. All
// fixed key domains derive from it; it is never compiled in.
const secretEnv = "ATLAS_MASTER_SECRET"

// sessionSalt is the fixed PBKDF2 salt for session keys. The salt is not a
// secret; the secrecy lives in the provisioned master.
var sessionSalt = []byte("atlas-guard/session-salt/v1")

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	cfg, err := LoadConfig(configPath())
	if err != nil {
		color.Red("Error: %v\n", err)
		os.Exit(1)
	}
	slog.SetDefault(setupLogger(cfg.Logging))

	cmd := os.Args[1]
	args := os.Args[2:]

	if cmd == "help" || cmd == "-h" || cmd == "--help" {
		printUsage()
		return
	}

	app, err := buildApp(cfg)
	if err != nil {
		color.Red("Error: %v\n", err)
		os.Exit(1)
	}

	switch cmd {
	case "status":
		err = cmdStatus(app)
	case "auth":
		err = cmdAuth(app)
	case "protocols":
		err = cmdProtocols(app, args)
	case "audit":
		err = cmdAudit(app)
	case "memory":
		err = cmdMemory(app, args)
	case "end":
		app.auth.EndSession()
		fmt.Println("session ended (no-op when none was active)")
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n", cmd)
		printUsage()
		os.Exit(1)
	}
	if err != nil {
		color.Red("Error: %v\n", err)
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Println(`atlas-guard - identity gate and encrypted store diagnostics

Usage: atlas-guard <command> [args]

Commands:
  status                    identity level, session, vault and memory health
  auth                      interactive verification flow
  protocols [list]          list protocol records
  protocols show <name>     print one protocol record
  audit                     dump the vault access log (empty outside a session)
  memory stats              memory store counts
  memory clear --confirm    wipe the memory store (needs an active session)
  end                       end the active session
  help                      show this help

The 32-byte master secret is read as hex from $` + secretEnv + `.
Config file: $ATLAS_GUARD_CONFIG or ~/.config/atlas-guard/atlas-guard.toml`)
}

func setupLogger(cfg LoggingConfig) *slog.Logger {
	var level slog.Level
	switch cfg.Level {
	case "debug":
		level = slog.LevelDebug
	case "info":
		level = slog.LevelInfo
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelWarn
	}

	opts := &slog.HandlerOptions{Level: level}

	var handler slog.Handler
	if cfg.Format == "json" {
		handler = slog.NewJSONHandler(os.Stderr, opts)
	} else {
		handler = slog.NewTextHandler(os.Stderr, opts)
	}
	return slog.New(handler)
}

// app wires the authenticator to the two stores it gates.
type app struct {
	auth   *identity.Authenticator
	vault  *vault.Vault
	memory *memory.Store
}

func buildApp(cfg *Config) (*app, error) {
	secret, err := masterSecret()
	if err != nil {
		return nil, err
	}

	var rules []identity.Rule
	if cfg.Rules.Path != "" {
		rules, err = identity.LoadRules(cfg.Rules.Path)
		if err != nil {
			return nil, fmt.Errorf("loading detection rules: %w", err)
		}
	}

	auth, err := identity.New(identity.Config{
		SessionSecret: secret,
		SessionSalt:   sessionSalt,
		MaxAttempts:   cfg.Auth.MaxAttempts,
		KeyIterations: cfg.Auth.KeyIterations,
		Rules:         rules,
	})
	if err != nil {
		return nil, fmt.Errorf("building authenticator: %w", err)
	}

	v, err := vault.New(vault.Config{Secret: secret, Auth: auth})
	if err != nil {
		return nil, fmt.Errorf("building vault: %w", err)
	}

	mem, err := memory.New(memory.Config{
		Secret: secret,
		Path:   cfg.Data.MemoryPath,
		Auth:   auth,
	})
	if err != nil {
		return nil, fmt.Errorf("building memory store: %w", err)
	}

	return &app{auth: auth, vault: v, memory: mem}, nil
}

// masterSecret reads and decodes the provisioned secret from the
// environment.
func masterSecret() ([]byte, error) {
	raw := os.Getenv(secretEnv)
	if raw == "" {
		return nil, fmt.Errorf("%s is not set; provision a 32-byte hex secret", secretEnv)
	}
	secret, err := hex.DecodeString(strings.TrimSpace(raw))
	if err != nil {
		return nil, fmt.Errorf("%s is not valid hex: %w", secretEnv, err)
	}
	if len(secret) != 32 {
		return nil, fmt.Errorf("%s must decode to 32 bytes, got %d", secretEnv, len(secret))
	}
	return secret, nil
}

func cmdStatus(a *app) error {
	cyan := color.New(color.FgCyan)
	green := color.New(color.FgGreen)
	yellow := color.New(color.FgYellow)

	cyan.Println("atlas-guard status")
	fmt.Println()

	fmt.Printf("  Identity:   %s\n", a.auth.LevelNow())

	if a.auth.IsVerified() {
		d, _ := a.auth.SessionDuration()
		green.Printf("  Session:    ")
		fmt.Printf("%s (active %s)\n", a.auth.SessionID(), d.Round(time.Second))
	} else {
		yellow.Printf("  Session:    ")
		fmt.Println("none")
	}

	if a.vault.VerifyIntegrity() {
		green.Printf("  Vault:      ")
		fmt.Printf("intact (%d protocols)\n", len(vault.RequiredProtocols))
	} else {
		color.Red("  Vault:      integrity check FAILED")
	}

	if stats, ok := a.memory.Stats(); ok {
		green.Printf("  Memory:     ")
		fmt.Printf("%d conversations, %d preferences, %d session logs\n",
			stats.Conversations, stats.Preferences, stats.SessionLogs)
	} else {
		yellow.Printf("  Memory:     ")
		fmt.Println("locked (requires a verified session)")
	}
	return nil
}

// cmdAuth walks the interactive verification flow, then drops into a small
// shell so the session-gated surfaces can be inspected while it lasts. The
// session dies with the process; this is a diagnostic tool, not a daemon.
func cmdAuth(a *app) error {
	cyan := color.New(color.FgCyan)
	green := color.New(color.FgGreen)
	scanner := bufio.NewScanner(os.Stdin)

	cyan.Println("Say something that identifies you:")
	fmt.Print("> ")
	if !scanner.Scan() {
		return scanner.Err()
	}

	level := a.auth.HandleMessage(scanner.Text())
	if level != identity.LevelPossibleCreator {
		fmt.Println("no creator signal detected; nothing to verify")
		return nil
	}

	challenge := a.auth.GenerateChallenge()
	cyan.Printf("\n%s\n", challenge.Text)

	for {
		fmt.Print("> ")
		if !scanner.Scan() {
			return scanner.Err()
		}
		ok, msg := a.auth.ValidateResponse(scanner.Text())
		if ok {
			green.Println(msg)
			break
		}
		fmt.Println(msg)
		if !a.auth.IsVerified() && a.auth.LevelNow() == identity.LevelUnknown {
			// Locked out; the round is over.
			return nil
		}
	}

	cyan.Println("\nSession shell. Commands: status, protocols, audit, memory stats, end, quit")
	for {
		fmt.Print("atlas> ")
		if !scanner.Scan() {
			break
		}
		fields := strings.Fields(scanner.Text())
		if len(fields) == 0 {
			continue
		}

		var err error
		switch fields[0] {
		case "status":
			err = cmdStatus(a)
		case "protocols":
			err = cmdProtocols(a, fields[1:])
		case "audit":
			err = cmdAudit(a)
		case "memory":
			err = cmdMemory(a, fields[1:])
		case "end":
			a.auth.EndSession()
			fmt.Println("session ended")
		case "quit", "exit":
			a.auth.EndSession()
			return nil
		default:
			fmt.Printf("unknown command: %s\n", fields[0])
		}
		if err != nil {
			color.Red("Error: %v\n", err)
		}
	}
	a.auth.EndSession()
	return scanner.Err()
}

func cmdProtocols(a *app, args []string) error {
	if len(args) == 0 || args[0] == "list" {
		w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "NAME\tVERSION\tLAST MODIFIED\tMODIFIED BY")
		for _, name := range vault.RequiredProtocols {
			rec := a.vault.Read(name)
			if rec == nil {
				fmt.Fprintf(w, "%s\t-\tunavailable\t-\n", name)
				continue
			}
			modifiedBy := rec.ModifiedBy
			if modifiedBy == "" {
				modifiedBy = "-"
			}
			fmt.Fprintf(w, "%s\t%d\t%s\t%s\n",
				rec.Name, rec.Version, rec.LastModified.Format(time.RFC3339), modifiedBy)
		}
		return w.Flush()
	}

	if args[0] == "show" && len(args) == 2 {
		rec := a.vault.Read(vault.ProtocolName(args[1]))
		if rec == nil {
			return fmt.Errorf("protocol %q is unavailable", args[1])
		}
		payload, err := json.MarshalIndent(rec.Payload, "", "  ")
		if err != nil {
			return err
		}
		fmt.Printf("%s (version %d)\n%s\n", rec.Name, rec.Version, payload)
		return nil
	}

	return fmt.Errorf("usage: protocols [list|show <name>]")
}

func cmdAudit(a *app) error {
	entries := a.vault.AccessLog()
	if len(entries) == 0 {
		fmt.Println("access log is empty or hidden (it is visible only during an active session)")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "TIME\tACTION\tPROTOCOL\tAUTH\tSESSION")
	for _, e := range entries {
		session := e.SessionID
		if session == "" {
			session = "-"
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%t\t%s\n",
			e.Timestamp.Format(time.RFC3339), e.Action, e.Protocol, e.Authenticated, session)
	}
	return w.Flush()
}

func cmdMemory(a *app, args []string) error {
	if len(args) == 0 || args[0] == "stats" {
		stats, ok := a.memory.Stats()
		if !ok {
			fmt.Println("memory store is locked (requires a verified session)")
			return nil
		}
		w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
		fmt.Fprintf(w, "Conversations\t%d\n", stats.Conversations)
		fmt.Fprintf(w, "Preferences\t%d\n", stats.Preferences)
		fmt.Fprintf(w, "Session logs\t%d\n", stats.SessionLogs)
		if !stats.LastUpdated.IsZero() {
			fmt.Fprintf(w, "Last updated\t%s\n", stats.LastUpdated.Format(time.RFC3339))
		}
		return w.Flush()
	}

	if args[0] == "clear" {
		confirm := len(args) > 1 && args[1] == "--confirm"
		if a.memory.Clear(confirm) {
			fmt.Println("memory store cleared")
			return nil
		}
		if !confirm {
			return fmt.Errorf("refusing to clear without --confirm")
		}
		return fmt.Errorf("clear rejected (requires a verified session)")
	}

	return fmt.Errorf("usage: memory [stats|clear --confirm]")
}
