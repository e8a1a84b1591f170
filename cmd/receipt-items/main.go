package main

import (
	"context"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/peterbourgon/ff/v4"
	"github.com/peterbourgon/ff/v4/ffhelp"
	"golang.org/x/sync/errgroup"

	"github.com/zombor/receipt-items/internal/extraction"
	"github.com/zombor/receipt-items/internal/receipt"
	"github.com/zombor/receipt-items/internal/scanning"
)

//go:embed VERSION.txt
var versionFile string

var version = strings.TrimSpace(versionFile)

var errNoImagePath = errors.New("no image path provided")

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	code := run(ctx, os.Args[1:], os.Stdout, os.Stderr)
	stop()
	os.Exit(code)
}

// run parses flags and either scans the receipts named on the command line
// or serves the HTTP API. It returns the process exit code.
func run(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	// Check for version flag before parsing other flags
	for _, arg := range args {
		if arg == "--version" || arg == "-version" || arg == "-v" {
			fmt.Fprintln(stdout, version)
			return 0
		}
	}

	fs := ff.NewFlagSet("receipt-items")
	var (
		serve       = fs.BoolLong("serve", "Serve the HTTP API instead of scanning files")
		port        = fs.IntLong("port", 8080, "HTTP server port")
		scannerType = fs.StringLong("scanner", "gemini", "Scanner type: 'gemini', 'ollama', 'command' or 'none' (transcripts only)")
		geminiKey   = fs.StringLong("gemini-key", "", "Google Gemini API key (or set GEMINI_API_KEY env var)")
		geminiModel = fs.StringLong("gemini-model", "gemini-2.5-flash", "Google Gemini model name")
		ollamaURL   = fs.StringLong("ollama-url", "http://localhost:11434", "Ollama API base URL")
		ollamaModel = fs.StringLong("ollama-model", "llava", "Ollama model name (e.g., llava, llava-phi3, qwen2-vl)")
		ocrCommand  = fs.StringLong("ocr-command", "", "External OCR program, e.g. 'python3 paddleocr_extract.py'")
		ocrTimeout  = fs.DurationLong("ocr-timeout", 5*time.Minute, "Timeout for one external OCR run")
		rulesPath   = fs.StringLong("rules", "", "YAML extraction rules file")
		ceiling     = fs.Float64Long("price-ceiling", -1, "Maximum single item price, 0 disables (default from rules)")
		merchant    = fs.StringLong("merchant", "", "Comma separated merchant words to treat as boilerplate")
		excludeMax  = fs.BoolLong("exclude-max-amount", "Never pair a price equal to the largest amount on the receipt")
		workers     = fs.IntLong("workers", 4, "Receipts scanned concurrently")
		authUser    = fs.StringLong("auth-user", "", "Basic auth username (optional)")
		authPass    = fs.StringLong("auth-pass", "", "Basic auth password (optional)")
		logLevel    = fs.StringLong("log-level", "info", "Log level: debug, info, warn or error")
		_           = fs.BoolLong("version", "Show version information")
	)

	if err := ff.Parse(fs, args,
		ff.WithEnvVarPrefix("RECEIPT_ITEMS"),
	); err != nil {
		fmt.Fprintf(stderr, "%s\n", ffhelp.Flags(fs))
		fmt.Fprintf(stderr, "error: %v\n", err)
		return 1
	}

	var level slog.Level
	if err := level.UnmarshalText([]byte(*logLevel)); err != nil {
		fmt.Fprintf(stderr, "error: invalid log level %q\n", *logLevel)
		return 1
	}
	// stdout carries only JSON
	slog.SetDefault(slog.New(slog.NewTextHandler(stderr, &slog.HandlerOptions{Level: level})))

	cfg := extraction.DefaultConfig()
	if *rulesPath != "" {
		var err error
		cfg, err = extraction.LoadConfig(*rulesPath)
		if err != nil {
			slog.Error("Failed to load rules", "path", *rulesPath, "error", err)
			return 1
		}
		slog.Debug("Loaded rules", "path", *rulesPath)
	}
	if *ceiling >= 0 {
		cfg.PriceCeiling = *ceiling
	}
	for _, token := range strings.Split(*merchant, ",") {
		if token = strings.TrimSpace(token); token != "" {
			cfg.MerchantTokens = append(cfg.MerchantTokens, token)
		}
	}
	if *excludeMax {
		cfg.ExcludeMaxAmount = true
	}

	extractor, err := extraction.New(cfg, slog.Default())
	if err != nil {
		slog.Error("Invalid extraction rules", "error", err)
		return 1
	}

	var scanner scanning.Scanner
	switch *scannerType {
	case "gemini":
		apiKey := *geminiKey
		if apiKey == "" {
			apiKey = os.Getenv("GEMINI_API_KEY")
		}
		if apiKey == "" {
			slog.Error("Gemini API key is required. Set --gemini-key flag or GEMINI_API_KEY environment variable")
			return 1
		}
		slog.Debug("Initializing Gemini scanner", "model", *geminiModel)
		scanner, err = scanning.NewGemini(apiKey, *geminiModel)
	case "ollama":
		slog.Debug("Initializing Ollama scanner", "url", *ollamaURL, "model", *ollamaModel)
		scanner, err = scanning.NewOllama(*ollamaURL, *ollamaModel)
	case "command":
		slog.Debug("Initializing command scanner", "command", *ocrCommand)
		scanner, err = scanning.NewCommand(*ocrCommand, *ocrTimeout)
	case "none":
	default:
		slog.Error("Invalid scanner type", "type", *scannerType, "valid", "gemini, ollama, command or none")
		return 1
	}
	if err != nil {
		slog.Error("Failed to initialize scanner", "type", *scannerType, "error", err)
		return 1
	}
	if scanner != nil {
		defer scanner.Close()
	}

	service := receipt.NewService(scanner, extractor)

	if *serve {
		return serveHTTP(ctx, service, *port, receipt.BasicAuth{Username: *authUser, Password: *authPass})
	}
	return scanFiles(ctx, service, fs.GetArgs(), *workers, stdout)
}

// serveHTTP runs the API until ctx is cancelled
func serveHTTP(ctx context.Context, service *receipt.Service, port int, auth receipt.BasicAuth) int {
	server := receipt.NewServer(service, auth)

	addr := fmt.Sprintf(":%d", port)
	errCh := make(chan error, 1)
	go func() {
		errCh <- server.Start(addr)
	}()

	slog.Info("Server started", "address", fmt.Sprintf("http://localhost%s", addr))
	if auth.Username != "" || auth.Password != "" {
		slog.Info("Basic auth enabled", "user", auth.Username)
	}

	select {
	case err := <-errCh:
		slog.Error("Server error", "error", err)
		return 1
	case <-ctx.Done():
		slog.Info("Shutting down...")
		return 0
	}
}

// scanFiles processes each path with at most workers in flight and prints one
// envelope per path, in argument order.
func scanFiles(ctx context.Context, service *receipt.Service, paths []string, workers int, stdout io.Writer) int {
	enc := json.NewEncoder(stdout)
	if len(paths) == 0 {
		if err := enc.Encode(extraction.NewErrorEnvelope(errNoImagePath)); err != nil {
			slog.Error("Error encoding output", "error", err)
		}
		return 1
	}
	if workers < 1 {
		workers = 1
	}

	outputs := make([]any, len(paths))
	failed := make([]bool, len(paths))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for i, path := range paths {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			scan, err := scanFile(gctx, service, path)
			if err != nil {
				slog.Error("Failed to process receipt", "path", path, "error", err)
				outputs[i] = extraction.NewErrorEnvelope(err)
				failed[i] = true
				return nil
			}
			outputs[i] = scan.Result
			return nil
		})
	}
	code := 0
	if err := g.Wait(); err != nil {
		slog.Error("Stopped processing receipts", "error", err)
		code = 1
		for i := range outputs {
			if outputs[i] == nil {
				outputs[i] = extraction.NewErrorEnvelope(fmt.Errorf("receipt not processed: %w", err))
				failed[i] = true
			}
		}
	}

	for i, out := range outputs {
		if err := enc.Encode(out); err != nil {
			slog.Error("Error encoding output", "path", paths[i], "error", err)
			return 1
		}
		if failed[i] {
			code = 1
		}
	}
	return code
}

func scanFile(ctx context.Context, service *receipt.Service, path string) (*receipt.Scan, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading receipt: %w", err)
	}
	return service.ProcessReceipt(ctx, filepath.Base(path), data, scanning.ContentTypeFor(path, ""))
}
