package main

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	codexprime "github.com/MegaGrindStone/codex-prime-ui"
	"github.com/MegaGrindStone/codex-prime-ui/internal/chat"
	"github.com/MegaGrindStone/codex-prime-ui/internal/handlers"
	"github.com/MegaGrindStone/codex-prime-ui/internal/services"
	"github.com/joho/godotenv"
)

func main() {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		log.Fatal(fmt.Errorf("error loading .env file: %w", err))
	}

	cfgDir, err := os.UserConfigDir()
	if err != nil {
		log.Fatal(fmt.Errorf("error getting user config dir: %w", err))
	}
	cfgPath := filepath.Join(cfgDir, "codexprime")
	if err := os.MkdirAll(cfgPath, 0755); err != nil {
		log.Fatal(fmt.Errorf("error creating config directory: %w", err))
	}

	cfg, err := loadConfig(filepath.Join(cfgPath, "config.yaml"))
	if err != nil {
		log.Fatal(err)
	}

	level, err := cfg.logLevel()
	if err != nil {
		log.Fatal(err)
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)

	creds, err := newCredentials(cfg, filepath.Join(cfgPath, "credentials.db"))
	if err != nil {
		log.Fatal(err)
	}
	defer func() {
		if err := creds.close(); err != nil {
			logger.Error("Failed to close credential store", slog.String("err", err.Error()))
		}
	}()

	factory, err := cfg.LLM.sessionFactory(credentialSource(creds.selected, cfg.LLM), logger)
	if err != nil {
		log.Fatal(err)
	}

	streamer := chat.NewStreamer(factory, cfg.systemInstruction(), logger)
	gate := chat.NewGate(creds.selector, cfg.LLM.envKeys(), streamer, logger)

	m, err := handlers.NewMain(streamer, gate, logger)
	if err != nil {
		log.Fatal(err)
	}

	// Serve static files
	staticFS, err := fs.Sub(codexprime.StaticFS, "static")
	if err != nil {
		log.Fatal(err)
	}
	fileServer := http.FileServer(http.FS(staticFS))

	// Create custom mux
	mux := http.NewServeMux()
	mux.Handle("/static/", http.StripPrefix("/static/", fileServer))
	mux.HandleFunc("/", m.HandleHome)
	mux.HandleFunc("/chats", m.HandleChats)
	mux.HandleFunc("/credential", m.HandleCredential)
	mux.HandleFunc("/sse", m.HandleSSE)

	// Create custom server
	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	srv.RegisterOnShutdown(func() {
		if err := m.Shutdown(context.Background()); err != nil {
			logger.Error("Failed to shutdown sse server", slog.String("err", err.Error()))
		}
	})

	// Channel to listen for errors coming from the listener
	serverErrors := make(chan error, 1)

	// Start server in goroutine
	go func() {
		logger.Info("Server starting",
			slog.String("addr", srv.Addr),
			slog.String("credentialStore", cfg.CredentialStore))
		serverErrors <- srv.ListenAndServe()
	}()

	// Channel to listen for interrupt/terminate signals
	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM)

	// Blocking select waiting for either interrupt or server error
	select {
	case err := <-serverErrors:
		logger.Error("Server error", slog.String("err", err.Error()))

	case sig := <-shutdown:
		logger.Info("Start shutdown", slog.String("signal", sig.String()))

		// Create context with timeout for shutdown
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		// Gracefully shutdown the server
		if err := srv.Shutdown(ctx); err != nil {
			logger.Error("Graceful shutdown failed", slog.String("err", err.Error()))
			if err := srv.Close(); err != nil {
				logger.Error("Forcing server close", slog.String("err", err.Error()))
			}
		}
	}
}

type credentials struct {
	// selector is nil when the user can't select a credential in the browser.
	selector chat.CredentialSelector
	// selected is the credential picked through selector, if it stores one.
	selected services.CredentialSource
	close    func() error
}

// newCredentials picks the credential collaborator. Providers that need no key are always ready.
// Otherwise the key selected in the browser is kept in a bolt file at dbPath, or in memory when
// the configuration turns the store off, and a key from the configuration or the environment also
// counts as selected.
func newCredentials(cfg config, dbPath string) (credentials, error) {
	noop := func() error { return nil }

	if cfg.LLM.envKeys() == nil {
		return credentials{selector: services.NoCredential{}, close: noop}, nil
	}

	fallback := credentialSource(nil, cfg.LLM)

	if cfg.CredentialStore == credentialBolt {
		keyring, err := services.NewBoltKeyring(dbPath)
		if err != nil {
			return credentials{}, err
		}
		return credentials{
			selector: services.WithFallback(keyring, fallback),
			selected: keyring,
			close:    keyring.Close,
		}, nil
	}

	// Without a configured key readiness comes from the environment and nothing can be selected.
	if cfg.LLM.apiKey() == "" {
		return credentials{close: noop}, nil
	}

	keyring := &services.MemoryKeyring{}
	return credentials{
		selector: services.WithFallback(keyring, fallback),
		selected: keyring,
		close:    noop,
	}, nil
}
