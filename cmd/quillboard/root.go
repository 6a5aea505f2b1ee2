package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/quillboard/quillboard/internal/archive"
	"github.com/quillboard/quillboard/internal/httpapi"
	"github.com/quillboard/quillboard/internal/logging"
	"github.com/quillboard/quillboard/internal/registry"
)

// flags, one per env var the teacher's cmd/server/main.go reads. Each
// flag's default is read from the corresponding env var (getEnv/
// getEnvInt, same helpers the teacher's main.go defines), so a deployed
// instance can still be configured by environment alone; the flag only
// takes over when explicitly passed on the command line.
var (
	flagPort               string
	flagSQLiteURI          string
	flagMaxDocumentSizeKB  int
	flagWSReadTimeoutMin   int
	flagWSWriteTimeoutSec  int
	flagPersistIntervalSec int
	flagRegistryStripes    int
	flagDefaultLanguage    string
	flagDisableCORS        bool
)

var rootCmd = &cobra.Command{
	Use:   "quillboard",
	Short: "quillboard collaborative text server",
	Long: `quillboard is a collaborative plain-text editing server: an
operational-transformation engine, a per-document session log, and a
chi-routed HTTP/WebSocket surface, backed by an optional SQLite archive.`,
	RunE: runServe,
}

func init() {
	_ = godotenv.Load()

	rootCmd.Flags().StringVar(&flagPort, "port", getEnv("PORT", "3030"), "port to listen on")
	rootCmd.Flags().StringVar(&flagSQLiteURI, "sqlite-uri", os.Getenv("SQLITE_URI"), "SQLite DSN; empty disables persistence")
	rootCmd.Flags().IntVar(&flagMaxDocumentSizeKB, "max-document-size-kb", getEnvInt("MAX_DOCUMENT_SIZE_KB", 256), "maximum document size in KB (0 = unbounded)")
	rootCmd.Flags().IntVar(&flagWSReadTimeoutMin, "ws-read-timeout-minutes", getEnvInt("WS_READ_TIMEOUT_MINUTES", 30), "WebSocket read timeout in minutes")
	rootCmd.Flags().IntVar(&flagWSWriteTimeoutSec, "ws-write-timeout-seconds", getEnvInt("WS_WRITE_TIMEOUT_SECONDS", 10), "WebSocket write timeout in seconds")
	rootCmd.Flags().IntVar(&flagPersistIntervalSec, "persist-interval-seconds", getEnvInt("PERSIST_INTERVAL_SECONDS", 3), "archive persist tick in seconds")
	rootCmd.Flags().IntVar(&flagRegistryStripes, "registry-stripes", getEnvInt("REGISTRY_STRIPES", registry.DefaultStripes), "number of registry map stripes")
	rootCmd.Flags().StringVar(&flagDefaultLanguage, "default-language", getEnv("DEFAULT_LANGUAGE", "plaintext"), "language tag assigned to freshly created documents")
	rootCmd.Flags().BoolVar(&flagDisableCORS, "disable-cors", os.Getenv("DISABLE_CORS") == "true", "disable permissive CORS on the HTTP surface")
}

func runServe(cmd *cobra.Command, args []string) error {
	logging.Init()
	logging.Info("starting quillboard server", map[string]interface{}{"port": flagPort})

	var ar *archive.Archive
	var opts []registry.Option
	if flagSQLiteURI != "" {
		var err error
		ar, err = archive.New(flagSQLiteURI)
		if err != nil {
			return fmt.Errorf("open archive: %w", err)
		}
		defer ar.Close()
		opts = append(opts, registry.WithLoader(ar), registry.WithSaver(ar),
			registry.WithLoadErrorHandler(func(id string, err error) {
				logging.Error("archive load failed", err, map[string]interface{}{"document_id": id})
			}),
			registry.WithSaveErrorHandler(func(id string, err error) {
				logging.Error("archive save failed", err, map[string]interface{}{"document_id": id})
			}),
		)
		logging.Info("archive enabled", map[string]interface{}{"uri": flagSQLiteURI})
	} else {
		logging.Info("archive disabled (in-memory only)", nil)
	}

	maxDocumentSize := flagMaxDocumentSizeKB * 1024
	reg := registry.New(flagRegistryStripes, flagDefaultLanguage, maxDocumentSize, opts...)

	cfg := httpapi.Config{
		EnableCORS:      !flagDisableCORS,
		WSReadTimeout:   time.Duration(flagWSReadTimeoutMin) * time.Minute,
		WSWriteTimeout:  time.Duration(flagWSWriteTimeoutSec) * time.Second,
		PersistInterval: time.Duration(flagPersistIntervalSec) * time.Second,
	}
	srv := httpapi.New(reg, ar, cfg)

	httpSrv := &http.Server{Addr: ":" + flagPort, Handler: srv}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	errChan := make(chan error, 1)
	go func() {
		logging.Info("listening", map[string]interface{}{"addr": httpSrv.Addr})
		if err := httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errChan <- err
		}
	}()

	select {
	case err := <-errChan:
		return fmt.Errorf("serve: %w", err)
	case <-sigChan:
		logging.Info("shutting down", nil)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		logging.Error("httpapi shutdown error", err, nil)
	}
	return httpSrv.Shutdown(ctx)
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.Atoi(value); err == nil {
			return i
		}
	}
	return defaultValue
}
