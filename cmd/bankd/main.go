/*
main.go - Bank engine entry point

PURPOSE:
  Starts the shared transaction engine and both of its client paths in one
  process: the HTTP gateway for the web frontend and the socket server for
  teller stations and ATMs. Both transports share a single Ledger and
  SessionManager; this is what makes concurrent terminals safe.

STARTUP SEQUENCE:
  1. Load configuration (file, env, defaults)
  2. Open the persistence store (flat files or SQLite)
  3. Load all record sets into the Ledger
  4. Start the socket server and HTTP gateway
  5. Wait for SIGINT/SIGTERM, then shut both down

CONFIGURATION (viper):
  File:      ./bankd.yaml (optional)
  Env:       BANKD_* (e.g. BANKD_HTTP_ADDR, BANKD_STORE)
  Keys:
    http_addr    HTTP gateway address        (default ":8080")
    socket_addr  Socket server address       (default ":9090")
    store        "flatfile" or "sqlite"      (default "flatfile")
    data_dir     Flat-file data directory    (default "./data")
    db           SQLite database path        (default "./data/bank.db")

EXAMPLES:
  # Flat files in ./data
  ./bankd

  # SQLite
  BANKD_STORE=sqlite BANKD_DB=./data/bank.db ./bankd

SEE ALSO:
  - api/server.go: HTTP routes
  - wire/server.go: Socket protocol
*/
package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/viper"

	"github.com/meridian/bank-engine/api"
	"github.com/meridian/bank-engine/bank"
	"github.com/meridian/bank-engine/store/flatfile"
	"github.com/meridian/bank-engine/store/sqlite"
	"github.com/meridian/bank-engine/wire"
)

func main() {
	cfg := loadConfig()

	store, cleanup, err := openStore(cfg)
	if err != nil {
		log.Fatalf("Failed to open store: %v", err)
	}
	defer cleanup()

	ledger, err := bank.Open(context.Background(), store)
	if err != nil {
		log.Fatalf("Failed to load ledger: %v", err)
	}
	sessions := bank.NewSessionManager(ledger)

	// Socket server for teller stations and ATMs
	socketServer := wire.NewServer(ledger, sessions)
	socketAddr, err := socketServer.Listen(cfg.GetString("socket_addr"))
	if err != nil {
		log.Fatalf("Failed to bind socket server: %v", err)
	}
	go func() {
		log.Printf("Socket server listening on %s", socketAddr)
		if err := socketServer.Serve(); err != nil {
			log.Fatalf("Socket server failed: %v", err)
		}
	}()

	// HTTP gateway for the web frontend
	handler := api.NewHandler(ledger, sessions)
	httpServer := &http.Server{
		Addr:         cfg.GetString("http_addr"),
		Handler:      api.NewRouter(handler),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
	go func() {
		log.Printf("HTTP gateway listening on %s", httpServer.Addr)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("HTTP gateway failed: %v", err)
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("Shutting down...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := httpServer.Shutdown(ctx); err != nil {
		log.Printf("HTTP gateway forced to shutdown: %v", err)
	}
	if err := socketServer.Close(); err != nil {
		log.Printf("Socket server close: %v", err)
	}

	log.Println("Stopped")
}

func loadConfig() *viper.Viper {
	cfg := viper.New()
	cfg.SetDefault("http_addr", ":8080")
	cfg.SetDefault("socket_addr", ":9090")
	cfg.SetDefault("store", "flatfile")
	cfg.SetDefault("data_dir", "./data")
	cfg.SetDefault("db", "./data/bank.db")

	cfg.SetConfigName("bankd")
	cfg.SetConfigType("yaml")
	cfg.AddConfigPath(".")
	if err := cfg.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			log.Fatalf("Failed to read config: %v", err)
		}
	}

	cfg.SetEnvPrefix("BANKD")
	cfg.AutomaticEnv()
	return cfg
}

func openStore(cfg *viper.Viper) (bank.Store, func(), error) {
	switch backend := cfg.GetString("store"); backend {
	case "sqlite":
		s, err := sqlite.New(cfg.GetString("db"))
		if err != nil {
			return nil, nil, err
		}
		return s, func() { s.Close() }, nil
	case "flatfile":
		s, err := flatfile.New(cfg.GetString("data_dir"))
		if err != nil {
			return nil, nil, err
		}
		return s, func() {}, nil
	default:
		log.Fatalf("Unknown store backend %q (want flatfile or sqlite)", backend)
		return nil, nil, nil
	}
}
