// Command vaultd runs the local credential vault's HTTP control plane.
package main

import (
	"log"
	"time"

	"localvault/internal/config"
	"localvault/internal/server"
	"localvault/internal/session"
	"localvault/internal/vstore"
)

func main() {
	cfg := config.Load()

	store, err := vstore.Open(cfg.DataDir)
	if err != nil {
		log.Fatalf("FATAL: open record store: %v", err)
	}
	defer store.Close()

	idleTimeout := time.Duration(cfg.SessionIdleMinutes) * time.Minute
	sessions := session.New(idleTimeout)

	srv := server.New(cfg, store, sessions)
	if err := srv.Run(); err != nil {
		log.Fatalf("FATAL: server exited: %v", err)
	}
}
