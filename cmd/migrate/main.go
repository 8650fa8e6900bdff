// migrate runs DB migrations from embedded SQL: go run ./cmd/migrate [-direction up|down].
package main

import (
	"flag"
	"fmt"
	"log"
	"os"

	"zero-trust-session-core/internal/config"
	"zero-trust-session-core/internal/db/migrate"
)

func main() {
	direction := flag.String("direction", "up", "Migration direction: up or down")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, "config:", err)
		os.Exit(1)
	}
	if cfg.DatabaseURL == "" {
		fmt.Fprintln(os.Stderr, "DATABASE_URL is not set; create a .env or set DATABASE_URL")
		os.Exit(1)
	}

	if err := migrate.Run(cfg.DatabaseURL, *direction); err != nil {
		fmt.Fprintln(os.Stderr, "migrate:", err)
		os.Exit(1)
	}
	version, dirty, err := migrate.Version(cfg.DatabaseURL)
	if err != nil {
		fmt.Fprintln(os.Stderr, "migrate: version:", err)
		os.Exit(1)
	}
	log.Printf("migrate: schema at version %d (dirty=%v)", version, dirty)
}
