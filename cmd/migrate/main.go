// Command migrate bootstraps the Postgres schema for the auth/vote/
// transcript-session index tables. Adapted from cmd/debug_db/main.go, which
// patched a single workspace-file column for the teacher's old schema; this
// codebase has no workspace files, so the whole command is now a plain
// AutoMigrate over the three index tables described in SPEC_FULL.md §10.3.
package main

import (
	"flag"
	"fmt"
	"log"

	"eum-captions/internal/config"
	"eum-captions/internal/database"
)

func main() {
	configPath := flag.String("config", "config.yaml", "path to config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	fmt.Println("connecting to database...")
	db, err := database.Connect(cfg.Database.DSN, nil)
	if err != nil {
		log.Fatalf("connect to database: %v", err)
	}

	fmt.Println("running auto migration...")
	if err := database.AutoMigrate(db); err != nil {
		log.Fatalf("auto migrate: %v", err)
	}
	fmt.Println("migration complete")
}
