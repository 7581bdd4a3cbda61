package main

import (
	"context"
	"database/sql"
	"flag"
	"log"
	"os"

	_ "github.com/lib/pq"

	"github.com/technosupport/ts-lms/internal/auth"
	"github.com/technosupport/ts-lms/internal/config"
	"github.com/technosupport/ts-lms/internal/data"
)

func main() {
	username := flag.String("username", "admin", "Admin username")
	password := flag.String("password", "", "Admin password")
	flag.Parse()

	if *password == "" {
		log.Fatal("usage: seed-admin -username <name> -password <password>")
	}

	cfg, err := config.Load(os.Getenv("CONFIG_PATH"))
	if err != nil {
		log.Fatalf("Config error: %v", err)
	}

	db, err := sql.Open("postgres", cfg.Database.DSN())
	if err != nil {
		log.Fatal(err)
	}
	defer db.Close()

	hash, err := auth.HashPassword(*password)
	if err != nil {
		log.Fatalf("Hash failed: %v", err)
	}

	store := data.NewStore(db)
	user := &data.AdminUser{Username: *username, PasswordHash: hash}
	if err := store.AdminUsers.Insert(context.Background(), user); err != nil {
		log.Fatalf("Admin insert failed: %v", err)
	}

	log.Printf("Admin user %q created (id %s)", user.Username, user.ID)
}
