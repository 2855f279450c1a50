// Command setadmin grants (or revokes) the admin flag for an account,
// straight against the database. A fresh deployment has no administrator,
// and the HTTP surface only lets existing admins mint new ones, so the
// first grant happens here.
package main

import (
	"context"
	"database/sql"
	"flag"
	"log"
	"os"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"

	"lojinha.org/internal/auth"
)

func main() {
	log.SetFlags(0)
	var (
		dsn    = flag.String("dsn", os.Getenv("LOJINHA_PG_DSN"), "PostgreSQL DSN")
		email  = flag.String("email", "", "Account email")
		revoke = flag.Bool("revoke", false, "Revoke instead of grant")
	)
	flag.Parse()

	if *dsn == "" {
		log.Fatal("missing DSN: provide via -dsn or LOJINHA_PG_DSN")
	}
	if *email == "" {
		log.Fatal("usage: setadmin -email user@example.com [-revoke]")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	db, err := sql.Open("pgx", *dsn)
	if err != nil {
		log.Fatalf("open db: %v", err)
	}
	defer db.Close()

	store := auth.NewPGStore(db)
	u, err := store.FindByEmail(ctx, *email)
	if err != nil {
		log.Fatalf("find %s: %v", *email, err)
	}
	u, err = store.SetAdmin(ctx, u.ID, !*revoke)
	if err != nil {
		log.Fatalf("set admin: %v", err)
	}

	if u.Admin {
		log.Printf("%s (id %d) is now an administrator", u.Email, u.ID)
	} else {
		log.Printf("%s (id %d) is no longer an administrator", u.Email, u.ID)
	}
}
