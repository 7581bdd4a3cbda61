// keygen mints signed license keys offline. With -dsn the keys are also
// registered in the database; without it they are only printed.
package main

import (
	"context"
	"database/sql"
	"flag"
	"fmt"
	"log"
	"os"

	_ "github.com/lib/pq"

	"github.com/technosupport/ts-lms/internal/data"
	"github.com/technosupport/ts-lms/internal/keycodec"
)

func main() {
	tier := flag.String("tier", "pro", "Tier: pro or enterprise")
	days := flag.Int("days", 0, "Duration in days (0 = lifetime)")
	count := flag.Int("count", 1, "Number of keys to mint")
	dsn := flag.String("dsn", "", "Postgres DSN (optional; register minted keys)")
	flag.Parse()

	secret := os.Getenv("KEY_SECRET")
	if secret == "" {
		log.Fatal("KEY_SECRET must be set")
	}

	t := keycodec.Tier(*tier)
	if t != keycodec.TierPro && t != keycodec.TierEnterprise {
		log.Fatalf("Unknown tier %q", *tier)
	}

	var store *data.Store
	if *dsn != "" {
		db, err := sql.Open("postgres", *dsn)
		if err != nil {
			log.Fatal(err)
		}
		defer db.Close()
		store = data.NewStore(db)
	}

	codec := keycodec.New(keycodec.StaticSecret([]byte(secret)))
	bucket := keycodec.BucketFor(*days)

	for i := 0; i < *count; i++ {
		key, err := codec.Generate(t, bucket)
		if err != nil {
			log.Fatalf("Generate failed: %v", err)
		}

		if store != nil {
			lk := &data.LicenseKey{
				Key:            key,
				Tier:           t,
				Status:         data.StatusActive,
				DurationDays:   bucket,
				MaxActivations: 1,
			}
			if err := store.InsertKey(context.Background(), lk); err != nil {
				log.Fatalf("Insert failed for %s: %v", key, err)
			}
		}
		fmt.Println(key)
	}
}
