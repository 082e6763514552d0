// Command scheduler-migrate rewrites a data directory created by a
// pre-rename build of this daemon, whose bbolt store still used the name
// "instances" for what is now the "registry" bucket. It copies every key
// into the new bucket name, validating each value decodes as JSON before
// copying it, and leaves the old bucket untouched unless -delete-legacy is
// given.
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"go.etcd.io/bbolt"
)

var (
	legacyBucket = []byte("instances")
	newBucket    = []byte("registry")
)

func main() {
	dataDir := flag.String("data-dir", "", "Data directory containing the bbolt store (required)")
	dryRun := flag.Bool("dry-run", false, "Report what would change without writing anything")
	backup := flag.Bool("backup", true, "Copy the store file aside before migrating")
	deleteLegacy := flag.Bool("delete-legacy", false, "Remove the legacy bucket after a successful copy")
	flag.Parse()

	if *dataDir == "" {
		fmt.Fprintln(os.Stderr, "Error: -data-dir is required")
		os.Exit(1)
	}

	dbPath := filepath.Join(*dataDir, "scheduler.db")
	if _, err := os.Stat(dbPath); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	if *backup && !*dryRun {
		if err := copyFile(dbPath, dbPath+".bak."+time.Now().UTC().Format("20060102T150405Z")); err != nil {
			fmt.Fprintf(os.Stderr, "Error: backup failed: %v\n", err)
			os.Exit(1)
		}
		fmt.Println("✓ Backed up store")
	}

	db, err := bbolt.Open(dbPath, 0600, &bbolt.Options{Timeout: 5 * time.Second})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: open %s: %v\n", dbPath, err)
		os.Exit(1)
	}
	defer db.Close()

	copied, skipped, err := migrate(db, *dryRun, *deleteLegacy)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	verb := "Migrated"
	if *dryRun {
		verb = "Would migrate"
	}
	fmt.Printf("✓ %s %d record(s), skipped %d invalid record(s)\n", verb, copied, skipped)
}

// migrate walks every key in the legacy bucket, copying valid-JSON values
// into the new bucket. A value that doesn't parse as JSON is counted as
// skipped and left behind rather than aborting the whole migration, so one
// corrupt record from an old bug doesn't block the rest of the store.
func migrate(db *bbolt.DB, dryRun, deleteLegacy bool) (copied, skipped int, err error) {
	err = db.Update(func(tx *bbolt.Tx) error {
		legacy := tx.Bucket(legacyBucket)
		if legacy == nil {
			return fmt.Errorf("no legacy %q bucket found; nothing to migrate", legacyBucket)
		}

		dest, derr := tx.CreateBucketIfNotExists(newBucket)
		if derr != nil {
			return fmt.Errorf("create %q bucket: %w", newBucket, derr)
		}

		return legacy.ForEach(func(k, v []byte) error {
			var probe map[string]any
			if jsonErr := json.Unmarshal(v, &probe); jsonErr != nil {
				skipped++
				return nil
			}
			copied++
			if dryRun {
				return nil
			}
			return dest.Put(k, v)
		})
	})
	if err != nil {
		return 0, 0, err
	}

	if deleteLegacy && !dryRun {
		err = db.Update(func(tx *bbolt.Tx) error {
			return tx.DeleteBucket(legacyBucket)
		})
		if err != nil {
			return copied, skipped, fmt.Errorf("delete legacy bucket: %w", err)
		}
	}

	return copied, skipped, nil
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	defer out.Close()

	_, err = io.Copy(out, in)
	return err
}
