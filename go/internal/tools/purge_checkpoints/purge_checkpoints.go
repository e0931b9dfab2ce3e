package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/mcdev12/focusroom/go/internal/dbconfig"
)

// purge_checkpoints removes room checkpoints that are too old to be restored.
func main() {
	olderThan := flag.Duration("older-than", 24*time.Hour, "delete checkpoints not updated within this window")
	dryRun := flag.Bool("dry-run", false, "report what would be deleted without deleting")
	flag.Parse()

	if *olderThan <= 0 {
		fmt.Fprintln(os.Stderr, "-older-than must be positive")
		os.Exit(2)
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	// 1) Connect using shared dbconfig
	cfg := dbconfig.NewConfigFromEnv()
	pool, err := pgxpool.New(ctx, cfg.DSN())
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to connect: %v\n", err)
		os.Exit(1)
	}
	defer pool.Close()

	cutoff := time.Now().Add(-*olderThan)

	// 2) Report per mode
	rows, err := pool.Query(ctx, `
            SELECT mode, count(*)
            FROM room_checkpoints
            WHERE updated_at < $1
            GROUP BY mode
            ORDER BY mode
        `, cutoff)
	if err != nil {
		fmt.Fprintf(os.Stderr, "query stale checkpoints: %v\n", err)
		os.Exit(1)
	}
	var stale int64
	for rows.Next() {
		var (
			mode  string
			count int64
		)
		if err := rows.Scan(&mode, &count); err != nil {
			rows.Close()
			fmt.Fprintf(os.Stderr, "scan: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("  %-12s %d\n", mode, count)
		stale += count
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		fmt.Fprintf(os.Stderr, "read stale checkpoints: %v\n", err)
		os.Exit(1)
	}

	if *dryRun {
		fmt.Printf("Dry run: %d checkpoints older than %s\n", stale, cutoff.Format(time.RFC3339))
		return
	}

	// 3) Delete
	cmdTag, err := pool.Exec(ctx, `DELETE FROM room_checkpoints WHERE updated_at < $1`, cutoff)
	if err != nil {
		fmt.Fprintf(os.Stderr, "delete checkpoints: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("Checkpoint purge complete: %d deleted, cutoff %s\n", cmdTag.RowsAffected(), cutoff.Format(time.RFC3339))
}
