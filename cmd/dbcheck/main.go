package main

import (
	"context"
	"fmt"
	"os"

	"github.com/jackc/pgx/v5/pgxpool"
)

func main() {
	pool, err := pgxpool.New(context.Background(), os.Getenv("DATABASE_URL"))
	if err != nil {
		panic(err)
	}
	defer pool.Close()

	ctx := context.Background()

	if len(os.Args) > 1 && os.Args[1] == "stuck" {
		showStuck(ctx, pool)
		return
	}

	if len(os.Args) > 1 && os.Args[1] == "cleanup" {
		tag, _ := pool.Exec(ctx, `
			DELETE FROM transcripts t
			WHERE NOT EXISTS (SELECT 1 FROM recordings r WHERE r.id = t.record_id)
		`)
		fmt.Printf("Deleted %d orphan transcripts\n", tag.RowsAffected())
		return
	}

	// Default: table counts
	tables := []string{"accounts", "recordings", "transcripts", "summaries"}
	fmt.Println("Table           Count")
	fmt.Println("─────────────────────")
	for _, t := range tables {
		var count int64
		pool.QueryRow(ctx, "SELECT count(*) FROM "+t).Scan(&count)
		fmt.Printf("%-15s %d\n", t, count)
	}

	fmt.Println("\nRecordings by status:")
	rows, _ := pool.Query(ctx, "SELECT status, count(*) FROM recordings GROUP BY status ORDER BY status")
	defer rows.Close()
	for rows.Next() {
		var status string
		var count int64
		rows.Scan(&status, &count)
		fmt.Printf("  %-22s %d\n", status, count)
	}
}

func showStuck(ctx context.Context, pool *pgxpool.Pool) {
	fmt.Println("── Recordings stuck in transcribing ──")
	rows, _ := pool.Query(ctx, `
		SELECT id, elder_id, updated_at
		FROM recordings
		WHERE status = 'transcribing'
		ORDER BY updated_at
		LIMIT 50
	`)
	defer rows.Close()
	found := false
	for rows.Next() {
		found = true
		var id string
		var elderID int64
		var updatedAt interface{}
		rows.Scan(&id, &elderID, &updatedAt)
		fmt.Printf("  %s elder=%d since=%v\n", id, elderID, updatedAt)
	}
	if !found {
		fmt.Println("  (none)")
	}

	fmt.Println("\n── Recent transcription failures ──")
	rows2, _ := pool.Query(ctx, `
		SELECT id, elder_id, last_error
		FROM recordings
		WHERE status = 'transcription_failed'
		ORDER BY updated_at DESC
		LIMIT 20
	`)
	defer rows2.Close()
	for rows2.Next() {
		var id, lastError string
		var elderID int64
		rows2.Scan(&id, &elderID, &lastError)
		fmt.Printf("  %s elder=%d err=%q\n", id, elderID, lastError)
	}
}
