package main

import (
	"context"
	"database/sql"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	_ "modernc.org/sqlite"
)

func main() {
	if len(os.Args) >= 2 {
		switch os.Args[1] {
		case "top":
			topCmd(os.Args[2:])
			return
		case "actor":
			actorCmd(os.Args[2:])
			return
		}
	}
	fmt.Fprintln(os.Stderr, "usage: admin top|actor [flags]")
	os.Exit(2)
}

func openDB(dataDir, dbPath string) *sql.DB {
	path := strings.TrimSpace(dbPath)
	if path == "" {
		path = filepath.Join(dataDir, "jobs.db")
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		fmt.Fprintln(os.Stderr, "open:", err)
		os.Exit(1)
	}
	return db
}

func topCmd(args []string) {
	fs := flag.NewFlagSet("top", flag.ExitOnError)
	dataDir := fs.String("data", "./data", "runtime data directory")
	dbPath := fs.String("db", "", "sqlite db path (optional)")
	track := fs.String("track", "", "track id (required)")
	limit := fs.Int("limit", 20, "result limit")
	_ = fs.Parse(args)

	if strings.TrimSpace(*track) == "" {
		fmt.Fprintln(os.Stderr, "missing -track")
		os.Exit(2)
	}

	db := openDB(*dataDir, *dbPath)
	defer db.Close()

	rows, err := db.QueryContext(context.Background(),
		`SELECT actor_id, level, xp FROM track_progress WHERE track_id=? ORDER BY level DESC, xp DESC LIMIT ?`,
		strings.ToLower(*track), *limit)
	if err != nil {
		fmt.Fprintln(os.Stderr, "query:", err)
		os.Exit(1)
	}
	defer rows.Close()

	rank := 0
	for rows.Next() {
		var actorID string
		var level int
		var xp float64
		if err := rows.Scan(&actorID, &level, &xp); err != nil {
			fmt.Fprintln(os.Stderr, "scan:", err)
			os.Exit(1)
		}
		rank++
		fmt.Printf("%3d  %-40s lvl %3d  %.1f xp\n", rank, actorID, level, xp)
	}
	if err := rows.Err(); err != nil {
		fmt.Fprintln(os.Stderr, "rows:", err)
		os.Exit(1)
	}
}

func actorCmd(args []string) {
	fs := flag.NewFlagSet("actor", flag.ExitOnError)
	dataDir := fs.String("data", "./data", "runtime data directory")
	dbPath := fs.String("db", "", "sqlite db path (optional)")
	blob := fs.Bool("blob", false, "print the raw profile blob too")
	_ = fs.Parse(args)

	if fs.NArg() < 1 {
		fmt.Fprintln(os.Stderr, "usage: admin actor [flags] <actor-id>")
		os.Exit(2)
	}
	actorID := fs.Arg(0)

	db := openDB(*dataDir, *dbPath)
	defer db.Close()

	rows, err := db.QueryContext(context.Background(),
		`SELECT track_id, level, xp FROM track_progress WHERE actor_id=? ORDER BY track_id`, actorID)
	if err != nil {
		fmt.Fprintln(os.Stderr, "query:", err)
		os.Exit(1)
	}
	defer rows.Close()

	for rows.Next() {
		var trackID string
		var level int
		var xp float64
		if err := rows.Scan(&trackID, &level, &xp); err != nil {
			fmt.Fprintln(os.Stderr, "scan:", err)
			os.Exit(1)
		}
		fmt.Printf("%-16s lvl %3d  %.1f xp\n", trackID, level, xp)
	}
	if err := rows.Err(); err != nil {
		fmt.Fprintln(os.Stderr, "rows:", err)
		os.Exit(1)
	}

	if *blob {
		var data string
		err := db.QueryRowContext(context.Background(),
			`SELECT data FROM profile_blob WHERE actor_id=?`, actorID).Scan(&data)
		switch {
		case err == sql.ErrNoRows:
			fmt.Println("(no blob)")
		case err != nil:
			fmt.Fprintln(os.Stderr, "blob:", err)
			os.Exit(1)
		default:
			fmt.Println(data)
		}
	}
}
