// CLI tool to apply pending schema migrations from db/.
// Applied files are recorded in the migrations table; each file and its record
// commit in one transaction, so a failed file leaves nothing half-applied.
// Usage: go run ./cmd/migrate [-dir db] [-status]
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/joho/godotenv"
)

// migrationName is YYYY-MM-DD-NNN-description.sql.
var migrationName = regexp.MustCompile(`^(\d{4}-\d{2}-\d{2}-\d{3})-(.+)\.sql$`)

type migration struct {
	Path        string
	File        string
	Description string
}

func main() {
	dirFlag := flag.String("dir", "", "migrations directory (default $MIGRATIONS_DIR or db)")
	status := flag.Bool("status", false, "list pending migrations without applying them")
	flag.Parse()

	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		fmt.Fprintf(os.Stderr, "Error loading .env: %v\n", err)
		os.Exit(1)
	}

	dir := *dirFlag
	if dir == "" {
		dir = os.Getenv("MIGRATIONS_DIR")
	}
	if dir == "" {
		dir = "db"
	}
	all, err := loadMigrations(dir)
	if err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		os.Exit(1)
	}

	ctx := context.Background()
	conn, err := pgx.Connect(ctx, os.Getenv("DB_URL"))
	if err != nil {
		fmt.Fprintf(os.Stderr, "Unable to connect to database: %v\n", err)
		os.Exit(1)
	}
	defer conn.Close(ctx)

	applied, err := appliedMigrations(ctx, conn)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error reading migrations table: %v\n", err)
		os.Exit(1)
	}
	todo := pending(all, applied)

	if *status {
		for _, m := range todo {
			fmt.Printf("  pending: %s (%s)\n", m.File, m.Description)
		}
		fmt.Printf("%d of %d migration(s) pending.\n", len(todo), len(all))
		return
	}

	for _, m := range todo {
		if err := apply(ctx, conn, m); err != nil {
			fmt.Fprintf(os.Stderr, "%v\n", err)
			os.Exit(1)
		}
		fmt.Printf("  applied: %s\n", m.File)
	}
	if len(todo) == 0 {
		fmt.Println("No pending migrations.")
	} else {
		fmt.Printf("\n%d migration(s) applied.\n", len(todo))
	}
}

// loadMigrations lists dir's .sql files in apply order. A file that does not
// follow the naming scheme is an error, since its order would be ambiguous.
func loadMigrations(dir string) ([]migration, error) {
	paths, err := filepath.Glob(filepath.Join(dir, "*.sql"))
	if err != nil {
		return nil, err
	}
	if len(paths) == 0 {
		return nil, fmt.Errorf("no migration files found in %s", dir)
	}
	sort.Strings(paths)

	out := make([]migration, 0, len(paths))
	for _, p := range paths {
		file := filepath.Base(p)
		if !migrationName.MatchString(file) {
			return nil, fmt.Errorf("%s: expected YYYY-MM-DD-NNN-description.sql", file)
		}
		out = append(out, migration{Path: p, File: file, Description: descriptionFromFilename(file)})
	}
	return out, nil
}

// descriptionFromFilename strips the date/sequence prefix and .sql suffix and
// turns dashes into spaces.
func descriptionFromFilename(file string) string {
	m := migrationName.FindStringSubmatch(file)
	if m == nil {
		return strings.TrimSuffix(file, ".sql")
	}
	return strings.ReplaceAll(m[2], "-", " ")
}

func pending(all []migration, applied map[string]bool) []migration {
	var out []migration
	for _, m := range all {
		if !applied[m.File] {
			out = append(out, m)
		}
	}
	return out
}

// appliedMigrations reads the migrations table. Before the first migration
// creates it, nothing has been applied.
func appliedMigrations(ctx context.Context, conn *pgx.Conn) (map[string]bool, error) {
	var exists bool
	if err := conn.QueryRow(ctx, "SELECT to_regclass('migrations') IS NOT NULL").Scan(&exists); err != nil {
		return nil, err
	}
	applied := map[string]bool{}
	if !exists {
		return applied, nil
	}
	rows, err := conn.Query(ctx, "SELECT migration FROM migrations")
	if err != nil {
		return nil, err
	}
	names, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return nil, err
	}
	for _, n := range names {
		applied[n] = true
	}
	return applied, nil
}

func apply(ctx context.Context, conn *pgx.Conn, m migration) error {
	content, err := os.ReadFile(m.Path)
	if err != nil {
		return fmt.Errorf("read %s: %w", m.File, err)
	}
	return pgx.BeginFunc(ctx, conn, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, string(content)); err != nil {
			return fmt.Errorf("run %s: %w", m.File, err)
		}
		if _, err := tx.Exec(ctx,
			"INSERT INTO migrations (migration, description) VALUES ($1, $2)",
			m.File, m.Description); err != nil {
			return fmt.Errorf("record %s: %w", m.File, err)
		}
		return nil
	})
}
