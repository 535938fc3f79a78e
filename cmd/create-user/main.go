// CLI tool to create a user with a bcrypt-hashed password and a profile whose
// baseline week starts today. Onboarding fields are filled in later through
// PATCH /api/profile.
// Usage: go run ./cmd/create-user [-username name] [-email addr] [-baseline-start YYYY-MM-DD]
package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/joho/godotenv"
	"golang.org/x/crypto/bcrypt"
)

type newUser struct {
	Username      string
	Email         string
	Password      string
	BaselineStart time.Time
}

func main() {
	username := flag.String("username", "", "username (prompted if empty)")
	email := flag.String("email", "", "email (prompted if empty)")
	baselineStart := flag.String("baseline-start", "", "first day of the baseline week, YYYY-MM-DD (default today)")
	flag.Parse()

	if err := godotenv.Load(); err != nil {
		fmt.Fprintf(os.Stderr, "Error loading .env file: %v\n", err)
		os.Exit(1)
	}

	reader := bufio.NewReader(os.Stdin)
	u := newUser{
		Username: prompt(reader, "Username", *username),
		Email:    prompt(reader, "Email", *email),
		Password: prompt(reader, "Password", ""),
	}
	start, err := parseBaselineStart(*baselineStart, time.Now())
	if err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		os.Exit(1)
	}
	u.BaselineStart = start
	if err := u.validate(); err != nil {
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

	userID, token, err := createUser(ctx, conn, u)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error creating user: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("\nUser created successfully!\n")
	fmt.Printf("  ID:             %d\n", userID)
	fmt.Printf("  Username:       %s\n", u.Username)
	fmt.Printf("  Baseline start: %s\n", u.BaselineStart.Format("2006-01-02"))
	fmt.Printf("  Auth Token:     %s\n", token)
}

// prompt returns preset when set, otherwise reads a trimmed line from stdin.
func prompt(r *bufio.Reader, label, preset string) string {
	if preset != "" {
		return strings.TrimSpace(preset)
	}
	fmt.Printf("%s: ", label)
	line, _ := r.ReadString('\n')
	return strings.TrimSpace(line)
}

// parseBaselineStart reads a YYYY-MM-DD date, defaulting to now's calendar day.
func parseBaselineStart(s string, now time.Time) (time.Time, error) {
	if s == "" {
		return time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC), nil
	}
	d, err := time.ParseInLocation("2006-01-02", s, time.UTC)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid -baseline-start %q, expected YYYY-MM-DD", s)
	}
	return d, nil
}

func (u newUser) validate() error {
	switch {
	case u.Username == "":
		return errors.New("username is required")
	case strings.ContainsAny(u.Username, " \t"):
		return errors.New("username must not contain spaces")
	case !strings.Contains(u.Email, "@"):
		return errors.New("email must be an address")
	case len(u.Password) < 8:
		return errors.New("password must be at least 8 characters")
	}
	return nil
}

// createUser inserts the user and its profile in one transaction and returns
// the new id and bearer token.
func createUser(ctx context.Context, conn *pgx.Conn, u newUser) (int, string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(u.Password), bcrypt.DefaultCost)
	if err != nil {
		return 0, "", fmt.Errorf("hash password: %w", err)
	}
	token := uuid.New().String()

	var userID int
	err = pgx.BeginFunc(ctx, conn, func(tx pgx.Tx) error {
		if err := tx.QueryRow(ctx,
			`INSERT INTO users (username, email, password, auth_token)
			 VALUES (@username, @email, @password, @token) RETURNING id`,
			pgx.NamedArgs{"username": u.Username, "email": u.Email, "password": string(hash), "token": token},
		).Scan(&userID); err != nil {
			return fmt.Errorf("insert user: %w", err)
		}
		if _, err := tx.Exec(ctx,
			`INSERT INTO user_profiles (user_id, baseline_start_date) VALUES (@userID, @start)`,
			pgx.NamedArgs{"userID": userID, "start": u.BaselineStart.Format("2006-01-02")}); err != nil {
			return fmt.Errorf("insert profile: %w", err)
		}
		return nil
	})
	return userID, token, err
}
