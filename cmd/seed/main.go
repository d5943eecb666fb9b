// Command seed loads development fixtures into the database.
package main

import (
	"context"
	"database/sql"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/google/uuid"
	_ "github.com/lib/pq"
	"gopkg.in/yaml.v3"

	"github.com/gatherhq/api/internal/config"
	"github.com/gatherhq/api/pkg/password"
)

// Fixtures is the root of the seed YAML file.
type Fixtures struct {
	Users  []UserFixture  `yaml:"users"`
	Spaces []SpaceFixture `yaml:"spaces"`
}

// UserFixture describes a seeded user account.
type UserFixture struct {
	Email         string `yaml:"email"`
	Name          string `yaml:"name"`
	Password      string `yaml:"password"`
	PlatformAdmin bool   `yaml:"platform_admin"`
}

// SpaceFixture describes a seeded space with its initial members.
type SpaceFixture struct {
	Slug        string          `yaml:"slug"`
	Name        string          `yaml:"name"`
	Description string          `yaml:"description"`
	Visibility  string          `yaml:"visibility"`
	AutoJoin    bool            `yaml:"auto_join"`
	CreatedBy   string          `yaml:"created_by"`
	Members     []MemberFixture `yaml:"members"`
}

// MemberFixture grants a seeded user a role in a space.
type MemberFixture struct {
	Email string `yaml:"email"`
	Role  string `yaml:"role"`
}

func main() {
	dbURL := flag.String("db", "", "Database URL (defaults to DATABASE_URL or the standard DB_* env vars)")
	seedFile := flag.String("file", "migrations/seed/fixtures.yaml", "Path to the fixtures YAML file")
	clean := flag.Bool("clean", false, "Delete existing data before seeding")
	flag.Parse()

	databaseURL := *dbURL
	if databaseURL == "" {
		databaseURL = os.Getenv("DATABASE_URL")
	}
	if databaseURL == "" {
		cfg, err := config.Load()
		if err != nil {
			fatal("Error loading configuration: %v", err)
		}
		databaseURL = cfg.Database.DSN()
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	db, err := sql.Open("postgres", databaseURL)
	if err != nil {
		fatal("Error connecting to database: %v", err)
	}
	defer db.Close()

	if err := db.PingContext(ctx); err != nil {
		fatal("Error pinging database: %v", err)
	}
	fmt.Println("Connected to database")

	raw, err := os.ReadFile(*seedFile)
	if err != nil {
		fatal("Error reading fixtures file %s: %v", *seedFile, err)
	}

	var fixtures Fixtures
	if err := yaml.Unmarshal(raw, &fixtures); err != nil {
		fatal("Error parsing fixtures file: %v", err)
	}

	if *clean {
		if err := cleanDatabase(ctx, db); err != nil {
			fatal("Error cleaning database: %v", err)
		}
		fmt.Println("Cleaned existing data")
	}

	if err := seed(ctx, db, &fixtures); err != nil {
		fatal("Error seeding: %v", err)
	}

	printSummary(ctx, db)
}

func seed(ctx context.Context, db *sql.DB, fixtures *Fixtures) error {
	hasher := password.New(password.WithCost(10))
	now := time.Now().UTC()

	userIDs := make(map[string]string, len(fixtures.Users))
	for _, u := range fixtures.Users {
		hash, err := hasher.Hash(u.Password)
		if err != nil {
			return fmt.Errorf("hash password for %s: %w", u.Email, err)
		}

		id := uuid.NewString()
		_, err = db.ExecContext(ctx, `
			INSERT INTO users (id, email, name, password_hash, platform_admin, created_at, updated_at)
			VALUES ($1, $2, $3, $4, $5, $6, $6)
			ON CONFLICT (email) DO NOTHING
		`, id, u.Email, u.Name, hash, u.PlatformAdmin, now)
		if err != nil {
			return fmt.Errorf("insert user %s: %w", u.Email, err)
		}

		// The insert may have been a no-op; read the canonical id back.
		if err := db.QueryRowContext(ctx,
			`SELECT id FROM users WHERE email = $1`, u.Email).Scan(&id); err != nil {
			return fmt.Errorf("lookup user %s: %w", u.Email, err)
		}
		userIDs[u.Email] = id
		fmt.Printf("  User: %s\n", u.Email)
	}

	for _, s := range fixtures.Spaces {
		creatorID, ok := userIDs[s.CreatedBy]
		if !ok {
			return fmt.Errorf("space %s: unknown creator %q", s.Slug, s.CreatedBy)
		}

		visibility := s.Visibility
		if visibility == "" {
			visibility = "public"
		}

		spaceID := uuid.NewString()
		_, err := db.ExecContext(ctx, `
			INSERT INTO spaces (id, name, slug, description, visibility, auto_join, allow_member_posts,
				requires_payment, subscription_tier_id, created_by, created_at, updated_at)
			VALUES ($1, $2, $3, $4, $5, $6, TRUE, FALSE, NULL, $7, $8, $8)
			ON CONFLICT (slug) DO NOTHING
		`, spaceID, s.Name, s.Slug, nullIfEmpty(s.Description), visibility, s.AutoJoin, creatorID, now)
		if err != nil {
			return fmt.Errorf("insert space %s: %w", s.Slug, err)
		}

		if err := db.QueryRowContext(ctx,
			`SELECT id FROM spaces WHERE slug = $1`, s.Slug).Scan(&spaceID); err != nil {
			return fmt.Errorf("lookup space %s: %w", s.Slug, err)
		}

		members := append([]MemberFixture{{Email: s.CreatedBy, Role: "manager"}}, s.Members...)
		for _, m := range members {
			memberID, ok := userIDs[m.Email]
			if !ok {
				return fmt.Errorf("space %s: unknown member %q", s.Slug, m.Email)
			}
			role := m.Role
			if role == "" {
				role = "member"
			}

			_, err := db.ExecContext(ctx, `
				INSERT INTO space_members (id, user_id, space_id, role, status, block_type, block_expires_at,
					blocked_by, blocked_at, joined_at, updated_at)
				VALUES ($1, $2, $3, $4, 'active', NULL, NULL, NULL, NULL, $5, $5)
				ON CONFLICT (user_id, space_id) DO NOTHING
			`, uuid.NewString(), memberID, spaceID, role, now)
			if err != nil {
				return fmt.Errorf("insert member %s in %s: %w", m.Email, s.Slug, err)
			}
		}
		fmt.Printf("  Space: %s (%s, %d members)\n", s.Slug, visibility, len(members))
	}

	return nil
}

// cleanDatabase removes all seeded data in dependency order.
func cleanDatabase(ctx context.Context, db *sql.DB) error {
	tables := []string{
		"notification_outbox",
		"invites",
		"join_requests",
		"space_members",
		"spaces",
		"users",
	}
	for _, table := range tables {
		if _, err := db.ExecContext(ctx, "DELETE FROM "+table); err != nil {
			return fmt.Errorf("clean %s: %w", table, err)
		}
	}
	return nil
}

func printSummary(ctx context.Context, db *sql.DB) {
	fmt.Println("\nSeed Summary")
	fmt.Println("============")
	for _, table := range []string{"users", "spaces", "space_members"} {
		var count int
		if err := db.QueryRowContext(ctx, "SELECT COUNT(*) FROM "+table).Scan(&count); err != nil {
			continue
		}
		fmt.Printf("  %s: %d\n", table, count)
	}
}

func nullIfEmpty(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func fatal(format string, args ...any) {
	fmt.Fprintf(os.Stderr, format+"\n", args...)
	os.Exit(1)
}
