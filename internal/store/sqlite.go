package store

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/dukerupert/gatekeep/internal/model"
)

// SQLite is a Store backed by a sqlite database opened via database.Open.
// Useful when subscription records should survive a process restart; timers
// are still rebuilt in memory by the caller on startup.
type SQLite struct {
	db *sql.DB
}

// NewSQLite creates a sqlite-backed store over an open database.
func NewSQLite(db *sql.DB) *SQLite {
	return &SQLite{db: db}
}

const subscriptionCols = `principal, plan_id, expires_at, active, created_at, updated_at`

func scanSubscription(scanner interface{ Scan(...any) error }) (*model.Subscription, error) {
	var sub model.Subscription
	var active int
	err := scanner.Scan(
		&sub.Principal, &sub.PlanID, &sub.ExpiresAt, &active,
		&sub.CreatedAt, &sub.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	sub.Active = active != 0
	return &sub, nil
}

func (s *SQLite) Get(principal int64) (*model.Subscription, error) {
	row := s.db.QueryRow(`SELECT `+subscriptionCols+` FROM subscriptions WHERE principal = ?`, principal)
	sub, err := scanSubscription(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get subscription: %w", err)
	}
	return sub, nil
}

func (s *SQLite) Put(sub model.Subscription) error {
	var active int
	if sub.Active {
		active = 1
	}
	now := time.Now().UTC()
	_, err := s.db.Exec(
		`INSERT INTO subscriptions (principal, plan_id, expires_at, active, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?)
		 ON CONFLICT(principal) DO UPDATE SET
		   plan_id = excluded.plan_id,
		   expires_at = excluded.expires_at,
		   active = excluded.active,
		   updated_at = excluded.updated_at`,
		sub.Principal, sub.PlanID, sub.ExpiresAt.UTC(), active, now, now,
	)
	if err != nil {
		return fmt.Errorf("put subscription: %w", err)
	}
	return nil
}

// ActivePrincipals returns every principal with an active record. Used at
// startup to rebuild expiry timers, which do not survive a restart.
func (s *SQLite) ActivePrincipals() ([]int64, error) {
	rows, err := s.db.Query(`SELECT principal FROM subscriptions WHERE active = 1`)
	if err != nil {
		return nil, fmt.Errorf("list active principals: %w", err)
	}
	defer rows.Close()

	var out []int64
	for rows.Next() {
		var p int64
		if err := rows.Scan(&p); err != nil {
			return nil, fmt.Errorf("scan principal: %w", err)
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func (s *SQLite) Deactivate(principal int64) error {
	_, err := s.db.Exec(
		`UPDATE subscriptions SET active = 0, updated_at = ? WHERE principal = ?`,
		time.Now().UTC(), principal,
	)
	if err != nil {
		return fmt.Errorf("deactivate subscription: %w", err)
	}
	return nil
}
