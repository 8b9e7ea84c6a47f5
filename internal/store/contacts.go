package store

import (
	"context"
	"fmt"
	"time"

	"github.com/gettogether/peersync/internal/contacts"
)

// LoadContacts returns the persisted contacts for an account. The banned
// and online flags are runtime state and are not stored.
func (db *DB) LoadContacts(ctx context.Context, accountID string) ([]contacts.Contact, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT uri, display_name, custom_name, avatar_path
		FROM contacts
		WHERE account_id = ?
		ORDER BY uri`, accountID)
	if err != nil {
		return nil, fmt.Errorf("load contacts: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []contacts.Contact
	for rows.Next() {
		var c contacts.Contact
		if err := rows.Scan(&c.URI, &c.DisplayName, &c.CustomName, &c.AvatarPath); err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// SaveContacts replaces the persisted contact set for an account in one
// transaction.
func (db *DB) SaveContacts(ctx context.Context, accountID string, cts []contacts.Contact) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `DELETE FROM contacts WHERE account_id = ?`, accountID); err != nil {
		return fmt.Errorf("clear contacts: %w", err)
	}

	now := time.Now().UnixMilli()
	for _, c := range cts {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO contacts (account_id, uri, display_name, custom_name, avatar_path, updated_at)
			VALUES (?, ?, ?, ?, ?, ?)`,
			accountID, c.URI, c.DisplayName, c.CustomName, c.AvatarPath, now); err != nil {
			return fmt.Errorf("insert contact %q: %w", c.URI, err)
		}
	}
	return tx.Commit()
}
