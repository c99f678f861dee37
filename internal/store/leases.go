package store

import (
	"database/sql"
	"fmt"
	"time"
)

// Lease is a mutual-exclusion lease over the shared store. At most one
// owner holds a named lease at a time; an expired lease can be taken over,
// so a crashed holder is eventually replaced.
type Lease struct {
	Name       string
	Owner      string
	AcquiredAt time.Time
	ExpiresAt  time.Time
}

// AcquireLease attempts to take or renew the named lease for owner.
// Returns true when the owner holds the lease afterwards. An unexpired
// lease held by someone else is left untouched.
func (s *Store) AcquireLease(name, owner string, ttl time.Duration) (bool, error) {
	now := time.Now().Unix()
	expires := now + int64(ttl.Seconds())

	result, err := s.db.Exec(`
		INSERT INTO leases (name, owner, acquired_at, expires_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(name) DO UPDATE SET
			owner = excluded.owner,
			acquired_at = excluded.acquired_at,
			expires_at = excluded.expires_at
		WHERE leases.owner = excluded.owner OR leases.expires_at <= ?
	`, name, owner, now, expires, now)
	if err != nil {
		return false, fmt.Errorf("failed to acquire lease %s: %w", name, err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to read rows affected: %w", err)
	}

	return affected == 1, nil
}

// ReleaseLease gives up the named lease if owner still holds it
func (s *Store) ReleaseLease(name, owner string) error {
	_, err := s.db.Exec("DELETE FROM leases WHERE name = ? AND owner = ?", name, owner)
	if err != nil {
		return fmt.Errorf("failed to release lease %s: %w", name, err)
	}
	return nil
}

// GetLease returns the current holder of the named lease, nil if none
func (s *Store) GetLease(name string) (*Lease, error) {
	var l Lease
	var acquired, expires int64

	err := s.db.QueryRow(`
		SELECT name, owner, acquired_at, expires_at FROM leases WHERE name = ?
	`, name).Scan(&l.Name, &l.Owner, &acquired, &expires)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query lease %s: %w", name, err)
	}

	l.AcquiredAt = time.Unix(acquired, 0)
	l.ExpiresAt = time.Unix(expires, 0)
	return &l, nil
}
