package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/tidemark/tidemark/internal/model"
)

// SaveCredential fully replaces the record stored under the credential's
// email. Delete-then-insert inside one transaction keeps stale fields from
// earlier saves out of the record.
func (s *Store) SaveCredential(ctx context.Context, cred model.Credential) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("save credential: begin tx: %w", err)
	}
	defer tx.Rollback() // No-op if committed

	if _, err := tx.ExecContext(ctx, `DELETE FROM credentials WHERE email = ?`, cred.Email); err != nil {
		return fmt.Errorf("save credential: delete previous: %w", err)
	}

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO credentials (email, device_id, name, access_token, refresh_token, last_used_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`,
		cred.Email,
		cred.DeviceID,
		cred.Name,
		cred.AccessToken,
		cred.RefreshToken,
		cred.LastUsedAt.UTC().UnixNano(),
	); err != nil {
		return fmt.Errorf("save credential: insert: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("save credential: commit: %w", err)
	}
	return nil
}

// GetCredential fetches the record under email; a miss is (nil, nil).
func (s *Store) GetCredential(ctx context.Context, email string) (*model.Credential, error) {
	var cred model.Credential
	var lastUsed int64
	err := s.db.QueryRowContext(ctx, `
		SELECT email, device_id, name, access_token, refresh_token, last_used_at
		FROM credentials
		WHERE email = ?
	`, email).Scan(&cred.Email, &cred.DeviceID, &cred.Name, &cred.AccessToken, &cred.RefreshToken, &lastUsed)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get credential %q: %w", email, err)
	}
	cred.LastUsedAt = time.Unix(0, lastUsed).UTC()
	return &cred, nil
}

// ListCredentials returns all credential records ordered by email.
func (s *Store) ListCredentials(ctx context.Context) ([]model.Credential, error) {
	return s.queryCredentials(ctx, `
		SELECT email, device_id, name, access_token, refresh_token, last_used_at
		FROM credentials
		ORDER BY email ASC
	`)
}

// CredentialsActiveSince returns credentials used at or after threshold.
func (s *Store) CredentialsActiveSince(ctx context.Context, threshold time.Time) ([]model.Credential, error) {
	return s.queryCredentials(ctx, `
		SELECT email, device_id, name, access_token, refresh_token, last_used_at
		FROM credentials
		WHERE last_used_at >= ?
		ORDER BY email ASC
	`, threshold.UTC().UnixNano())
}

func (s *Store) queryCredentials(ctx context.Context, query string, args ...any) ([]model.Credential, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query credentials: %w", err)
	}
	defer rows.Close()

	creds := []model.Credential{}
	for rows.Next() {
		var cred model.Credential
		var lastUsed int64
		if err := rows.Scan(&cred.Email, &cred.DeviceID, &cred.Name, &cred.AccessToken, &cred.RefreshToken, &lastUsed); err != nil {
			return nil, fmt.Errorf("scan credential: %w", err)
		}
		cred.LastUsedAt = time.Unix(0, lastUsed).UTC()
		creds = append(creds, cred)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate credentials: %w", err)
	}

	return creds, nil
}

// SaveReport fully replaces the report under (email, UTC calendar day).
func (s *Store) SaveReport(ctx context.Context, report model.Report) error {
	day := model.Day(report.Date).Unix()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("save report: begin tx: %w", err)
	}
	defer tx.Rollback() // No-op if committed

	if _, err := tx.ExecContext(ctx, `
		DELETE FROM reports WHERE email = ? AND day = ?
	`, report.Email, day); err != nil {
		return fmt.Errorf("save report: delete previous: %w", err)
	}

	wfh := 0
	if report.WFH {
		wfh = 1
	}
	if _, err := tx.ExecContext(ctx, `
		INSERT INTO reports (email, day, spent_time, call_time, date, wfh)
		VALUES (?, ?, ?, ?, ?, ?)
	`,
		report.Email,
		day,
		report.SpentTime,
		report.CallTime,
		report.Date.UTC().UnixNano(),
		wfh,
	); err != nil {
		return fmt.Errorf("save report: insert: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("save report: commit: %w", err)
	}
	return nil
}

// GetReport fetches the report for email on the UTC calendar day of the
// given instant; a miss is (nil, nil).
func (s *Store) GetReport(ctx context.Context, email string, day time.Time) (*model.Report, error) {
	var report model.Report
	var date int64
	var wfh int
	err := s.db.QueryRowContext(ctx, `
		SELECT email, spent_time, call_time, date, wfh
		FROM reports
		WHERE email = ? AND day = ?
	`, email, model.Day(day).Unix()).Scan(&report.Email, &report.SpentTime, &report.CallTime, &date, &wfh)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get report %q: %w", email, err)
	}
	report.Date = time.Unix(0, date).UTC()
	report.WFH = wfh != 0
	return &report, nil
}
