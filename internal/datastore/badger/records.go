package badger

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"

	badgerdb "github.com/dgraph-io/badger/v4"

	"github.com/tidemark/tidemark/internal/model"
)

// Credential and report documents reuse the model JSON shapes directly;
// time.Time round-trips through RFC 3339 with full precision.

// SaveCredential fully replaces the record under the credential's email.
// A key-value set is already a whole-record replace.
func (s *Store) SaveCredential(ctx context.Context, cred model.Credential) error {
	cred.LastUsedAt = cred.LastUsedAt.UTC()
	raw, err := json.Marshal(cred)
	if err != nil {
		return fmt.Errorf("encode credential %q: %w", cred.Email, err)
	}
	err = s.db.Update(func(txn *badgerdb.Txn) error {
		return txn.Set(credentialKey(cred.Email), raw)
	})
	if err != nil {
		return fmt.Errorf("save credential %q: %w", cred.Email, err)
	}
	return nil
}

// GetCredential fetches the record under email; a miss is (nil, nil).
func (s *Store) GetCredential(ctx context.Context, email string) (*model.Credential, error) {
	var cred *model.Credential
	err := s.db.View(func(txn *badgerdb.Txn) error {
		raw, err := getValue(txn, credentialKey(email))
		if errors.Is(err, badgerdb.ErrKeyNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		var decoded model.Credential
		if err := json.Unmarshal(raw, &decoded); err != nil {
			return fmt.Errorf("decode credential: %w", err)
		}
		decoded.LastUsedAt = decoded.LastUsedAt.UTC()
		cred = &decoded
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("get credential %q: %w", email, err)
	}
	return cred, nil
}

// ListCredentials returns all credential records ordered by email.
func (s *Store) ListCredentials(ctx context.Context) ([]model.Credential, error) {
	return s.scanCredentials(func(model.Credential) bool { return true })
}

// CredentialsActiveSince returns credentials used at or after threshold.
func (s *Store) CredentialsActiveSince(ctx context.Context, threshold time.Time) ([]model.Credential, error) {
	threshold = threshold.UTC()
	return s.scanCredentials(func(cred model.Credential) bool {
		return !cred.LastUsedAt.Before(threshold)
	})
}

func (s *Store) scanCredentials(keep func(model.Credential) bool) ([]model.Credential, error) {
	creds := []model.Credential{}
	err := s.db.View(func(txn *badgerdb.Txn) error {
		opts := badgerdb.DefaultIteratorOptions
		opts.Prefix = credentialPrefix()
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Rewind(); it.Valid(); it.Next() {
			err := it.Item().Value(func(val []byte) error {
				var cred model.Credential
				if err := json.Unmarshal(val, &cred); err != nil {
					return fmt.Errorf("decode credential: %w", err)
				}
				cred.LastUsedAt = cred.LastUsedAt.UTC()
				if keep(cred) {
					creds = append(creds, cred)
				}
				return nil
			})
			if err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("scan credentials: %w", err)
	}

	sort.Slice(creds, func(i, j int) bool { return creds[i].Email < creds[j].Email })
	return creds, nil
}

// SaveReport fully replaces the report under (email, UTC calendar day).
func (s *Store) SaveReport(ctx context.Context, report model.Report) error {
	report.Date = report.Date.UTC()
	raw, err := json.Marshal(report)
	if err != nil {
		return fmt.Errorf("encode report %q: %w", report.Email, err)
	}
	day := model.Day(report.Date).Unix()
	err = s.db.Update(func(txn *badgerdb.Txn) error {
		return txn.Set(reportKey(report.Email, day), raw)
	})
	if err != nil {
		return fmt.Errorf("save report %q: %w", report.Email, err)
	}
	return nil
}

// GetReport fetches the report for email on the UTC calendar day of the
// given instant; a miss is (nil, nil).
func (s *Store) GetReport(ctx context.Context, email string, day time.Time) (*model.Report, error) {
	var report *model.Report
	err := s.db.View(func(txn *badgerdb.Txn) error {
		raw, err := getValue(txn, reportKey(email, model.Day(day).Unix()))
		if errors.Is(err, badgerdb.ErrKeyNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		var decoded model.Report
		if err := json.Unmarshal(raw, &decoded); err != nil {
			return fmt.Errorf("decode report: %w", err)
		}
		decoded.Date = decoded.Date.UTC()
		report = &decoded
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("get report %q: %w", email, err)
	}
	return report, nil
}
