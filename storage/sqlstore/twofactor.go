package sqlstore

import (
	"context"
	"database/sql"
	"time"

	"github.com/pkg/errors"

	autherrors "github.com/ggrighi15/fusione-dev-sub001/internal/errors"
	"github.com/ggrighi15/fusione-dev-sub001/twofactor"
)

// backupCodeAttempts bounds the compare-and-swap loop on the backup code blob.
const backupCodeAttempts = 5

var _ twofactor.Repo = (*TwoFactorRepo)(nil)

type TwoFactorRepo struct {
	db *DB
}

func (r *TwoFactorRepo) Get(ctx context.Context, userID string) (*twofactor.Record, error) {
	rec, _, err := r.get(ctx, userID)
	return rec, err
}

// get also returns the raw backup code column for compare-and-swap updates.
func (r *TwoFactorRepo) get(ctx context.Context, userID string) (*twofactor.Record, string, error) {
	var (
		rec                  twofactor.Record
		codes                string
		lastUsedAt           sql.NullInt64
		createdAt, updatedAt int64
	)
	err := r.db.queryRow(ctx, `SELECT user_id, secret, backup_codes, enabled, last_used_step, last_used_at, created_at, updated_at
		FROM two_factor WHERE user_id = ?`, userID).
		Scan(&rec.UserID, &rec.Secret, &codes, &rec.Enabled, &rec.LastUsedStep, &lastUsedAt, &createdAt, &updatedAt)
	if err != nil {
		return nil, "", scanErr(err, "two-factor record for "+userID)
	}
	if err := decodeJSON(codes, &rec.BackupCodes); err != nil {
		return nil, "", err
	}
	rec.LastUsedAt = fromNullNanos(lastUsedAt)
	rec.CreatedAt = fromNanos(createdAt)
	rec.UpdatedAt = fromNanos(updatedAt)
	return &rec, codes, nil
}

// SavePending upserts unless the stored record is enabled.
func (r *TwoFactorRepo) SavePending(ctx context.Context, rec *twofactor.Record) (bool, error) {
	codes, err := encodeJSON(rec.BackupCodes)
	if err != nil {
		return false, err
	}
	n, err := r.db.exec(ctx, `INSERT INTO two_factor
		(user_id, secret, backup_codes, enabled, last_used_step, last_used_at, created_at, updated_at)
		VALUES (?, ?, ?, 0, ?, NULL, ?, ?)
		ON CONFLICT (user_id) DO UPDATE SET
			secret = excluded.secret,
			backup_codes = excluded.backup_codes,
			last_used_step = excluded.last_used_step,
			last_used_at = NULL,
			updated_at = excluded.updated_at
		WHERE two_factor.enabled = 0`,
		rec.UserID, rec.Secret, codes, rec.LastUsedStep, nanos(rec.CreatedAt), nanos(rec.UpdatedAt))
	if err != nil {
		return false, errors.Wrap(err, "[TwoFactorRepo.SavePending]")
	}
	return n == 1, nil
}

func (r *TwoFactorRepo) ClaimStep(ctx context.Context, userID, secret string, step int64, at time.Time, enable bool) (bool, error) {
	query := `UPDATE two_factor SET last_used_step = ?, last_used_at = ?, updated_at = ?`
	if enable {
		query += `, enabled = 1`
	}
	query += ` WHERE user_id = ? AND secret = ? AND last_used_step < ?`

	n, err := r.db.exec(ctx, query, step, nanos(at), nanos(at), userID, secret, step)
	if err != nil {
		return false, errors.Wrap(err, "[TwoFactorRepo.ClaimStep]")
	}
	return n == 1, nil
}

// ConsumeBackupCode swaps the JSON blob only if nobody changed it since it was read, and
// rereads on contention.
func (r *TwoFactorRepo) ConsumeBackupCode(ctx context.Context, userID, codeHash string, at time.Time) (bool, error) {
	for attempt := 0; attempt < backupCodeAttempts; attempt++ {
		rec, raw, err := r.get(ctx, userID)
		if autherrors.Is(err, autherrors.ErrNotFound) {
			return false, nil
		}
		if err != nil {
			return false, errors.Wrap(err, "[TwoFactorRepo.ConsumeBackupCode]")
		}
		if !rec.Enabled || !rec.ConsumeBackupCode(codeHash, at) {
			return false, nil
		}

		updated, err := encodeJSON(rec.BackupCodes)
		if err != nil {
			return false, err
		}
		n, err := r.db.exec(ctx, `UPDATE two_factor SET backup_codes = ?, last_used_at = ?, updated_at = ?
			WHERE user_id = ? AND backup_codes = ? AND enabled = 1`,
			updated, nanos(at), nanos(at), userID, raw)
		if err != nil {
			return false, errors.Wrap(err, "[TwoFactorRepo.ConsumeBackupCode]")
		}
		if n == 1 {
			return true, nil
		}
	}
	return false, autherrors.Transient(errors.Errorf("[TwoFactorRepo.ConsumeBackupCode] contention on %s", userID))
}

func (r *TwoFactorRepo) ReplaceBackupCodes(ctx context.Context, userID string, codes []twofactor.BackupCode, at time.Time) error {
	blob, err := encodeJSON(codes)
	if err != nil {
		return err
	}
	n, err := r.db.exec(ctx, `UPDATE two_factor SET backup_codes = ?, updated_at = ? WHERE user_id = ?`, blob, nanos(at), userID)
	if err != nil {
		return errors.Wrap(err, "[TwoFactorRepo.ReplaceBackupCodes]")
	}
	if n == 0 {
		return autherrors.Wrapf(autherrors.ErrNotFound, "two-factor record for %s", userID)
	}
	return nil
}

func (r *TwoFactorRepo) SetEnabled(ctx context.Context, userID string, enabled bool, at time.Time) error {
	n, err := r.db.exec(ctx, `UPDATE two_factor SET enabled = ?, updated_at = ? WHERE user_id = ?`, flag(enabled), nanos(at), userID)
	if err != nil {
		return errors.Wrap(err, "[TwoFactorRepo.SetEnabled]")
	}
	if n == 0 {
		return autherrors.Wrapf(autherrors.ErrNotFound, "two-factor record for %s", userID)
	}
	return nil
}
