package memory

import (
	"context"
	"slices"
	"sync"
	"time"

	autherrors "github.com/ggrighi15/fusione-dev-sub001/internal/errors"
	"github.com/ggrighi15/fusione-dev-sub001/twofactor"
)

var _ twofactor.Repo = (*TwoFactorRepo)(nil)

type TwoFactorRepo struct {
	records map[string]*twofactor.Record
	lock    sync.Mutex
}

func NewTwoFactorRepo() *TwoFactorRepo {
	return &TwoFactorRepo{
		records: make(map[string]*twofactor.Record),
	}
}

func (r *TwoFactorRepo) Get(_ context.Context, userID string) (*twofactor.Record, error) {
	r.lock.Lock()
	defer r.lock.Unlock()

	rec, ok := r.records[userID]
	if !ok {
		return nil, autherrors.Wrapf(autherrors.ErrNotFound, "two-factor record for %s", userID)
	}
	return cloneTwoFactor(rec), nil
}

func (r *TwoFactorRepo) SavePending(_ context.Context, record *twofactor.Record) (bool, error) {
	r.lock.Lock()
	defer r.lock.Unlock()

	existing, ok := r.records[record.UserID]
	if ok && existing.Enabled {
		return false, nil
	}
	rec := cloneTwoFactor(record)
	rec.Enabled = false
	if ok {
		rec.CreatedAt = existing.CreatedAt
	}
	r.records[record.UserID] = rec
	return true, nil
}

func (r *TwoFactorRepo) ClaimStep(_ context.Context, userID, secret string, step int64, at time.Time, enable bool) (bool, error) {
	r.lock.Lock()
	defer r.lock.Unlock()

	rec, ok := r.records[userID]
	if !ok || rec.Secret != secret || step <= rec.LastUsedStep {
		return false, nil
	}
	rec.LastUsedStep = step
	rec.LastUsedAt = &at
	rec.UpdatedAt = at
	if enable {
		rec.Enabled = true
	}
	return true, nil
}

func (r *TwoFactorRepo) ConsumeBackupCode(_ context.Context, userID, codeHash string, at time.Time) (bool, error) {
	r.lock.Lock()
	defer r.lock.Unlock()

	rec, ok := r.records[userID]
	if !ok || !rec.Enabled {
		return false, nil
	}
	return rec.ConsumeBackupCode(codeHash, at), nil
}

func (r *TwoFactorRepo) ReplaceBackupCodes(_ context.Context, userID string, codes []twofactor.BackupCode, at time.Time) error {
	r.lock.Lock()
	defer r.lock.Unlock()

	rec, ok := r.records[userID]
	if !ok {
		return autherrors.Wrapf(autherrors.ErrNotFound, "two-factor record for %s", userID)
	}
	rec.BackupCodes = slices.Clone(codes)
	rec.UpdatedAt = at
	return nil
}

func (r *TwoFactorRepo) SetEnabled(_ context.Context, userID string, enabled bool, at time.Time) error {
	r.lock.Lock()
	defer r.lock.Unlock()

	rec, ok := r.records[userID]
	if !ok {
		return autherrors.Wrapf(autherrors.ErrNotFound, "two-factor record for %s", userID)
	}
	rec.Enabled = enabled
	rec.UpdatedAt = at
	return nil
}

func cloneTwoFactor(rec *twofactor.Record) *twofactor.Record {
	cp := *rec
	cp.BackupCodes = slices.Clone(rec.BackupCodes)
	return &cp
}
