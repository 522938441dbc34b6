package twofactor

import (
	"context"
	"time"
)

// BackupCode is stored hashed. A used code stays in the list with Used set.
type BackupCode struct {
	Hash   string     `json:"hash"`
	Used   bool       `json:"used"`
	UsedAt *time.Time `json:"usedAt,omitempty"`
}

// Record is the two-factor state of one user. It is never hard deleted.
type Record struct {
	UserID       string
	Secret       string // Base32 TOTP secret
	BackupCodes  []BackupCode
	Enabled      bool
	LastUsedStep int64 // Last accepted TOTP time step, guards against replay
	LastUsedAt   *time.Time
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

func (r *Record) RemainingBackupCodes() int {
	n := 0
	for _, c := range r.BackupCodes {
		if !c.Used {
			n++
		}
	}
	return n
}

// ConsumeBackupCode marks the unused code with hash as used and reports whether it found
// one. Backends that hold records in memory use it under their own lock.
func (r *Record) ConsumeBackupCode(hash string, at time.Time) bool {
	for i := range r.BackupCodes {
		c := &r.BackupCodes[i]
		if !c.Used && c.Hash == hash {
			c.Used = true
			c.UsedAt = &at
			r.LastUsedAt = &at
			r.UpdatedAt = at
			return true
		}
	}
	return false
}

// Repo stores two-factor records. Get returns errors.ErrNotFound when the user never ran
// setup. Every method that consumes a credential is a single conditional update.
type Repo interface {
	Get(ctx context.Context, userID string) (*Record, error)
	// SavePending stores a fresh pending record, replacing any earlier pending one. It
	// reports false and changes nothing when the user already has 2FA enabled.
	SavePending(ctx context.Context, record *Record) (bool, error)
	// ClaimStep accepts a TOTP step for secret if it is newer than the last accepted step.
	// With enable set the record is enabled in the same update.
	ClaimStep(ctx context.Context, userID, secret string, step int64, at time.Time, enable bool) (bool, error)
	// ConsumeBackupCode marks an unused backup code of an enabled record as used.
	ConsumeBackupCode(ctx context.Context, userID, codeHash string, at time.Time) (bool, error)
	ReplaceBackupCodes(ctx context.Context, userID string, codes []BackupCode, at time.Time) error
	SetEnabled(ctx context.Context, userID string, enabled bool, at time.Time) error
}
