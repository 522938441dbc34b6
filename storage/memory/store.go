// Package memory holds the volatile backend. Every repo guards its maps with its own
// lock and copies records in and out, so callers never share state with the store.
package memory

// Store groups one repo per domain.
type Store struct {
	Clients   *ClientRepo
	Codes     *CodeRepo
	Refresh   *RefreshRepo
	TwoFactor *TwoFactorRepo
	Sessions  *SessionRepo
	Access    *AccessRepo
	Audit     *AuditRepo
	Users     *UserRepo
}

func New() *Store {
	return &Store{
		Clients:   NewClientRepo(),
		Codes:     NewCodeRepo(),
		Refresh:   NewRefreshRepo(),
		TwoFactor: NewTwoFactorRepo(),
		Sessions:  NewSessionRepo(),
		Access:    NewAccessRepo(),
		Audit:     NewAuditRepo(),
		Users:     NewUserRepo(),
	}
}
