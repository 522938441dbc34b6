package twofactor

import (
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/pquerna/otp"
	"github.com/pquerna/otp/totp"

	"github.com/ggrighi15/fusione-dev-sub001/token"
)

const (
	period          = 30 * time.Second
	totpDigits      = 6
	backupCodeBytes = 4 // 8 hex characters
)

var validateOpts = totp.ValidateOpts{
	Period:    uint(period / time.Second),
	Digits:    otp.DigitsSix,
	Algorithm: otp.AlgorithmSHA1,
}

func timeStep(t time.Time) int64 {
	return t.Unix() / int64(period/time.Second)
}

func isTOTPFormat(code string) bool {
	if len(code) != totpDigits {
		return false
	}
	for _, r := range code {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

// matchStep returns the time step within +/- window of now whose code equals passcode.
func matchStep(secret, passcode string, now time.Time, window int) (int64, bool) {
	if !isTOTPFormat(passcode) {
		return 0, false
	}
	for offset := -window; offset <= window; offset++ {
		at := now.Add(time.Duration(offset) * period)
		expected, err := totp.GenerateCodeCustom(secret, at, validateOpts)
		if err != nil {
			return 0, false
		}
		if subtle.ConstantTimeCompare([]byte(expected), []byte(passcode)) == 1 {
			return timeStep(at), true
		}
	}
	return 0, false
}

func newBackupCodes(n int) ([]string, []BackupCode, error) {
	plain := make([]string, 0, n)
	stored := make([]BackupCode, 0, n)
	for i := 0; i < n; i++ {
		code, err := token.RandomHex(backupCodeBytes)
		if err != nil {
			return nil, nil, errors.Wrap(err, "failed to generate backup code")
		}
		plain = append(plain, code)
		stored = append(stored, BackupCode{Hash: hashBackupCode(code)})
	}
	return plain, stored, nil
}

// normaliseBackupCode accepts codes typed with spaces, dashes or upper case.
func normaliseBackupCode(code string) (string, bool) {
	code = strings.ToLower(strings.NewReplacer("-", "", " ", "").Replace(code))
	if len(code) != backupCodeBytes*2 {
		return "", false
	}
	if _, err := hex.DecodeString(code); err != nil {
		return "", false
	}
	return code, true
}

func hashBackupCode(code string) string {
	sum := sha256.Sum256([]byte(code))
	return hex.EncodeToString(sum[:])
}
