// Package totp derives rolling one-time codes from a shared secret. Token
// lookups accept the previous, current, and next window so modest clock skew
// between partner platforms does not break two-factor token auth.
package totp

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/binary"
	"errors"
	"time"
)

const (
	defaultLength   = 12
	defaultAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789"
)

// Config is the shared-secret TOTP setup carried on a LocalAccessInfo.
type Config struct {
	SharedSecret string        `json:"shared_secret"`
	Validity     time.Duration `json:"validity"`
	Length       int           `json:"length,omitempty"`
	Alphabet     string        `json:"alphabet,omitempty"`
}

// Codes holds the three codes of the rolling window.
type Codes struct {
	Previous string
	Current  string
	Next     string
}

// Generate returns the previous/current/next codes at the given instant.
func (c Config) Generate(now time.Time) (Codes, error) {
	if c.SharedSecret == "" {
		return Codes{}, errors.New("totp: shared secret is required")
	}
	if c.Validity <= 0 {
		return Codes{}, errors.New("totp: validity must be positive")
	}

	counter := now.Unix() / int64(c.Validity.Seconds())
	return Codes{
		Previous: c.code(counter - 1),
		Current:  c.code(counter),
		Next:     c.code(counter + 1),
	}, nil
}

// Matches reports whether the given code falls inside the rolling window.
func (c Config) Matches(now time.Time, code string) bool {
	if code == "" {
		return false
	}
	codes, err := c.Generate(now)
	if err != nil {
		return false
	}
	return code == codes.Previous || code == codes.Current || code == codes.Next
}

func (c Config) code(counter int64) string {
	length := c.Length
	if length <= 0 {
		length = defaultLength
	}
	alphabet := c.Alphabet
	if alphabet == "" {
		alphabet = defaultAlphabet
	}

	var buf [8]byte
	binary.BigEndian.PutUint64(buf[:], uint64(counter))
	mac := hmac.New(sha256.New, []byte(c.SharedSecret))
	mac.Write(buf[:])
	sum := mac.Sum(nil)

	out := make([]byte, length)
	for i := range out {
		out[i] = alphabet[int(sum[i%len(sum)])%len(alphabet)]
	}
	return string(out)
}
