package auth

import (
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"

	"golang.org/x/crypto/bcrypt"
)

const (
	MinPasswordLength = 8
	// bcrypt ignores everything past 72 bytes.
	MaxPasswordLength = 72
)

const passwordSymbols = "!@#$%^&*()_+-=[]{}|;:,.<>?`~"

var ErrWeakPassword = fmt.Errorf("password must be %d-%d characters and contain a special character", MinPasswordLength, MaxPasswordLength)

// CheckPasswordPolicy applies the operator password rules.
func CheckPasswordPolicy(password string) error {
	if len(password) < MinPasswordLength || len(password) > MaxPasswordLength {
		return ErrWeakPassword
	}
	if !strings.ContainsAny(password, passwordSymbols) {
		return ErrWeakPassword
	}
	return nil
}

// HashPassword is used when provisioning operators.
func HashPassword(password string) (string, error) {
	if err := CheckPasswordPolicy(password); err != nil {
		return "", err
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}

// GeneratePassword returns a random password that passes CheckPasswordPolicy.
func GeneratePassword() (string, error) {
	b := make([]byte, 24)
	if _, err := rand.Read(b); err != nil {
		return "", errors.Join(errors.New("generate password"), err)
	}
	symbol := passwordSymbols[int(b[0])%len(passwordSymbols)]
	return base64.RawURLEncoding.EncodeToString(b[1:]) + string(symbol), nil
}
