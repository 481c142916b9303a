package auth

import (
	"strings"

	"golang.org/x/crypto/bcrypt"
)

// bcrypt only looks at the first 72 bytes and rejects longer input.
const bcryptMaxBytes = 72

func clampPassword(pw string) []byte {
	if len(pw) <= bcryptMaxBytes {
		return []byte(pw)
	}
	return []byte(strings.ToValidUTF8(pw[:bcryptMaxBytes], ""))
}

func HashPassword(pw string) (string, error) {
	b, err := bcrypt.GenerateFromPassword(clampPassword(pw), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

func CheckPassword(hash, pw string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), clampPassword(pw)) == nil
}
