// Package cryptox implements password hashing for stored credentials.
package cryptox

import (
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"

	"github.com/Cybrite/your-tube/internal/common"
	"golang.org/x/crypto/argon2"
)

const (
	saltLen    = 16
	keyLen     = 32
	argonTime  = 1
	argonMem   = 64 * 1024
	argonLanes = 4
)

var ErrEmptyPassword = errors.New("empty password")

func deriveKey(password, salt []byte) []byte {
	return argon2.IDKey(password, salt, argonTime, argonMem, argonLanes, keyLen)
}

// HashPassword returns an argon2id hash of password encoded as
// "base64(salt):base64(key)". A fresh salt is drawn for every call.
func HashPassword(password string) (string, error) {
	if password == "" {
		return "", ErrEmptyPassword
	}

	salt := common.GenerateRandByteArray(saltLen)
	key := deriveKey([]byte(password), salt)

	return fmt.Sprintf("%s:%s",
		base64.RawStdEncoding.EncodeToString(salt),
		base64.RawStdEncoding.EncodeToString(key),
	), nil
}

// VerifyPassword reports whether password matches encoded. Malformed
// encodings never match.
func VerifyPassword(password, encoded string) bool {
	saltB64, keyB64, ok := strings.Cut(encoded, ":")
	if !ok {
		return false
	}

	salt, err := base64.RawStdEncoding.DecodeString(saltB64)
	if err != nil || len(salt) == 0 {
		return false
	}

	want, err := base64.RawStdEncoding.DecodeString(keyB64)
	if err != nil || len(want) != keyLen {
		return false
	}

	got := deriveKey([]byte(password), salt)
	defer common.WipeByteArray(got)

	return subtle.ConstantTimeCompare(got, want) == 1
}
