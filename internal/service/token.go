package service

import (
	"crypto/rand"
	"fmt"

	"gshvpn_backend/internal/model"
)

const tokenAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789"

// rejectAbove is the largest multiple of len(tokenAlphabet) that fits in a
// byte. Bytes at or above it are dropped to keep the draw uniform.
const rejectAbove = 256 - 256%len(tokenAlphabet)

// NewAccessToken draws model.TokenLength characters uniformly from
// [A-Za-z0-9] using crypto/rand. Uniqueness rests on the 62^32 keyspace,
// with the unique index on vpn_keys.token as the backstop.
func NewAccessToken() (string, error) {
	out := make([]byte, 0, model.TokenLength)
	buf := make([]byte, model.TokenLength*2)
	for len(out) < model.TokenLength {
		if _, err := rand.Read(buf); err != nil {
			return "", fmt.Errorf("read random: %w", err)
		}
		for _, b := range buf {
			if int(b) >= rejectAbove {
				continue
			}
			out = append(out, tokenAlphabet[int(b)%len(tokenAlphabet)])
			if len(out) == model.TokenLength {
				break
			}
		}
	}
	return string(out), nil
}
