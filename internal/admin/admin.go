// Package admin содержит проверку учётных данных администраторов.
package admin

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
)

// Verifier проверяет учётные данные администратора.
type Verifier interface {
	Verify(login, password string) bool
}

// StaticVerifier сверяет пароль с заранее заданными sha256-дайджестами из конфигурации.
type StaticVerifier struct {
	digests map[string]string
}

// NewStaticVerifier разбирает строку вида "login:sha256hex,login2:sha256hex".
func NewStaticVerifier(credentials string) (*StaticVerifier, error) {
	digests := make(map[string]string)

	for _, pair := range strings.Split(credentials, ",") {
		pair = strings.TrimSpace(pair)
		if pair == "" {
			continue
		}

		login, digest, ok := strings.Cut(pair, ":")
		if !ok || login == "" || digest == "" {
			return nil, fmt.Errorf("malformed admin credential %q", pair)
		}
		if _, err := hex.DecodeString(digest); err != nil || len(digest) != sha256.Size*2 {
			return nil, fmt.Errorf("admin credential %q: digest is not sha256 hex", login)
		}

		digests[login] = strings.ToLower(digest)
	}

	return &StaticVerifier{digests: digests}, nil
}

// Verify сообщает, совпадает ли пароль с дайджестом для указанного логина.
func (v *StaticVerifier) Verify(login, password string) bool {
	expected, ok := v.digests[login]
	if !ok {
		return false
	}

	sum := sha256.Sum256([]byte(password))
	actual := hex.EncodeToString(sum[:])

	return hmac.Equal([]byte(actual), []byte(expected))
}
