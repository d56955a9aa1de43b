package account

import (
	"bufio"
	_ "embed"
	"strings"
	"sync"
	"unicode"

	"golang.org/x/crypto/bcrypt"

	"github.com/medipt/medipt/internal/platform/apperr"
)

const MinPasswordLength = 8

//go:embed common_passwords.txt
var commonPasswordList string

var (
	commonOnce      sync.Once
	commonPasswords map[string]struct{}
)

func isCommonPassword(pw string) bool {
	commonOnce.Do(func() {
		commonPasswords = make(map[string]struct{})
		sc := bufio.NewScanner(strings.NewReader(commonPasswordList))
		for sc.Scan() {
			line := strings.TrimSpace(sc.Text())
			if line == "" || strings.HasPrefix(line, "#") {
				continue
			}
			commonPasswords[strings.ToLower(line)] = struct{}{}
		}
	})
	_, ok := commonPasswords[strings.ToLower(pw)]
	return ok
}

// ValidatePassword enforces the password policy. email may be empty when the
// account is not known yet, in which case the similarity rule is skipped.
func ValidatePassword(pw, email string) error {
	var problems []string
	if len([]rune(pw)) < MinPasswordLength {
		problems = append(problems, "password must contain at least 8 characters")
	}
	if pw != "" && strings.IndexFunc(pw, func(r rune) bool { return !unicode.IsDigit(r) }) < 0 {
		problems = append(problems, "password cannot be entirely numeric")
	}
	if isCommonPassword(pw) {
		problems = append(problems, "password is too common")
	}
	if local, _, _ := strings.Cut(NormalizeEmail(email), "@"); len(local) >= 3 &&
		strings.Contains(strings.ToLower(pw), local) {
		problems = append(problems, "password is too similar to the email address")
	}
	if len(problems) == 0 {
		return nil
	}
	return &apperr.Error{
		Kind:    apperr.ErrWeakPassword.Kind,
		Code:    apperr.ErrWeakPassword.Code,
		Message: apperr.ErrWeakPassword.Message,
		Fields:  map[string]string{"password": strings.Join(problems, "; ")},
	}
}

// HashPassword bcrypt-hashes pw at the default cost.
func HashPassword(pw string) (string, error) {
	b, err := bcrypt.GenerateFromPassword([]byte(pw), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

func CheckPassword(hash, pw string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(pw)) == nil
}
