package authflow

import (
	"crypto/rand"
	"io"
	"math/big"

	goerrors "github.com/goliatone/go-errors"
)

const (
	passwordUppercase = "ABCDEFGHJKLMNOPQRSTUVWXYZ"
	passwordLowercase = "abcdefghijklmnopqrstuvwxyz"
	passwordDigits    = "1234567890"
	passwordSymbols   = "!-._+&^*<=>$"

	generatedPasswordLength = 16
)

// GeneratePassword produces a 16 character password guaranteed to contain
// at least one character from every class, with no symbol repeated.
func GeneratePassword() (string, error) {
	return generatePassword(rand.Reader)
}

func generatePassword(source io.Reader) (string, error) {
	all := passwordUppercase + passwordLowercase + passwordDigits + passwordSymbols

	chars := make([]byte, 0, generatedPasswordLength)
	for _, class := range []string{passwordUppercase, passwordLowercase, passwordDigits, passwordSymbols} {
		c, err := randomChar(source, class)
		if err != nil {
			return "", err
		}
		chars = append(chars, c)
	}

	usedSymbols := map[byte]bool{chars[3]: true}

	for len(chars) < generatedPasswordLength {
		c, err := randomChar(source, all)
		if err != nil {
			return "", err
		}
		if isSymbol(c) {
			if usedSymbols[c] {
				continue
			}
			usedSymbols[c] = true
		}
		chars = append(chars, c)
	}

	if err := shuffle(source, chars); err != nil {
		return "", err
	}

	return string(chars), nil
}

// GenerateSecretKey produces the opaque secret key material stored on a
// new user record. Same alphabet and guarantees as generated passwords.
func GenerateSecretKey() (string, error) {
	return GeneratePassword()
}

func randomChar(source io.Reader, alphabet string) (byte, error) {
	n, err := rand.Int(source, big.NewInt(int64(len(alphabet))))
	if err != nil {
		return 0, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to draw random character")
	}
	return alphabet[n.Int64()], nil
}

func isSymbol(c byte) bool {
	for i := 0; i < len(passwordSymbols); i++ {
		if passwordSymbols[i] == c {
			return true
		}
	}
	return false
}

func shuffle(source io.Reader, chars []byte) error {
	for i := len(chars) - 1; i > 0; i-- {
		n, err := rand.Int(source, big.NewInt(int64(i+1)))
		if err != nil {
			return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to shuffle password")
		}
		j := n.Int64()
		chars[i], chars[j] = chars[j], chars[i]
	}
	return nil
}
