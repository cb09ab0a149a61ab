package service

import (
	"crypto/rand"
	"math/big"
	"regexp"
	"strings"

	"github.com/opentake/multicam-server-go/internal/config"
)

// Session codes are typed by humans and scanned from QR codes, so the
// alphabet stays within unambiguous upper-case alphanumerics.
const sessionCodeChars = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

var sessionCodePattern = regexp.MustCompile(`^[A-Z0-9]{6}$`)

func generateSessionCode() string {
	chars := []byte(sessionCodeChars)
	code := make([]byte, config.SessionCodeLength)

	for i := 0; i < config.SessionCodeLength; i++ {
		n, _ := rand.Int(rand.Reader, big.NewInt(int64(len(chars))))
		code[i] = chars[n.Int64()]
	}

	return string(code)
}

// NormalizeSessionCode upper-cases and trims a caller-supplied join code.
// Codes are case-insensitive on lookup.
func NormalizeSessionCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

// ValidSessionCode reports whether a normalized code has the expected shape.
func ValidSessionCode(code string) bool {
	return sessionCodePattern.MatchString(code)
}
