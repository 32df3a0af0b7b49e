// Package validation содержит генерацию и проверку кодов погашения и QR-нагрузки.
package validation

import (
	"crypto/rand"
	"encoding/base32"
	"errors"
	"fmt"
	"strings"
)

// Alphabet задаёт алфавит Crockford base32: без I, L, O, U, чтобы код было легко ввести вручную.
const Alphabet = "0123456789ABCDEFGHJKMNPQRSTVWXYZ"

const (
	// CodeEntropyBytes задаёт 128 бит случайности на код.
	CodeEntropyBytes = 16
	// CodeLength: 26 символов base32 и один контрольный символ.
	CodeLength = 27
	// PayloadPrefix предшествует коду в содержимом QR. Все символы входят в алфавитный режим QR.
	PayloadPrefix = "BOOMCARD:R1:"
)

// ErrInvalidCode возвращается для кода неверной длины, с чужими символами или неверным контрольным символом.
var ErrInvalidCode = errors.New("invalid redemption code")

var encoding = base32.NewEncoding(Alphabet).WithPadding(base32.NoPadding)

var codePoints = func() [256]int {
	var t [256]int
	for i := range t {
		t[i] = -1
	}
	for i := 0; i < len(Alphabet); i++ {
		t[Alphabet[i]] = i
	}
	return t
}()

// NewCode генерирует криптографически случайный код погашения с контрольным символом.
func NewCode() (string, error) {
	buf := make([]byte, CodeEntropyBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("read random: %w", err)
	}
	body := encoding.EncodeToString(buf)
	return body + string(Alphabet[checkDigit(body)]), nil
}

// IsValidCode проверяет длину, алфавит и контрольный символ (алгоритм Луна по модулю 32).
func IsValidCode(code string) bool {
	if len(code) != CodeLength {
		return false
	}

	n := len(Alphabet)
	sum := 0
	factor := 1

	for i := len(code) - 1; i >= 0; i-- {
		cp := codePoints[code[i]]
		if cp < 0 {
			return false
		}
		addend := factor * cp
		if factor == 2 {
			factor = 1
		} else {
			factor = 2
		}
		sum += addend/n + addend%n
	}

	return sum%n == 0
}

func checkDigit(body string) int {
	n := len(Alphabet)
	sum := 0
	factor := 2

	for i := len(body) - 1; i >= 0; i-- {
		addend := factor * codePoints[body[i]]
		if factor == 2 {
			factor = 1
		} else {
			factor = 2
		}
		sum += addend/n + addend%n
	}

	return (n - sum%n) % n
}

// EncodePayload возвращает строку для отображения в QR-коде.
func EncodePayload(code string) string {
	return PayloadPrefix + code
}

// ParseCode нормализует ввод терминала: содержимое QR, код как есть, нижний регистр,
// дефисы и пробелы при ручном вводе. Возвращает ErrInvalidCode, если код не проходит проверку.
func ParseCode(input string) (string, error) {
	s := strings.ToUpper(strings.TrimSpace(input))
	s = strings.TrimPrefix(s, PayloadPrefix)

	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		switch r {
		case '-', ' ':
			continue
		case 'O':
			r = '0'
		case 'I', 'L':
			r = '1'
		}
		b.WriteRune(r)
	}

	code := b.String()
	if !IsValidCode(code) {
		return "", ErrInvalidCode
	}
	return code, nil
}
