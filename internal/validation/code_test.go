package validation

import (
	"strings"
	"testing"
)

func TestNewCode(t *testing.T) {
	seen := make(map[string]struct{})

	for i := 0; i < 1000; i++ {
		code, err := NewCode()
		if err != nil {
			t.Fatalf("NewCode error: %v", err)
		}
		if len(code) != CodeLength {
			t.Fatalf("len(code) = %d, want %d", len(code), CodeLength)
		}
		if !IsValidCode(code) {
			t.Fatalf("generated code %q does not pass its own check", code)
		}
		if _, ok := seen[code]; ok {
			t.Fatalf("duplicate code %q", code)
		}
		seen[code] = struct{}{}
	}
}

func TestIsValidCode(t *testing.T) {
	body := strings.Repeat("0", CodeLength-1)
	zero := body + string(Alphabet[checkDigit(body)])

	tests := []struct {
		name  string
		code  string
		valid bool
	}{
		{
			name:  "all zeros with check char",
			code:  zero,
			valid: true,
		},
		{
			name:  "wrong length",
			code:  zero[1:],
			valid: false,
		},
		{
			name:  "letter outside alphabet",
			code:  "U" + zero[1:],
			valid: false,
		},
		{
			name:  "empty string",
			code:  "",
			valid: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := IsValidCode(tt.code)
			if got != tt.valid {
				t.Fatalf("IsValidCode(%q) = %v, want %v", tt.code, got, tt.valid)
			}
		})
	}
}

func TestIsValidCode_DetectsSingleSubstitution(t *testing.T) {
	code, err := NewCode()
	if err != nil {
		t.Fatalf("NewCode error: %v", err)
	}

	for i := 0; i < len(code); i++ {
		for j := 0; j < len(Alphabet); j++ {
			if Alphabet[j] == code[i] {
				continue
			}
			mutated := code[:i] + string(Alphabet[j]) + code[i+1:]
			if IsValidCode(mutated) {
				t.Fatalf("substitution at %d (%q -> %q) not detected", i, code[i], Alphabet[j])
			}
		}
	}
}

func TestParseCode(t *testing.T) {
	code, err := NewCode()
	if err != nil {
		t.Fatalf("NewCode error: %v", err)
	}

	grouped := code[:9] + "-" + code[9:18] + "-" + code[18:]

	inputs := []string{
		code,
		EncodePayload(code),
		strings.ToLower(code),
		"  " + grouped + "\n",
	}

	for _, in := range inputs {
		got, err := ParseCode(in)
		if err != nil {
			t.Fatalf("ParseCode(%q) error: %v", in, err)
		}
		if got != code {
			t.Fatalf("ParseCode(%q) = %q, want %q", in, got, code)
		}
	}

	if _, err := ParseCode("BOOMCARD:R1:not-a-code"); err != ErrInvalidCode {
		t.Fatalf("expected ErrInvalidCode, got %v", err)
	}
}
