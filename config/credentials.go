package config

import (
	"fmt"
	"log/slog"

	"github.com/aluiziolira/anemwatch/parser"
)

// ErrMissingCredentials indicates N1 or N2 is absent or unusable.
type ErrMissingCredentials struct {
	Field string
	Err   error
}

func (e ErrMissingCredentials) Error() string {
	return fmt.Errorf("missing_credentials: %s: %w", e.Field, e.Err).Error()
}

func (e ErrMissingCredentials) Unwrap() error {
	return e.Err
}

// Credentials is the immutable identifier pair submitted to the form.
type Credentials struct {
	wassit   string
	identity string
}

// NewCredentials normalises and validates the Wassit and identity-document numbers.
func NewCredentials(n1, n2 string) (Credentials, error) {
	n1 = parser.NormalizeIdentifier(n1)
	n2 = parser.NormalizeIdentifier(n2)
	if err := parser.ValidateIdentifier("N1", n1); err != nil {
		return Credentials{}, ErrMissingCredentials{Field: "N1", Err: err}
	}
	if err := parser.ValidateIdentifier("N2", n2); err != nil {
		return Credentials{}, ErrMissingCredentials{Field: "N2", Err: err}
	}
	return Credentials{wassit: n1, identity: n2}, nil
}

// Wassit returns the Wassit number (N1).
func (c Credentials) Wassit() string { return c.wassit }

// Identity returns the identity-document number (N2).
func (c Credentials) Identity() string { return c.identity }

// IsZero reports whether the credentials were never populated.
func (c Credentials) IsZero() bool {
	return c.wassit == "" || c.identity == ""
}

// String masks both identifiers.
func (c Credentials) String() string {
	return fmt.Sprintf("N1=%s N2=%s", parser.MaskIdentifier(c.wassit), parser.MaskIdentifier(c.identity))
}

// LogValue keeps clear-text identifiers out of structured logs.
func (c Credentials) LogValue() slog.Value {
	return slog.GroupValue(
		slog.String("n1", parser.MaskIdentifier(c.wassit)),
		slog.String("n2", parser.MaskIdentifier(c.identity)),
	)
}
