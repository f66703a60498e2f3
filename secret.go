package argstruct

import (
	"fmt"
	"log/slog"
)

// SecretPlaceholder is what a [Secret] renders as in any formatting or logging context.
const SecretPlaceholder = "******"

// Secret holds a sensitive string value. Any implicit rendering - fmt verbs, %#v, structured
// logging - yields [SecretPlaceholder]; the real value is only available through an explicit
// [Secret.Reveal] call. This is a leak guard for accidental printing, not a cryptographic
// guarantee: code holding the Secret can always reveal it.
//
// Comparison works on the real value, so a Secret can be used as a map key or compared with ==
// against another Secret.
type Secret string

// Reveal returns the real underlying value.
func (s Secret) Reveal() string {
	return string(s)
}

// String implements [fmt.Stringer], returning the placeholder.
func (s Secret) String() string {
	return SecretPlaceholder
}

// GoString implements [fmt.GoStringer] so that %#v is masked as well.
func (s Secret) GoString() string {
	return fmt.Sprintf("argstruct.Secret(%q)", SecretPlaceholder)
}

// LogValue implements [slog.LogValuer] so structured log records never carry the real value.
func (s Secret) LogValue() slog.Value {
	return slog.StringValue(SecretPlaceholder)
}

// MarshalText masks the value during text-based serialization (JSON, YAML, etc.).
func (s Secret) MarshalText() ([]byte, error) {
	return []byte(SecretPlaceholder), nil
}
