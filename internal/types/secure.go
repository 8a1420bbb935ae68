package types

const redactedPlaceholder = "***REDACTED***"

// SecretString holds a credential (database URL, prediction API key) and
// redacts itself in fmt output and JSON so config dumps never leak it.
type SecretString string

// String returns the redacted placeholder.
func (s SecretString) String() string {
	return redactedPlaceholder
}

// MarshalJSON encodes the redacted placeholder.
func (s SecretString) MarshalJSON() ([]byte, error) {
	return []byte(`"` + redactedPlaceholder + `"`), nil
}

// Unmask returns the raw value. Only call it at the point of use.
func (s SecretString) Unmask() string {
	return string(s)
}
