package grant

import (
	"crypto/rand"
	"encoding/base64"
	"fmt"
)

// opaqueValueBytes gives 256 bits of entropy, double the unguessability
// floor for authorization codes.
const opaqueValueBytes = 32

// NewOpaqueValue returns an unguessable credential value with a type prefix,
// e.g. "authz_" or "rt_". The prefix makes leaked values attributable in
// logs without decoding.
func NewOpaqueValue(prefix string) (string, error) {
	buf := make([]byte, opaqueValueBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generate opaque value: %w", err)
	}
	return prefix + base64.RawURLEncoding.EncodeToString(buf), nil
}
