package merkle

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"

	"github.com/gowebpki/jcs"
)

// DigestPayload produces the data_hash stored on an action from its
// off-ledger input/output payload: RFC 8785 canonical JSON, then sha256 hex.
// Equal payloads digest identically regardless of map ordering.
func DigestPayload(v any) (string, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return "", fmt.Errorf("merkle: payload not serializable: %w", err)
	}
	canonical, err := jcs.Transform(raw)
	if err != nil {
		return "", fmt.Errorf("merkle: canonicalization failed: %w", err)
	}
	sum := sha256.Sum256(canonical)
	return hex.EncodeToString(sum[:]), nil
}
