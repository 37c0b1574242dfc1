package gqlrequest

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"

	"gqlorm/internal/record"
)

// RequestKey identifies one execution of an operation: its canonical hash
// plus the variables it runs with. Variables encode in insertion order, so
// callers that build them the same way share a key.
func RequestKey(operationHash string, variables *record.Record) (string, error) {
	vars := "{}"
	if variables != nil && variables.Len() > 0 {
		encoded, err := json.Marshal(variables)
		if err != nil {
			return "", fmt.Errorf("failed to encode variables: %w", err)
		}
		vars = string(encoded)
	}
	return framedSHA256(operationHash, vars), nil
}

// framedSHA256 length-prefixes each part so ("ab","c") and ("a","bc") hash
// differently.
func framedSHA256(parts ...string) string {
	hash := sha256.New()
	for _, part := range parts {
		_, _ = fmt.Fprintf(hash, "%d:%s|", len(part), part)
	}
	return hex.EncodeToString(hash.Sum(nil))
}
