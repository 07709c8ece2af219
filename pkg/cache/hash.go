package cache

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
)

// Canonicalize returns a key-order-independent JSON encoding of input.
// Raw JSON ([]byte or json.RawMessage) is parsed rather than re-quoted and
// must hold exactly one value.
func Canonicalize(input any) ([]byte, error) {
	var raw []byte
	switch v := input.(type) {
	case json.RawMessage:
		raw = v
	case []byte:
		raw = v
	default:
		b, err := json.Marshal(input)
		if err != nil {
			return nil, fmt.Errorf("failed to encode input: %w", err)
		}
		raw = b
	}

	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var generic any
	if err := dec.Decode(&generic); err != nil {
		return nil, fmt.Errorf("failed to decode input: %w", err)
	}
	if err := dec.Decode(&struct{}{}); !errors.Is(err, io.EOF) {
		return nil, errors.New("failed to decode input: trailing data after JSON value")
	}

	// encoding/json writes map keys in sorted order.
	out, err := json.Marshal(generic)
	if err != nil {
		return nil, fmt.Errorf("failed to encode canonical input: %w", err)
	}
	return out, nil
}

// HashInput returns the hex SHA-256 of the canonical encoding of input
// together with that encoding.
func HashInput(input any) (string, []byte, error) {
	canonical, err := Canonicalize(input)
	if err != nil {
		return "", nil, err
	}
	sum := sha256.Sum256(canonical)
	return hex.EncodeToString(sum[:]), canonical, nil
}
