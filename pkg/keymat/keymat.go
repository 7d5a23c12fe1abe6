// Package keymat decodes user-supplied private key material.
//
// A key may arrive as a JSON-style byte array (the format wallet apps export),
// as a hex string with or without a 0x prefix, or as base58. The input is
// classified by shape before decoding, so each format reports its own failure
// instead of cascading through try/catch chains. Error messages never echo
// the input.
package keymat

import (
	"encoding/hex"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/mr-tron/base58"
)

// ErrInvalidKeyEncoding is returned when the input matches none of the
// supported encodings, or matches one but fails to decode.
var ErrInvalidKeyEncoding = errors.New("unrecognized key encoding")

// Secret holds raw private key bytes for the duration of one signing
// operation. It must never be logged, persisted, or serialized; callers are
// expected to Zero it as soon as signing completes or fails.
type Secret struct {
	raw []byte
}

// Parse decodes a user-supplied key string into raw bytes.
//
// Formats are tried in fixed precedence:
//  1. byte-array literal: starts with '[' or contains a comma
//  2. hex: after an optional 0x prefix, all hex digits, even length >= 64
//  3. base58: everything else
//
// The shape check claims the input: a string that looks like a byte array but
// contains a non-byte token fails outright rather than falling through.
func Parse(input string) (*Secret, error) {
	s := strings.TrimSpace(input)
	if s == "" {
		return nil, ErrInvalidKeyEncoding
	}

	switch {
	case looksLikeByteArray(s):
		raw, err := parseByteArray(s)
		if err != nil {
			return nil, fmt.Errorf("%w: malformed byte array", ErrInvalidKeyEncoding)
		}
		return &Secret{raw: raw}, nil

	case looksLikeHex(s):
		raw, err := hex.DecodeString(stripHexPrefix(s))
		if err != nil {
			return nil, fmt.Errorf("%w: malformed hex", ErrInvalidKeyEncoding)
		}
		return &Secret{raw: raw}, nil

	default:
		raw, err := base58.Decode(s)
		if err != nil {
			return nil, fmt.Errorf("%w: not valid base58", ErrInvalidKeyEncoding)
		}
		return &Secret{raw: raw}, nil
	}
}

// Bytes returns the raw key material, or nil after Zero.
func (s *Secret) Bytes() []byte {
	if s == nil {
		return nil
	}
	return s.raw
}

// Len returns the number of key bytes held.
func (s *Secret) Len() int {
	if s == nil {
		return 0
	}
	return len(s.raw)
}

// Zero wipes the key material. Safe to call more than once.
func (s *Secret) Zero() {
	if s == nil {
		return
	}
	for i := range s.raw {
		s.raw[i] = 0
	}
	s.raw = nil
}

func looksLikeByteArray(s string) bool {
	return strings.HasPrefix(s, "[") || strings.Contains(s, ",")
}

func looksLikeHex(s string) bool {
	h := stripHexPrefix(s)
	if len(h) < 64 || len(h)%2 != 0 {
		return false
	}
	for _, c := range h {
		switch {
		case c >= '0' && c <= '9':
		case c >= 'a' && c <= 'f':
		case c >= 'A' && c <= 'F':
		default:
			return false
		}
	}
	return true
}

func stripHexPrefix(s string) string {
	if strings.HasPrefix(s, "0x") || strings.HasPrefix(s, "0X") {
		return s[2:]
	}
	return s
}

func parseByteArray(s string) ([]byte, error) {
	s = strings.TrimPrefix(s, "[")
	s = strings.TrimSuffix(s, "]")

	parts := strings.Split(s, ",")
	raw := make([]byte, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p == "" {
			return nil, errors.New("empty element")
		}
		v, err := strconv.ParseUint(p, 10, 8)
		if err != nil {
			return nil, err
		}
		raw = append(raw, byte(v))
	}
	if len(raw) == 0 {
		return nil, errors.New("empty array")
	}
	return raw, nil
}
