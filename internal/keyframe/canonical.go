package keyframe

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
)

// Domain prefixes for content hashes. The version suffix leaves room for an
// algorithm change without ambiguity.
const (
	DomainKeyframe = "kfreplay/keyframe/v1"
	DomainBody     = "kfreplay/body/v1"
	DomainState    = "kfreplay/state/v1"
)

// MarshalCanonical produces the canonical encoding of a keyframe: compact,
// no HTML escaping, strings as given, sorted user transform names and
// unrounded floats. Equal keyframes always produce identical bytes.
func MarshalCanonical(k Keyframe) ([]byte, error) {
	return Encoder{MaxDecimalPlaces: -1}.Marshal(k)
}

// HashWithDomain computes SHA256(domain + 0x00 + data) as hex.
// The null separator prevents domain/data boundary ambiguity.
func HashWithDomain(domain string, data []byte) string {
	h := sha256.New()
	h.Write([]byte(domain))
	h.Write([]byte{0x00})
	h.Write(data)
	return hex.EncodeToString(h.Sum(nil))
}

// Hash returns the content hash of a keyframe's canonical form.
func Hash(k Keyframe) (string, error) {
	data, err := MarshalCanonical(k)
	if err != nil {
		return "", fmt.Errorf("hash keyframe: %w", err)
	}
	return HashWithDomain(DomainKeyframe, data), nil
}

// MustHash is like Hash but panics on error.
// Use only in tests or when the keyframe is known to be encodable.
func MustHash(k Keyframe) string {
	h, err := Hash(k)
	if err != nil {
		panic(err)
	}
	return h
}

// HashBody returns the content hash of an encoded keyframe body as stored
// or transmitted.
func HashBody(body []byte) string {
	return HashWithDomain(DomainBody, body)
}
