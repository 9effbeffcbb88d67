package util

import (
	"crypto/sha256"
	"errors"
	"fmt"
	"io"

	"golang.org/x/crypto/argon2"
	"golang.org/x/crypto/hkdf"
)

const HKDFKeyLength = 32

// Argon2idParams configures Argon2id key derivation.
type Argon2idParams struct {
	Time        uint32 `json:"time"`
	MemoryKiB   uint32 `json:"memory"`
	Parallelism uint8  `json:"parallelism"`
	KeyLen      uint32 `json:"key_len"`
}

func DefaultArgon2idParams() Argon2idParams {
	return Argon2idParams{
		Time:        3,
		MemoryKiB:   64 * 1024,
		Parallelism: 4,
		KeyLen:      32,
	}
}

func ValidateArgon2idParams(p Argon2idParams) error {
	switch {
	case p.KeyLen != 32:
		return errors.New("argon2id key length must be 32 bytes")
	case p.Time < 1:
		return errors.New("argon2id time must be at least 1")
	case p.MemoryKiB < 8*uint32(p.Parallelism):
		return errors.New("argon2id memory must be at least 8 KiB per lane")
	case p.Parallelism < 1:
		return errors.New("argon2id parallelism must be at least 1")
	}
	return nil
}

func DeriveArgon2idKey(passphrase string, salt []byte, params Argon2idParams) ([]byte, error) {
	if err := ValidateArgon2idParams(params); err != nil {
		return nil, err
	}
	return argon2.IDKey([]byte(passphrase), salt, params.Time, params.MemoryKiB, params.Parallelism, params.KeyLen), nil
}

func HKDF(seed []byte, salt []byte, info []byte) ([]byte, error) {
	h := hkdf.New(sha256.New, seed, salt, info)
	k := make([]byte, HKDFKeyLength)
	if _, err := io.ReadFull(h, k); err != nil {
		return nil, fmt.Errorf("reading from HKDF: %w", err)
	}
	return k, nil
}

// NewTwoSecretKey combines a passphrase-derived key and a secret-derived key
// so that neither input alone is enough to recompute the result.
func NewTwoSecretKey(passphrase string, saltPass []byte, argonParams Argon2idParams, secret []byte, saltSecret []byte, info []byte) ([]byte, error) {
	kPass, err := DeriveArgon2idKey(Normalize(passphrase), saltPass, argonParams)
	if err != nil {
		return nil, fmt.Errorf("deriving k_pass: %w", err)
	}
	defer WipeBytes(kPass)

	kSecret, err := HKDF(secret, saltSecret, info)
	if err != nil {
		return nil, fmt.Errorf("deriving k_secret: %w", err)
	}
	defer WipeBytes(kSecret)

	result, err := Xor(kPass, kSecret)
	if err != nil {
		return nil, fmt.Errorf("combining keys: %w", err)
	}
	return result, nil
}
