package securestore

import (
	"errors"
	"fmt"
	"io/fs"
	"os"

	"github.com/jmcleod/ironsession/internal/util"
)

const (
	deviceKeySize     = 32
	wrappingKeyInfo   = "ironsession:wrapping_key:v1"
	passSaltInfo      = "ironsession:salt_pass:v1"
	secretSaltInfo    = "ironsession:salt_secret:v1"
	derivedSaltLength = 16
)

// Argon2idParams configures passphrase stretching for DeriveWrappingKey.
type Argon2idParams = util.Argon2idParams

// DefaultArgon2idParams returns the production passphrase parameters.
func DefaultArgon2idParams() Argon2idParams {
	return util.DefaultArgon2idParams()
}

// LoadOrCreateDeviceKey reads the 32-byte device secret at path, creating it
// with mode 0600 on first use.
func LoadOrCreateDeviceKey(path string) ([]byte, error) {
	key, err := os.ReadFile(path)
	switch {
	case err == nil:
		if len(key) != deviceKeySize {
			return nil, fmt.Errorf("device key %s: want %d bytes, got %d", path, deviceKeySize, len(key))
		}
		return key, nil
	case !errors.Is(err, fs.ErrNotExist):
		return nil, fmt.Errorf("reading device key: %w", err)
	}

	key, err = util.RandomBytes(deviceKeySize)
	if err != nil {
		return nil, err
	}
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o600)
	if err != nil {
		if errors.Is(err, fs.ErrExist) {
			return LoadOrCreateDeviceKey(path)
		}
		return nil, fmt.Errorf("creating device key: %w", err)
	}
	if _, err := f.Write(key); err != nil {
		f.Close()
		return nil, fmt.Errorf("writing device key: %w", err)
	}
	if err := f.Close(); err != nil {
		return nil, fmt.Errorf("writing device key: %w", err)
	}
	return key, nil
}

// DeriveWrappingKey derives the store wrapping key from the device secret.
// With an empty passphrase the key depends on the device secret alone;
// otherwise both the device secret and the passphrase are required.
func DeriveWrappingKey(deviceKey []byte, passphrase string, params Argon2idParams) ([]byte, error) {
	if len(deviceKey) != deviceKeySize {
		return nil, fmt.Errorf("device key must be %d bytes, got %d", deviceKeySize, len(deviceKey))
	}
	if passphrase == "" {
		return util.HKDF(deviceKey, nil, []byte(wrappingKeyInfo))
	}

	saltPass, err := util.HKDF(deviceKey, nil, []byte(passSaltInfo))
	if err != nil {
		return nil, err
	}
	defer util.WipeBytes(saltPass)
	saltSecret, err := util.HKDF(deviceKey, nil, []byte(secretSaltInfo))
	if err != nil {
		return nil, err
	}
	defer util.WipeBytes(saltSecret)

	return util.NewTwoSecretKey(passphrase, saltPass[:derivedSaltLength], params, deviceKey, saltSecret[:derivedSaltLength], []byte(wrappingKeyInfo))
}
