package securestore

// Key names one of the fixed entries held by the store.
type Key string

const (
	KeyAccessToken          Key = "accessToken"
	KeyRefreshToken         Key = "refreshToken"
	KeyUser                 Key = "user"
	KeyProfiles             Key = "profiles"
	KeySelectedProfile      Key = "selectedProfile"
	KeyBiometricCredentials Key = "biometricCredentials"
	KeyBiometricEnabled     Key = "biometricEnabled"
)

var allKeys = []Key{
	KeyAccessToken,
	KeyRefreshToken,
	KeyUser,
	KeyProfiles,
	KeySelectedProfile,
	KeyBiometricCredentials,
	KeyBiometricEnabled,
}

// Keys returns every key the store accepts, in a stable order.
func Keys() []Key {
	return append([]Key(nil), allKeys...)
}

// Valid reports whether k is one of the accepted keys.
func (k Key) Valid() bool {
	for _, known := range allKeys {
		if k == known {
			return true
		}
	}
	return false
}

func (k Key) String() string {
	return string(k)
}
