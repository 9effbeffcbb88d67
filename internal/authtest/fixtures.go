package authtest

import "github.com/jmcleod/ironsession/auth"

// Password is the password of every fixture account.
const Password = "correct horse battery staple"

// SingleProfile returns an account with exactly one profile.
func SingleProfile() Account {
	return Account{
		User:     auth.User{ID: "u-1", Email: "ana@example.com", Name: "Ana"},
		Password: Password,
		Profiles: auth.Profiles{
			{ID: "p-1", Name: "Ana", Role: "manager", CompanyName: "Acme", CompanyID: "c-1"},
		},
	}
}

// MultiProfile returns an account with two profiles at different companies.
func MultiProfile() Account {
	return Account{
		User:     auth.User{ID: "u-2", Email: "ben@example.com", Name: "Ben", PhoneNumber: "+15550100"},
		Password: Password,
		Profiles: auth.Profiles{
			{ID: "p-2", Name: "Ben", Role: "cook", CompanyName: "Acme", CompanyID: "c-1"},
			{ID: "p-3", Name: "Ben", Role: "owner", CompanyName: "Globex", CompanyID: "c-2", Avatar: "https://example.com/ben.png"},
		},
	}
}

// NoProfiles returns an account with no profiles.
func NoProfiles() Account {
	return Account{
		User:     auth.User{ID: "u-3", Email: "cy@example.com", Name: "Cy"},
		Password: Password,
	}
}

// Credentials returns the login credentials of a.
func (a Account) Credentials() auth.Credentials {
	return auth.Credentials{Email: a.User.Email, Password: a.Password}
}
