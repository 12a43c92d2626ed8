package accounts

import (
	"errors"
	"fmt"

	"github.com/MarcoPoloResearchLab/guestwatch/internal/state"
)

// ErrInvalidCredentialConfig indicates a configured account is unusable.
var ErrInvalidCredentialConfig = errors.New("accounts: invalid credential config")

// Credential is one fixed identity/secret pair bound to a role.
type Credential struct {
	Username string
	Secret   string
	Role     state.Role
}

type hashedCredential struct {
	role       state.Role
	secretHash string
}

// Authenticator checks identities against a fixed set of credentials.
type Authenticator struct {
	credentials map[string]hashedCredential
}

// NewAuthenticator hashes the configured secrets and returns an Authenticator.
// Zero params select DefaultArgon2idParams.
func NewAuthenticator(credentials []Credential, params Argon2idParams) (*Authenticator, error) {
	if params == (Argon2idParams{}) {
		params = DefaultArgon2idParams
	}
	hashed := make(map[string]hashedCredential, len(credentials))
	for _, credential := range credentials {
		username := normalize(credential.Username)
		if username == "" || credential.Secret == "" {
			return nil, fmt.Errorf("%w: username and secret are required", ErrInvalidCredentialConfig)
		}
		if credential.Role != state.RoleReception && credential.Role != state.RolePolice {
			return nil, fmt.Errorf("%w: unknown role %q for %s", ErrInvalidCredentialConfig, credential.Role, username)
		}
		if _, exists := hashed[username]; exists {
			return nil, fmt.Errorf("%w: duplicate username %s", ErrInvalidCredentialConfig, username)
		}
		secretHash, err := createSecretHash(credential.Secret, params)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidCredentialConfig, err)
		}
		hashed[username] = hashedCredential{role: credential.Role, secretHash: secretHash}
	}
	return &Authenticator{credentials: hashed}, nil
}

// Authenticate returns the role bound to the identity when the secret matches.
func (a *Authenticator) Authenticate(identity, secret string) (state.Role, bool) {
	credential, ok := a.credentials[normalize(identity)]
	if !ok {
		return "", false
	}
	if verifySecret(credential.secretHash, secret) != nil {
		return "", false
	}
	return credential.role, true
}
