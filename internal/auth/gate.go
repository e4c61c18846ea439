package auth

import (
	"errors"

	"golang.org/x/crypto/bcrypt"
)

// ErrInvalidCredentials is returned for any failed authentication, without
// distinguishing unknown user from wrong password.
var ErrInvalidCredentials = errors.New("invalid credentials")

// Principal is the identity returned by the authentication gate. The control
// plane only uses it to admit or deny calls; it never inspects anything
// beyond these fields.
type Principal struct {
	Username string
	Role     string
}

// Gate is the authentication collaborator: a credential check against a
// directory service yielding a yes/no decision plus a principal. The real
// directory lives outside this repo; deployments plug their own
// implementation in.
type Gate interface {
	Authenticate(username, password string) (*Principal, error)
}

// StaticGate authenticates a single operator account provisioned through
// configuration, with a bcrypt password hash. It stands in for the directory
// service in small deployments and in tests.
type StaticGate struct {
	Username     string
	PasswordHash string
	Role         string
}

// Authenticate implements Gate.
func (g *StaticGate) Authenticate(username, password string) (*Principal, error) {
	if username != g.Username {
		return nil, ErrInvalidCredentials
	}
	if err := ComparePassword(g.PasswordHash, password); err != nil {
		return nil, ErrInvalidCredentials
	}
	role := g.Role
	if role == "" {
		role = "admin"
	}
	return &Principal{Username: username, Role: role}, nil
}

// HashPassword bcrypt-hashes a plain password, for provisioning the static
// operator account.
func HashPassword(plain string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(plain), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}

// ComparePassword checks a plain password against a bcrypt hash.
func ComparePassword(hash, plain string) error {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(plain))
}
