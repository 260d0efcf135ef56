package auth

// PASSWORD HASHING
//
// Passwords are hashed with argon2id. Parameters follow the OWASP minimum for argon2id: 19 MiB memory,
// 2 iterations, 1 lane, 32-byte key, 16-byte random salt.
//
// Hash format (PHC string, self-describing so parameters can change later
// without invalidating stored hashes):
//
//	$argon2id$v=19$m=19456,t=2,p=1$<base64 salt>$<base64 key>

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"

	"golang.org/x/crypto/argon2"
)

// ErrPasswordMismatch is returned by Verify when the password is wrong.
var ErrPasswordMismatch = errors.New("auth: invalid password")

// Params are the argon2id cost parameters.
type Params struct {
	Memory      uint32 // KiB
	Iterations  uint32
	Parallelism uint8
	SaltLength  uint32
	KeyLength   uint32
}

// DefaultParams is what production hashes use.
var DefaultParams = Params{
	Memory:      19456,
	Iterations:  2,
	Parallelism: 1,
	SaltLength:  16,
	KeyLength:   32,
}

// PasswordService provides argon2id hashing and verification.
//
// It's a struct (not free functions) so that the parameters can be injected
// in tests: 19 MiB per hash adds up quickly across a test suite.
type PasswordService struct {
	params Params
}

// NewPasswordService creates a PasswordService with DefaultParams.
func NewPasswordService() *PasswordService {
	return &PasswordService{params: DefaultParams}
}

// NewPasswordServiceForTest uses tiny parameters (64 KiB, 1 iteration).
// Do NOT use in production.
func NewPasswordServiceForTest() *PasswordService {
	return &PasswordService{params: Params{
		Memory:      64,
		Iterations:  1,
		Parallelism: 1,
		SaltLength:  16,
		KeyLength:   32,
	}}
}

// Hash derives an argon2id key from plaintext with a fresh random salt and
// returns it as a PHC string.
func (p *PasswordService) Hash(plaintext string) (string, error) {
	salt := make([]byte, p.params.SaltLength)
	if _, err := rand.Read(salt); err != nil {
		return "", fmt.Errorf("auth: generating salt: %w", err)
	}

	key := argon2.IDKey([]byte(plaintext), salt,
		p.params.Iterations, p.params.Memory, p.params.Parallelism, p.params.KeyLength)

	return fmt.Sprintf("$argon2id$v=%d$m=%d,t=%d,p=%d$%s$%s",
		argon2.Version,
		p.params.Memory, p.params.Iterations, p.params.Parallelism,
		base64.RawStdEncoding.EncodeToString(salt),
		base64.RawStdEncoding.EncodeToString(key),
	), nil
}

// Verify checks plaintext against a stored PHC hash. The parameters are read
// from the hash itself, not from the service.
//
// Returns nil on match, ErrPasswordMismatch on a wrong password and another
// error when the hash can't be parsed.
func (p *PasswordService) Verify(hash, plaintext string) error {
	params, salt, want, err := decodeHash(hash)
	if err != nil {
		return err
	}

	got := argon2.IDKey([]byte(plaintext), salt,
		params.Iterations, params.Memory, params.Parallelism, params.KeyLength)

	// Constant-time so response timing doesn't reveal how many bytes matched.
	if subtle.ConstantTimeCompare(got, want) != 1 {
		return ErrPasswordMismatch
	}
	return nil
}

func decodeHash(hash string) (Params, []byte, []byte, error) {
	parts := strings.Split(hash, "$")
	if len(parts) != 6 || parts[1] != "argon2id" {
		return Params{}, nil, nil, errors.New("auth: not an argon2id hash")
	}

	var version int
	if _, err := fmt.Sscanf(parts[2], "v=%d", &version); err != nil {
		return Params{}, nil, nil, fmt.Errorf("auth: parsing hash version: %w", err)
	}
	if version != argon2.Version {
		return Params{}, nil, nil, fmt.Errorf("auth: unsupported argon2 version %d", version)
	}

	var params Params
	if _, err := fmt.Sscanf(parts[3], "m=%d,t=%d,p=%d",
		&params.Memory, &params.Iterations, &params.Parallelism); err != nil {
		return Params{}, nil, nil, fmt.Errorf("auth: parsing hash parameters: %w", err)
	}

	salt, err := base64.RawStdEncoding.DecodeString(parts[4])
	if err != nil {
		return Params{}, nil, nil, fmt.Errorf("auth: decoding salt: %w", err)
	}
	key, err := base64.RawStdEncoding.DecodeString(parts[5])
	if err != nil {
		return Params{}, nil, nil, fmt.Errorf("auth: decoding key: %w", err)
	}
	if len(key) == 0 {
		return Params{}, nil, nil, errors.New("auth: empty key in hash")
	}
	params.SaltLength = uint32(len(salt))
	params.KeyLength = uint32(len(key))

	return params, salt, key, nil
}
