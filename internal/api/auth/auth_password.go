package auth

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"

	"golang.org/x/crypto/argon2"
	"golang.org/x/crypto/bcrypt"
)

const (
	// MinBcryptCost is the lowest bcrypt cost accepted at construction.
	MinBcryptCost = bcrypt.DefaultCost

	// Argon2id floors (OWASP minimum profile).
	MinArgon2MemoryKiB  = 19 * 1024
	MinArgon2Iterations = 2

	// bcrypt only reads the first 72 bytes of its input.
	maxBcryptPasswordBytes = 72
)

var (
	ErrPasswordTooLong  = errors.New("password must not exceed 72 bytes")
	ErrWorkFactorTooLow = errors.New("password hashing work factor below minimum")
)

// PasswordHasher turns plaintext passwords into salted one-way hashes and checks them.
type PasswordHasher interface {
	Hash(plaintext string) (string, error)
	Verify(plaintext, hash string) bool
}

var _ PasswordHasher = (*BcryptHasher)(nil)
var _ PasswordHasher = (*Argon2idHasher)(nil)

type BcryptHasher struct {
	cost int
}

func NewBcryptHasher(cost int) (*BcryptHasher, error) {
	if cost < MinBcryptCost {
		return nil, fmt.Errorf("%w: bcrypt cost %d < %d", ErrWorkFactorTooLow, cost, MinBcryptCost)
	}
	if cost > bcrypt.MaxCost {
		return nil, fmt.Errorf("bcrypt cost %d exceeds maximum %d", cost, bcrypt.MaxCost)
	}
	return &BcryptHasher{cost: cost}, nil
}

func (h *BcryptHasher) Hash(plaintext string) (string, error) {
	if len(plaintext) > maxBcryptPasswordBytes {
		return "", ErrPasswordTooLong
	}
	hashed, err := bcrypt.GenerateFromPassword([]byte(plaintext), h.cost)
	if err != nil {
		return "", fmt.Errorf("failed to hash password: %w", err)
	}
	return string(hashed), nil
}

func (h *BcryptHasher) Verify(plaintext, hash string) bool {
	return verifyPassword(plaintext, hash)
}

type Argon2idParams struct {
	MemoryKiB   uint32
	Iterations  uint32
	Parallelism uint8
	SaltLength  uint32
	KeyLength   uint32
}

func DefaultArgon2idParams() Argon2idParams {
	return Argon2idParams{
		MemoryKiB:   64 * 1024,
		Iterations:  3,
		Parallelism: 1,
		SaltLength:  16,
		KeyLength:   32,
	}
}

type Argon2idHasher struct {
	params Argon2idParams
}

func NewArgon2idHasher(p Argon2idParams) (*Argon2idHasher, error) {
	if p.MemoryKiB < MinArgon2MemoryKiB || p.Iterations < MinArgon2Iterations {
		return nil, fmt.Errorf("%w: argon2id m=%d t=%d", ErrWorkFactorTooLow, p.MemoryKiB, p.Iterations)
	}
	if p.Parallelism == 0 {
		p.Parallelism = 1
	}
	if p.SaltLength < 16 {
		p.SaltLength = 16
	}
	if p.KeyLength < 32 {
		p.KeyLength = 32
	}
	return &Argon2idHasher{params: p}, nil
}

// Hash returns a PHC string: $argon2id$v=19$m=<kib>,t=<iter>,p=<par>$<salt>$<key>
func (h *Argon2idHasher) Hash(plaintext string) (string, error) {
	salt := make([]byte, h.params.SaltLength)
	if _, err := rand.Read(salt); err != nil {
		return "", fmt.Errorf("failed to generate salt: %w", err)
	}
	key := argon2.IDKey([]byte(plaintext), salt, h.params.Iterations, h.params.MemoryKiB, h.params.Parallelism, h.params.KeyLength)

	b64 := base64.RawStdEncoding
	return fmt.Sprintf("$argon2id$v=%d$m=%d,t=%d,p=%d$%s$%s",
		argon2.Version, h.params.MemoryKiB, h.params.Iterations, h.params.Parallelism,
		b64.EncodeToString(salt), b64.EncodeToString(key)), nil
}

func (h *Argon2idHasher) Verify(plaintext, hash string) bool {
	return verifyPassword(plaintext, hash)
}

// NewPasswordHasher builds the hasher named by algorithm ("bcrypt" or "argon2id").
func NewPasswordHasher(algorithm string, bcryptCost int) (PasswordHasher, error) {
	switch strings.ToLower(algorithm) {
	case "", "bcrypt":
		if bcryptCost == 0 {
			bcryptCost = MinBcryptCost
		}
		return NewBcryptHasher(bcryptCost)
	case "argon2id":
		return NewArgon2idHasher(DefaultArgon2idParams())
	default:
		return nil, fmt.Errorf("unsupported password algorithm %q", algorithm)
	}
}

// verifyPassword dispatches on the hash prefix so hashes from either algorithm verify.
// Malformed input is a mismatch.
func verifyPassword(plaintext, hash string) bool {
	switch {
	case strings.HasPrefix(hash, "$2a$"), strings.HasPrefix(hash, "$2b$"), strings.HasPrefix(hash, "$2y$"):
		return bcrypt.CompareHashAndPassword([]byte(hash), []byte(plaintext)) == nil
	case strings.HasPrefix(hash, "$argon2id$"):
		return verifyArgon2id(plaintext, hash)
	default:
		return false
	}
}

func verifyArgon2id(plaintext, encoded string) bool {
	parts := strings.Split(encoded, "$")
	if len(parts) != 6 || parts[1] != "argon2id" {
		return false
	}
	if parts[2] != fmt.Sprintf("v=%d", argon2.Version) {
		return false
	}
	var mem, it uint32
	var par uint8
	if _, err := fmt.Sscanf(parts[3], "m=%d,t=%d,p=%d", &mem, &it, &par); err != nil {
		return false
	}
	// Refuse parameters far above anything this service produces.
	if mem == 0 || mem > 1024*1024 || it == 0 || it > 16 || par == 0 {
		return false
	}
	b64 := base64.RawStdEncoding
	salt, err := b64.DecodeString(parts[4])
	if err != nil || len(salt) < 8 {
		return false
	}
	expected, err := b64.DecodeString(parts[5])
	if err != nil || len(expected) < 16 || len(expected) > 128 {
		return false
	}
	key := argon2.IDKey([]byte(plaintext), salt, it, mem, par, uint32(len(expected)))
	return subtle.ConstantTimeCompare(key, expected) == 1
}
