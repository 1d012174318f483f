package auth

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

func testArgon2idParams() Argon2idParams {
	return Argon2idParams{
		MemoryKiB:   MinArgon2MemoryKiB,
		Iterations:  MinArgon2Iterations,
		Parallelism: 1,
		SaltLength:  16,
		KeyLength:   32,
	}
}

func testHashers(t *testing.T) map[string]PasswordHasher {
	t.Helper()
	b, err := NewBcryptHasher(MinBcryptCost)
	require.NoError(t, err)
	a, err := NewArgon2idHasher(testArgon2idParams())
	require.NoError(t, err)
	return map[string]PasswordHasher{"bcrypt": b, "argon2id": a}
}

func TestPasswordHasher_HashAndVerify(t *testing.T) {
	for name, h := range testHashers(t) {
		t.Run(name, func(t *testing.T) {
			for _, pw := range []string{"secret1", "", "päss wörd ✓", strings.Repeat("x", 72)} {
				hash, err := h.Hash(pw)
				require.NoError(t, err)
				assert.NotEqual(t, pw, hash)
				assert.True(t, h.Verify(pw, hash), "password %q should verify", pw)
				assert.False(t, h.Verify(pw+"!", hash))
			}
		})
	}
}

func TestPasswordHasher_SaltedPerCall(t *testing.T) {
	for name, h := range testHashers(t) {
		t.Run(name, func(t *testing.T) {
			h1, err := h.Hash("secret1")
			require.NoError(t, err)
			h2, err := h.Hash("secret1")
			require.NoError(t, err)

			assert.NotEqual(t, h1, h2)
			assert.True(t, h.Verify("secret1", h1))
			assert.True(t, h.Verify("secret1", h2))
		})
	}
}

func TestPasswordHasher_VerifyMalformedHash(t *testing.T) {
	malformed := []string{
		"",
		"plaintext",
		"$2a$",
		"$2b$10$tooShort",
		"$argon2id$",
		"$argon2id$v=19$m=65536,t=3,p=1$!!!$!!!",
		"$argon2id$v=18$m=65536,t=3,p=1$c2FsdHNhbHRzYWx0$aGFzaGhhc2hoYXNoaGFzaA",
		"$argon2id$v=19$m=abc,t=3,p=1$c2FsdHNhbHRzYWx0$aGFzaGhhc2hoYXNoaGFzaA",
		"$argon2id$v=19$m=999999999,t=3,p=1$c2FsdHNhbHRzYWx0$aGFzaGhhc2hoYXNoaGFzaA",
	}
	for name, h := range testHashers(t) {
		t.Run(name, func(t *testing.T) {
			for _, hash := range malformed {
				assert.NotPanics(t, func() {
					assert.False(t, h.Verify("secret1", hash), "hash %q", hash)
				})
			}
		})
	}
}

func TestPasswordHasher_CrossAlgorithmVerify(t *testing.T) {
	hashers := testHashers(t)
	bcryptHash, err := hashers["bcrypt"].Hash("secret1")
	require.NoError(t, err)
	argonHash, err := hashers["argon2id"].Hash("secret1")
	require.NoError(t, err)

	assert.True(t, hashers["argon2id"].Verify("secret1", bcryptHash))
	assert.True(t, hashers["bcrypt"].Verify("secret1", argonHash))
	assert.True(t, strings.HasPrefix(argonHash, "$argon2id$v=19$m=19456,t=2,p=1$"))
}

func TestNewBcryptHasher_EnforcesMinimumCost(t *testing.T) {
	_, err := NewBcryptHasher(bcrypt.MinCost)
	assert.ErrorIs(t, err, ErrWorkFactorTooLow)

	_, err = NewBcryptHasher(bcrypt.MaxCost + 1)
	assert.Error(t, err)

	h, err := NewBcryptHasher(12)
	require.NoError(t, err)
	hash, err := h.Hash("secret1")
	require.NoError(t, err)
	cost, err := bcrypt.Cost([]byte(hash))
	require.NoError(t, err)
	assert.Equal(t, 12, cost)
}

func TestNewArgon2idHasher_EnforcesMinimumCost(t *testing.T) {
	p := testArgon2idParams()
	p.MemoryKiB = 8 * 1024
	_, err := NewArgon2idHasher(p)
	assert.ErrorIs(t, err, ErrWorkFactorTooLow)

	p = testArgon2idParams()
	p.Iterations = 1
	_, err = NewArgon2idHasher(p)
	assert.ErrorIs(t, err, ErrWorkFactorTooLow)
}

func TestBcryptHasher_RejectsLongPasswords(t *testing.T) {
	h, err := NewBcryptHasher(MinBcryptCost)
	require.NoError(t, err)

	_, err = h.Hash(strings.Repeat("a", 73))
	assert.ErrorIs(t, err, ErrPasswordTooLong)
}

func TestNewPasswordHasher(t *testing.T) {
	h, err := NewPasswordHasher("", 0)
	require.NoError(t, err)
	assert.IsType(t, &BcryptHasher{}, h)

	h, err = NewPasswordHasher("ARGON2ID", 0)
	require.NoError(t, err)
	assert.IsType(t, &Argon2idHasher{}, h)

	_, err = NewPasswordHasher("md5", 0)
	assert.Error(t, err)

	_, err = NewPasswordHasher("bcrypt", 4)
	assert.ErrorIs(t, err, ErrWorkFactorTooLow)
}

func BenchmarkBcryptHash(b *testing.B) {
	h, err := NewBcryptHasher(MinBcryptCost)
	require.NoError(b, err)
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := h.Hash("benchmark-password"); err != nil {
			b.Fatal(err)
		}
	}
}

func BenchmarkArgon2idHash(b *testing.B) {
	h, err := NewArgon2idHasher(DefaultArgon2idParams())
	require.NoError(b, err)
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := h.Hash("benchmark-password"); err != nil {
			b.Fatal(err)
		}
	}
}
