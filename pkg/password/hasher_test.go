package password

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHasher_HashAndVerify(t *testing.T) {
	h := New(WithCost(4)) // cheapest cost, tests only

	hash, err := h.Hash("Sup3rSecret")
	require.NoError(t, err)
	assert.NotEqual(t, "Sup3rSecret", hash)

	assert.NoError(t, h.Verify("Sup3rSecret", hash))
	assert.ErrorIs(t, h.Verify("wrong", hash), ErrPasswordMismatch)
	assert.ErrorIs(t, h.Verify("Sup3rSecret", "not-a-bcrypt-hash"), ErrInvalidHash)
}

func TestHasher_Validate(t *testing.T) {
	h := New()

	tests := []struct {
		name     string
		password string
		wantErr  error
	}{
		{"valid", "Sup3rSecret", nil},
		{"too short", "Ab1", ErrPasswordTooShort},
		{"no uppercase", "lowercase1", ErrPasswordNoUppercase},
		{"no lowercase", "UPPERCASE1", ErrPasswordNoLowercase},
		{"no number", "NoNumbersHere", ErrPasswordNoNumber},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := h.Validate(tt.password)
			if tt.wantErr == nil {
				assert.NoError(t, err)
			} else {
				assert.ErrorIs(t, err, tt.wantErr)
			}
		})
	}
}

func TestValidateWithPolicy_Special(t *testing.T) {
	policy := Policy{MinLength: 8, RequireSpecial: true}

	assert.ErrorIs(t, ValidateWithPolicy("NoSpecial1", policy), ErrPasswordNoSpecial)
	assert.NoError(t, ValidateWithPolicy("With!Special1", policy))
}

func TestHasher_NeedsRehash(t *testing.T) {
	h := New(WithCost(4))

	hash, err := h.Hash("Sup3rSecret")
	require.NoError(t, err)
	assert.False(t, h.NeedsRehash(hash))

	stronger := New(WithCost(6))
	assert.True(t, stronger.NeedsRehash(hash))
	assert.True(t, h.NeedsRehash("garbage"))
}

func TestGenerateSecureToken(t *testing.T) {
	a, err := GenerateSecureToken(32)
	require.NoError(t, err)
	b, err := GenerateSecureToken(32)
	require.NoError(t, err)

	assert.NotEqual(t, a, b)
	assert.Len(t, a, 44) // 32 bytes base64-encoded with padding
}
