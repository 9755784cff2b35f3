package domain

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	dErrors "citywalk/pkg/domain-errors"
)

// TestParseID_Invariants validates the parsing invariant:
// "IDs must be non-empty, bounded, and restricted to the admin ID alphabet"
func TestParseID_Invariants(t *testing.T) {
	t.Run("rejects empty string", func(t *testing.T) {
		_, err := ParseOwnershipID("")
		require.Error(t, err)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeInvalidInput))
	})

	t.Run("accepts numeric ids", func(t *testing.T) {
		id, err := ParseOwnershipID("10086")
		require.NoError(t, err)
		assert.Equal(t, OwnershipID("10086"), id)
	})

	t.Run("accepts prefixed ids", func(t *testing.T) {
		id, err := ParseSealID("seal_night-market.01")
		require.NoError(t, err)
		assert.Equal(t, "seal_night-market.01", id.String())
	})

	t.Run("journey id is optional", func(t *testing.T) {
		id, err := ParseJourneyID("")
		require.NoError(t, err)
		assert.True(t, id.IsNil())
	})
}

func TestParseID_SecurityInvariants(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		wantErr bool
	}{
		{"SQL injection attempt", "'; DROP TABLE users;--", true},
		{"Path traversal", "../../../etc/passwd", true},
		{"Null byte injection", "s1\x00suffix", true},
		{"Oversized input", strings.Repeat("a", 1000), true},
		{"Unicode zero-width space", "s\u200B1", true},
		{"Whitespace only", "   ", true},
		{"Inner whitespace", "s\u200B1", true},

		{"Max length", strings.Repeat("a", 64), false},
		{"Simple", "u1", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseUserID(tt.input)
			if tt.wantErr {
				require.Error(t, err)
				assert.True(t, dErrors.HasCode(err, dErrors.CodeInvalidInput))
			} else {
				require.NoError(t, err)
			}
		})
	}
}

// TestAllIDTypes_ConsistentBehavior ensures all required ID types share parsing rules.
func TestAllIDTypes_ConsistentBehavior(t *testing.T) {
	for _, input := range []string{"", "bad id", strings.Repeat("x", 65)} {
		t.Run("all reject: "+input, func(t *testing.T) {
			_, errOwnership := ParseOwnershipID(input)
			_, errSeal := ParseSealID(input)
			_, errUser := ParseUserID(input)

			require.Error(t, errOwnership)
			require.Error(t, errSeal)
			require.Error(t, errUser)
		})
	}
}
