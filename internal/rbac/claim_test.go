package rbac

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stockroom/stockroom/internal/platform/httpx"
)

func TestParseClaim(t *testing.T) {
	tests := []struct {
		name    string
		raw     string
		want    Claim
		wantErr bool
	}{
		{name: "simple", raw: "read:items", want: Claim{Type: "read", Value: "items"}},
		{name: "normalizes case and space", raw: " Read : Items ", want: Claim{Type: "read", Value: "items"}},
		{name: "splits at first delimiter", raw: "read:items:archived", want: Claim{Type: "read", Value: "items:archived"}},
		{name: "missing delimiter", raw: "read", wantErr: true},
		{name: "empty type", raw: ":items", wantErr: true},
		{name: "empty value", raw: "read: ", wantErr: true},
		{name: "empty", raw: "", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseClaim(tt.raw)
			if tt.wantErr {
				require.Error(t, err)
				assert.True(t, errors.Is(err, ErrInvalidClaim))
				assert.True(t, errors.Is(err, httpx.ErrValidation))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
			assert.Equal(t, tt.want.Type+":"+tt.want.Value, got.String())
		})
	}
}

func TestParseClaimsDeduplicates(t *testing.T) {
	claims, err := ParseClaims([]string{"read:items", "READ:items", "write:items"})
	require.NoError(t, err)
	assert.Equal(t, []Claim{{Type: "read", Value: "items"}, {Type: "write", Value: "items"}}, claims)

	_, err = ParseClaims([]string{"read:items", "bogus"})
	assert.ErrorIs(t, err, ErrInvalidClaim)
}

func TestClaimSet(t *testing.T) {
	set := NewClaimSet(map[string][]string{
		"read":  {"items", "Locations", "items"},
		"write": {"items"},
		"":      {"ignored"},
	})
	assert.Equal(t, 3, set.Len())
	assert.True(t, set.Has(Claim{Type: "read", Value: "locations"}))
	assert.False(t, set.Has(Claim{Type: "write", Value: "locations"}))
	assert.Equal(t, map[string][]string{
		"read":  {"items", "locations"},
		"write": {"items"},
	}, set.Map())
	assert.Equal(t, []string{"read:items", "read:locations", "write:items"}, set.Strings())

	clone := set.Clone()
	clone.Add(Claim{Type: "delete", Value: "items"})
	assert.Equal(t, 3, set.Len())
	assert.Equal(t, 4, clone.Len())
}
