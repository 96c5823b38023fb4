package dictionary

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tinoosan/walletledger/internal/slug"
)

func TestDefaults(t *testing.T) {
	defs := Defaults()
	require.Len(t, defs, 15)
	assert.Equal(t, "Ăn uống", defs[0].Name)
	assert.Equal(t, GroupDaily, defs[0].Group)
	assert.Equal(t, GroupOther, defs[len(defs)-1].Group)

	seen := map[string]bool{}
	for _, d := range defs {
		key := slug.Key(d.Name)
		assert.False(t, seen[key], "duplicate default %q", d.Name)
		seen[key] = true
		assert.NotEmpty(t, d.Icon, d.Name)
	}
}

func TestCategoriesFor(t *testing.T) {
	assert.Len(t, CategoriesFor(nil), 15)

	income := GroupIncome
	got := CategoriesFor(&income)
	require.Len(t, got, 4)
	for _, d := range got {
		assert.Equal(t, GroupIncome, d.Group)
	}

	unknown := Group("misc")
	assert.Empty(t, CategoriesFor(&unknown))
}
