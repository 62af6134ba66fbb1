package model

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNewKeyRejectsUnregisteredCategory(t *testing.T) {
	_, err := NewKey(Category("bogus"), "user", "1", nil)
	require.ErrorIs(t, err, ErrInvalidCategory)
}

func TestKeyEqualityIgnoresParamOrder(t *testing.T) {
	a, err := NewKey(CategoryListingSearch, "global", "", map[string]string{
		"date": "2024-01-01", "city": "lisbon", "guests": "2",
	})
	require.NoError(t, err)

	b, err := NewKey(CategoryListingSearch, "global", "", map[string]string{
		"guests": "2", "city": "lisbon", "date": "2024-01-01",
	})
	require.NoError(t, err)

	require.True(t, a.Equal(b))
	require.Equal(t, a.Canonical(), b.Canonical())
	require.Equal(t, a.Hash(), b.Hash())
}

func TestKeyFieldsDisambiguate(t *testing.T) {
	base, err := NewKey(CategoryListing, "user", "42", nil)
	require.NoError(t, err)

	variants := []Key{
		MustKey(CategoryProfile, "user", "42", nil),
		MustKey(CategoryListing, "global", "42", nil),
		MustKey(CategoryListing, "user", "7", nil),
		MustKey(CategoryListing, "user", "42", map[string]string{"view": "full"}),
	}
	for _, v := range variants {
		require.False(t, base.Equal(v), "expected %q != %q", base.Canonical(), v.Canonical())
	}
}

func TestKeyCanonicalEscapesSeparators(t *testing.T) {
	a, err := NewKey(CategoryListing, "us|er", "4&2", map[string]string{"a|b": "c=d"})
	require.NoError(t, err)
	b, err := NewKey(CategoryListing, "us", "er|4&2", map[string]string{"a|b": "c=d"})
	require.NoError(t, err)

	require.NotEqual(t, a.Canonical(), b.Canonical())
}

func TestKeyParamsAreCopied(t *testing.T) {
	params := map[string]string{"date": "2024-01-01"}
	k, err := NewKey(CategoryListing, "user", "42", params)
	require.NoError(t, err)

	params["date"] = "mutated"
	got, ok := k.Param("date")
	require.True(t, ok)
	require.Equal(t, "2024-01-01", got)

	cp := k.Params()
	cp["date"] = "mutated again"
	got, _ = k.Param("date")
	require.Equal(t, "2024-01-01", got)
}

func TestRegisterCategory(t *testing.T) {
	c := Category("floor-plans")
	require.False(t, IsRegistered(c))
	RegisterCategory(c)
	require.True(t, IsRegistered(c))

	_, err := NewKey(c, "global", "", nil)
	require.NoError(t, err)
}
