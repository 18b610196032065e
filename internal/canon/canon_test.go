package canon

import (
	"testing"

	"github.com/sebdah/goldie/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMarshal_SortsKeys(t *testing.T) {
	data, err := Marshal(map[string]any{
		"b":      1,
		"a":      "x",
		"nested": map[string]any{"z": true, "y": []any{1, 2}},
	})
	require.NoError(t, err)
	assert.Equal(t, `{"a":"x","b":1,"nested":{"y":[1,2],"z":true}}`, string(data))
}

func TestMarshal_Golden(t *testing.T) {
	data, err := Marshal(map[string]any{
		"seed":    int64(42),
		"index":   0,
		"profile": "diabetes-cohort",
		"tags":    []any{"a<b", "c&d"},
	})
	require.NoError(t, err)

	g := goldie.New(t)
	g.Assert(t, "canonical_object", data)
}

func TestMarshal_NoHTMLEscaping(t *testing.T) {
	data, err := Marshal("a<b&c>d")
	require.NoError(t, err)
	assert.Equal(t, `"a<b&c>d"`, string(data))
}

func TestMarshal_RejectsFloats(t *testing.T) {
	_, err := Marshal(map[string]any{"x": 1.5})
	assert.Error(t, err)
}

func TestMarshal_RejectsNull(t *testing.T) {
	_, err := Marshal(map[string]any{"x": nil})
	assert.Error(t, err)
}

func TestMarshal_Integers(t *testing.T) {
	data, err := Marshal(map[string]any{"a": int64(-7), "b": uint64(7), "c": 0})
	require.NoError(t, err)
	assert.Equal(t, `{"a":-7,"b":7,"c":0}`, string(data))
}

func TestHashWithDomain_Separation(t *testing.T) {
	data := []byte(`{"seed":42}`)
	assert.NotEqual(t, HashWithDomain(DomainSeed, data), HashWithDomain(DomainEntity, data))
	assert.Equal(t, HashWithDomain(DomainSeed, data), HashWithDomain(DomainSeed, data))
}

func TestHashUint64Pair_Stable(t *testing.T) {
	hi1, lo1 := HashUint64Pair(DomainSeed, []byte("material"))
	hi2, lo2 := HashUint64Pair(DomainSeed, []byte("material"))
	assert.Equal(t, hi1, hi2)
	assert.Equal(t, lo1, lo2)
	assert.NotEqual(t, hi1, lo1)
}

func TestEntityFingerprint(t *testing.T) {
	a, err := EntityFingerprint("profile-1", 42, 0)
	require.NoError(t, err)
	b, err := EntityFingerprint("profile-1", 42, 0)
	require.NoError(t, err)
	assert.Equal(t, a, b)
	assert.Len(t, a, 24)

	c, err := EntityFingerprint("profile-1", 42, 1)
	require.NoError(t, err)
	assert.NotEqual(t, a, c)
}
