package fingerprint

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestOf_Deterministic(t *testing.T) {
	r := Record{Kind: "minutes", Meeting: "council", Date: "2024-01-02", Page: 1, Text: "hello"}

	a, err := Of(r)
	require.NoError(t, err)
	b, err := Of(r)
	require.NoError(t, err)

	require.Equal(t, a, b)
	require.Len(t, a, 12)
}

func TestOf_OptionalFieldsChangeHash(t *testing.T) {
	base := Record{Kind: "minutes", Meeting: "council", Date: "2024-01-02", Page: 1, Text: "hello"}
	withSub := base
	withSub.Subdomain = "alameda.civic.band"

	a, err := Of(base)
	require.NoError(t, err)
	b, err := Of(withSub)
	require.NoError(t, err)

	require.NotEqual(t, a, b)
}

func TestOf_DistinctTextDistinctHash(t *testing.T) {
	a, err := Of(Record{Kind: "minutes", Meeting: "council", Date: "2024-01-02", Page: 1, Text: "hello"})
	require.NoError(t, err)
	b, err := Of(Record{Kind: "minutes", Meeting: "council", Date: "2024-01-02", Page: 1, Text: "world"})
	require.NoError(t, err)

	require.NotEqual(t, a, b)
}
