package json

import (
	"bytes"
	"runtime"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type snapshot struct {
	Generation string      `json:"generation"`
	Vectors    [][]float32 `json:"vectors"`
	Texts      []string    `json:"texts"`
}

func TestMarshalUnmarshal(t *testing.T) {
	in := snapshot{
		Generation: "01J0000000000000000000000",
		Vectors:    [][]float32{{0.5, -1}, {2, 0.25}},
		Texts:      []string{"first\n\nparagraph", "second <tag> & \"quote\""},
	}

	data, err := Marshal(in)
	require.NoError(t, err)

	var out snapshot
	require.NoError(t, Unmarshal(data, &out))
	assert.Equal(t, in, out)
}

func TestMarshalStable_SortsMapKeys(t *testing.T) {
	m := map[string]int{"zeta": 1, "alpha": 2, "mid": 3}

	first, err := MarshalStable(m)
	require.NoError(t, err)
	for i := 0; i < 10; i++ {
		again, err := MarshalStable(m)
		require.NoError(t, err)
		assert.Equal(t, first, again)
	}
	assert.Equal(t, `{"alpha":2,"mid":3,"zeta":1}`, string(first))
}

func TestEncoderDecoder(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, NewEncoder(&buf).Encode(map[string]string{"status": "ok"}))

	var out map[string]string
	require.NoError(t, NewDecoder(&buf).Decode(&out))
	assert.Equal(t, "ok", out["status"])
}

func TestIsUsingSonic(t *testing.T) {
	want := runtime.GOARCH == "amd64" || runtime.GOARCH == "arm64"
	assert.Equal(t, want, IsUsingSonic())
}
