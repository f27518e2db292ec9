package format

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParserHint(t *testing.T) {
	tests := map[string]string{
		"src/a.ts":      "typescript",
		"src/App.TSX":   "typescript",
		"index.js":      "babel",
		"styles/x.scss": "scss",
		"data.json":     "json",
		"README.md":     "markdown",
	}
	for path, want := range tests {
		got, ok := ParserHint(path)
		assert.True(t, ok, path)
		assert.Equal(t, want, got, path)
	}

	_, ok := ParserHint("main.go")
	assert.False(t, ok)
	_, ok = ParserHint("Makefile")
	assert.False(t, ok)
}

func TestJSON(t *testing.T) {
	out, err := JSON{}.Format(`{"a":1,"b":[1,2]}`, "json")
	require.NoError(t, err)
	assert.Equal(t, "{\n  \"a\": 1,\n  \"b\": [\n    1,\n    2\n  ]\n}\n", out)

	_, err = JSON{}.Format(`{"a":`, "json")
	assert.Error(t, err)

	_, err = JSON{}.Format(`{}`, "babel")
	assert.ErrorIs(t, err, ErrUnsupported)
}

func TestChain(t *testing.T) {
	failing := FormatterFunc(func(string, string) (string, error) { return "", errors.New("boom") })
	unsupported := FormatterFunc(func(string, string) (string, error) { return "", ErrUnsupported })
	upper := FormatterFunc(func(c, _ string) (string, error) { return c + "!", nil })

	out, err := Chain{unsupported, upper}.Format("x", "css")
	require.NoError(t, err)
	assert.Equal(t, "x!", out)

	_, err = Chain{unsupported}.Format("x", "css")
	assert.ErrorIs(t, err, ErrUnsupported)

	_, err = Chain{failing, unsupported}.Format("x", "css")
	assert.EqualError(t, err, "boom")
}

func TestPrettierMissingBinary(t *testing.T) {
	_, err := Prettier{Path: "/nonexistent/prettier-binary"}.Format("a", "babel")
	assert.Error(t, err)
}

func TestDefaultFallsBackToJSON(t *testing.T) {
	f := Default("/nonexistent/prettier-binary")
	out, err := f.Format(`[1]`, "json")
	require.NoError(t, err)
	assert.Equal(t, "[\n  1\n]\n", out)
}
