package strpattern

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestGlobRoundTrip(t *testing.T) {
	for _, s := range []string{"hostname", "etc/host.name", "a+b(c)", "weird[name]"} {
		p, err := Compile(Glob, Escape(s), false)
		require.NoError(t, err)
		idx, length, ok := Match(p, s, 0, FullyAnchored)
		require.True(t, ok)
		require.Equal(t, 0, idx)
		require.Equal(t, len(s), length)
	}
}

func TestGlobWildcards(t *testing.T) {
	p, err := Compile(Glob, "*.log", false)
	require.NoError(t, err)

	_, _, ok := Match(p, "/var/log/app.log", 0, AnchoredEnd)
	require.True(t, ok)

	_, _, ok = Match(p, "/var/log/app.txt", 0, AnchoredEnd)
	require.False(t, ok)
}

func TestIgnoreCase(t *testing.T) {
	p, err := Compile(Glob, "README*", true)
	require.NoError(t, err)
	_, _, ok := Match(p, "readme.md", 0, AnchoredBegin)
	require.True(t, ok)
}

func TestInvalidPattern(t *testing.T) {
	require.False(t, IsValid(Regex, "(unclosed", false))
	require.True(t, IsValid(Regex, "^valid$", false))
}
