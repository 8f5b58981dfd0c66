package ignore

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestGenerateEmptyNoDefaults(t *testing.T) {
	out := Generate("", "", false)
	require.Nil(t, out)
}

func TestGenerateEmptyUsesDefaults(t *testing.T) {
	out := Generate("", "", true)
	require.Equal(t, DefaultPatterns, string(out))
}

func TestGenerateLocalIsAnchored(t *testing.T) {
	out := Generate("build\n*.log", "", true)
	require.Equal(t, "/build\n/*.log\n", string(out))
}

func TestGenerateGlobalIsUnanchored(t *testing.T) {
	out := Generate("", "*.swp\n*.bak", true)
	require.Equal(t, "*.swp\n*.bak\n", string(out))
}

func TestGenerateBothCombines(t *testing.T) {
	out := Generate("build", "*.swp", true)
	require.Equal(t, "/build\n*.swp\n", string(out))
}
