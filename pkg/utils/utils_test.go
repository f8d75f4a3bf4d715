package utils

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestEnv(t *testing.T) {
	t.Setenv("NFTSNAP_TEST_STR", "value")
	t.Setenv("NFTSNAP_TEST_INT", "42")
	t.Setenv("NFTSNAP_TEST_BAD_INT", "-3")

	assert.Equal(t, "value", Env("NFTSNAP_TEST_STR", "def"))
	assert.Equal(t, "def", Env("NFTSNAP_TEST_MISSING", "def"))
	assert.Equal(t, 42, EnvInt("NFTSNAP_TEST_INT", 1))
	assert.Equal(t, 1, EnvInt("NFTSNAP_TEST_BAD_INT", 1))
}

func TestDedup(t *testing.T) {
	in := []string{"http://a/", "http://a", "", "http://b"}
	assert.Equal(t, []string{"http://a", "http://b"}, Dedup(in))
}

func TestNonEmpty(t *testing.T) {
	assert.Equal(t, []string{"a", "b"}, NonEmpty([]string{" a ", "", "  ", "b"}))
}
