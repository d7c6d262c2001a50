package env

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestGetOriginSetDefaultsOnly(t *testing.T) {
	t.Setenv("TEST_ORIGINS", "")

	allowed := GetOriginSet("TEST_ORIGINS", "http://localhost:3000")

	assert.True(t, allowed["http://localhost:3000"])
	assert.False(t, allowed["https://app.example.com"])
}

func TestGetOriginSetMergesEnvironment(t *testing.T) {
	t.Setenv("TEST_ORIGINS", "https://app.example.com, https://admin.example.com ,")

	allowed := GetOriginSet("TEST_ORIGINS", "http://localhost:3000")

	assert.True(t, allowed["http://localhost:3000"])
	assert.True(t, allowed["https://app.example.com"])
	assert.True(t, allowed["https://admin.example.com"])
	assert.False(t, allowed[""])
}
