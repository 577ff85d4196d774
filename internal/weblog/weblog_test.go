package weblog

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewProductionLogger(t *testing.T) {
	logger, err := New(Production)
	require.NoError(t, err)
	assert.NotNil(t, logger)
}

func TestNewConsoleLogger(t *testing.T) {
	logger, err := New(Console)
	require.NoError(t, err)
	assert.NotNil(t, logger)
}
