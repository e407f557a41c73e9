package logger

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNewParsesLevel(t *testing.T) {
	log, err := New("info")
	require.NoError(t, err)
	require.NotNil(t, log)
	require.False(t, log.Desugar().Core().Enabled(-1))
}

func TestNewRejectsUnknownLevel(t *testing.T) {
	_, err := New("loud")
	require.Error(t, err)
}
