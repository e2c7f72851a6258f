package id

import (
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

type brokenGenerator struct{}

func (brokenGenerator) NewID() (string, error) { return "", errors.New("entropy exhausted") }

func TestUUID7(t *testing.T) {
	t.Parallel()

	a, err := New().NewID()
	require.NoError(t, err)
	b, err := New().NewID()
	require.NoError(t, err)
	require.NotEqual(t, a, b)

	parsed, err := uuid.Parse(a)
	require.NoError(t, err)
	require.Equal(t, uuid.Version(7), parsed.Version())
}

func TestMustFallsBack(t *testing.T) {
	t.Parallel()

	v := Must(brokenGenerator{})
	_, err := uuid.Parse(v)
	require.NoError(t, err)
}
