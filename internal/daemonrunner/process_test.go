package daemonrunner

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestAcquireNestLockExclusive(t *testing.T) {
	dir := t.TempDir()

	lock1, err := AcquireNestLock(dir)
	require.NoError(t, err)
	defer lock1.Close()

	_, err = AcquireNestLock(dir)
	require.True(t, errors.Is(err, ErrNestLocked))
}

func TestAcquireNestLockReleasedOnClose(t *testing.T) {
	dir := t.TempDir()

	lock1, err := AcquireNestLock(dir)
	require.NoError(t, err)
	require.NoError(t, lock1.Close())

	lock2, err := AcquireNestLock(dir)
	require.NoError(t, err)
	require.NoError(t, lock2.Close())
}
