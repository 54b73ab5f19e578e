package copymeta

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestRegistryRegisterFindList(t *testing.T) {
	dir := t.TempDir()
	reg, err := OpenRegistry(dir)
	require.NoError(t, err)
	defer reg.Close()

	m1 := &Meta{CopyName: "alpha", BackupType: BackupFull, VolumeSize: 1024}
	m2 := &Meta{CopyName: "beta", BackupType: BackupForeverIncremental, VolumeSize: 2048}
	now := time.Unix(1700000000, 0)

	require.NoError(t, reg.RegisterCopy(dir, m1, now))
	require.NoError(t, reg.RegisterCopy(dir, m2, now))

	summary, found, err := reg.FindCopy("alpha")
	require.NoError(t, err)
	require.True(t, found)
	require.Equal(t, uint64(1024), summary.VolumeSize)

	all, err := reg.ListCopies()
	require.NoError(t, err)
	require.Len(t, all, 2)

	require.NoError(t, reg.ForgetCopy("alpha"))
	_, found, err = reg.FindCopy("alpha")
	require.NoError(t, err)
	require.False(t, found, "FindCopy(alpha) still found after ForgetCopy")
}

func TestFindCopyMissing(t *testing.T) {
	dir := t.TempDir()
	reg, err := OpenRegistry(dir)
	require.NoError(t, err)
	defer reg.Close()

	_, found, err := reg.FindCopy("nope")
	require.NoError(t, err)
	require.False(t, found, "FindCopy found a nonexistent entry")
}
