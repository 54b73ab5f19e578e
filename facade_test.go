package volumebackup

import (
	"crypto/rand"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/xuranus/volumebackup/internal/copymeta"
)

func mustWriteVolume(t *testing.T, path string, size int) []byte {
	t.Helper()
	data := make([]byte, size)
	if _, err := rand.Read(data); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatal(err)
	}
	return data
}

func waitTerminated(t *testing.T, task *Task) TaskStatus {
	t.Helper()
	deadline := time.After(10 * time.Second)
	for {
		if task.IsTerminated() {
			return task.GetStatus()
		}
		select {
		case <-deadline:
			t.Fatal("task never terminated")
		case <-time.After(10 * time.Millisecond):
		}
	}
}

func TestBackupRestoreRoundTripBin(t *testing.T) {
	dir := t.TempDir()
	volumePath := filepath.Join(dir, "volume.img")
	dataDir := filepath.Join(dir, "data")
	metaDir := filepath.Join(dir, "meta")
	os.Mkdir(dataDir, 0o755)
	os.Mkdir(metaDir, 0o755)

	original := mustWriteVolume(t, volumePath, 5*1024*1024)

	backupTask, err := NewBackupTask(BackupConfig{
		VolumePath:  volumePath,
		CopyName:    "roundtrip",
		CopyFormat:  copymeta.FormatBinFragmented,
		DataDir:     dataDir,
		MetaDir:     metaDir,
		SessionSize: 2 * 1024 * 1024,
		BlockSize:   256 * 1024,
	})
	require.NoError(t, err)
	require.True(t, backupTask.Start(), "backup task failed to start")
	require.Equal(t, StatusSucceed, waitTerminated(t, backupTask), "backup err = %v", backupTask.Err())

	restoreVolumePath := filepath.Join(dir, "restored.img")
	require.NoError(t, os.WriteFile(restoreVolumePath, make([]byte, len(original)), 0o644))

	restoreTask, err := NewRestoreTask(RestoreConfig{
		VolumePath: restoreVolumePath,
		CopyName:   "roundtrip",
		DataDir:    dataDir,
		MetaDir:    metaDir,
	})
	require.NoError(t, err)
	require.True(t, restoreTask.Start(), "restore task failed to start")
	require.Equal(t, StatusSucceed, waitTerminated(t, restoreTask), "restore err = %v", restoreTask.Err())

	restored, err := os.ReadFile(restoreVolumePath)
	require.NoError(t, err)
	require.Equal(t, original, restored, "restored volume does not match original")
}

func TestBackupRegistersCopy(t *testing.T) {
	dir := t.TempDir()
	volumePath := filepath.Join(dir, "volume.img")
	dataDir := filepath.Join(dir, "data")
	metaDir := filepath.Join(dir, "meta")
	os.Mkdir(dataDir, 0o755)
	os.Mkdir(metaDir, 0o755)
	mustWriteVolume(t, volumePath, 1024*1024)

	task, err := NewBackupTask(BackupConfig{
		VolumePath: volumePath,
		CopyName:   "catalogued",
		CopyFormat: copymeta.FormatBinFragmented,
		DataDir:    dataDir,
		MetaDir:    metaDir,
	})
	require.NoError(t, err)
	require.True(t, task.Start())
	require.Equal(t, StatusSucceed, waitTerminated(t, task), "err = %v", task.Err())

	summary, found, err := FindCopy(metaDir, "catalogued")
	require.NoError(t, err)
	require.True(t, found, "FindCopy did not find the copy just backed up")
	require.Equal(t, uint64(1024*1024), summary.VolumeSize)

	all, err := ListCopies(metaDir)
	require.NoError(t, err)
	require.Len(t, all, 1)
}

func TestBackupTaskRejectsMissingDataDir(t *testing.T) {
	dir := t.TempDir()
	volumePath := filepath.Join(dir, "volume.img")
	mustWriteVolume(t, volumePath, 1024*1024)

	_, err := NewBackupTask(BackupConfig{
		VolumePath: volumePath,
		CopyName:   "missing-dirs",
		CopyFormat: copymeta.FormatBinFragmented,
		DataDir:    filepath.Join(dir, "nonexistent"),
		MetaDir:    dir,
	})
	if err == nil {
		t.Fatal("expected an error for a missing data directory")
	}
	if errorCode(err) != CopyAccessDenied {
		t.Fatalf("errorCode = %v, want CopyAccessDenied", errorCode(err))
	}
}

func TestAbortFromInitGoesDirectlyToAborted(t *testing.T) {
	dir := t.TempDir()
	volumePath := filepath.Join(dir, "volume.img")
	dataDir := filepath.Join(dir, "data")
	metaDir := filepath.Join(dir, "meta")
	os.Mkdir(dataDir, 0o755)
	os.Mkdir(metaDir, 0o755)
	mustWriteVolume(t, volumePath, 1024*1024)

	task, err := NewBackupTask(BackupConfig{
		VolumePath: volumePath,
		CopyName:   "abort-before-start",
		CopyFormat: copymeta.FormatBinFragmented,
		DataDir:    dataDir,
		MetaDir:    metaDir,
	})
	if err != nil {
		t.Fatalf("NewBackupTask: %v", err)
	}
	task.Abort()
	if got := task.GetStatus(); got != StatusAborted {
		t.Fatalf("GetStatus() = %v, want StatusAborted", got)
	}
}
