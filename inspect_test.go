package volumebackup

import (
	"io"
	"net/http"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/xuranus/volumebackup/internal/copymeta"
)

func TestInspectionMountServesBackedUpBytes(t *testing.T) {
	dir := t.TempDir()
	volumePath := filepath.Join(dir, "volume.img")
	dataDir := filepath.Join(dir, "data")
	metaDir := filepath.Join(dir, "meta")
	os.Mkdir(dataDir, 0o755)
	os.Mkdir(metaDir, 0o755)

	original := mustWriteVolume(t, volumePath, 1024*1024)

	task, err := NewBackupTask(BackupConfig{
		VolumePath: volumePath,
		CopyName:   "inspectable",
		CopyFormat: copymeta.FormatBinFragmented,
		DataDir:    dataDir,
		MetaDir:    metaDir,
	})
	require.NoError(t, err)
	require.True(t, task.Start())
	require.Equal(t, StatusSucceed, waitTerminated(t, task), "backup err = %v", task.Err())

	m, err := OpenInspectionMount(metaDir, dataDir, "inspectable")
	require.NoError(t, err)
	defer m.Close()

	done := make(chan error, 1)
	go func() { done <- m.Serve("127.0.0.1:0") }()

	var addr string
	for i := 0; i < 100 && addr == ""; i++ {
		time.Sleep(10 * time.Millisecond)
		addr = m.Addr()
	}
	require.NotEmpty(t, addr, "inspection mount never started listening")

	resp, err := http.Get("http://" + addr + "/volume.img")
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	require.Equal(t, original, body)

	require.NoError(t, m.Close())
	<-done
}
