package mount

import (
	"io"
	"net/http"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/xuranus/volumebackup/internal/copymeta"
)

func writeCopy(t *testing.T, dir, copyName string, segments [][]byte) *copymeta.Meta {
	t.Helper()
	m := &copymeta.Meta{
		CopyName:   copyName,
		BackupType: copymeta.BackupFull,
		CopyFormat: copymeta.FormatBinFragmented,
		BlockSize:  4096,
	}
	var offset uint64
	for i, data := range segments {
		name := copymeta.DataFileName(copyName, copymeta.FormatBinFragmented, i, len(segments))
		if err := os.WriteFile(filepath.Join(dir, name), data, 0o644); err != nil {
			t.Fatal(err)
		}
		m.Segments = append(m.Segments, copymeta.Segment{
			Index:        i,
			Offset:       offset,
			Length:       uint64(len(data)),
			CopyDataFile: name,
		})
		offset += uint64(len(data))
	}
	m.VolumeSize = offset
	if err := copymeta.Save(dir, m); err != nil {
		t.Fatal(err)
	}
	return m
}

func TestMountServesConcatenatedBytes(t *testing.T) {
	dir := t.TempDir()
	seg0 := []byte("hello-")
	seg1 := []byte("world!")
	writeCopy(t, dir, "mycopy", [][]byte{seg0, seg1})

	m, err := Open(dir, dir, "mycopy")
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer m.Close()

	done := make(chan error, 1)
	go func() { done <- m.Serve("127.0.0.1:0") }()

	var addr string
	for i := 0; i < 100 && addr == ""; i++ {
		time.Sleep(10 * time.Millisecond)
		addr = m.Addr()
	}
	if addr == "" {
		t.Fatal("mount never started listening")
	}

	resp, err := http.Get("http://" + addr + "/" + EntryName)
	if err != nil {
		t.Fatalf("GET: %v", err)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	if string(body) != "hello-world!" {
		t.Fatalf("body = %q, want %q", body, "hello-world!")
	}

	if err := m.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	<-done
}

func TestMountRejectsWrite(t *testing.T) {
	dir := t.TempDir()
	writeCopy(t, dir, "mycopy", [][]byte{[]byte("data")})

	m, err := Open(dir, dir, "mycopy")
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer m.Close()

	go m.Serve("127.0.0.1:0")
	var addr string
	for i := 0; i < 100 && addr == ""; i++ {
		time.Sleep(10 * time.Millisecond)
		addr = m.Addr()
	}
	if addr == "" {
		t.Fatal("mount never started listening")
	}

	req, _ := http.NewRequest(http.MethodPut, "http://"+addr+"/"+EntryName, nil)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("PUT: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode == http.StatusOK || resp.StatusCode == http.StatusCreated {
		t.Fatalf("PUT unexpectedly succeeded with status %d", resp.StatusCode)
	}
}
