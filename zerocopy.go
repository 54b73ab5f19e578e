package volumebackup

import (
	"fmt"

	"github.com/xuranus/volumebackup/internal/copymeta"
	"github.com/xuranus/volumebackup/internal/rawio"
	"github.com/xuranus/volumebackup/internal/resource"
)

// zeroCopyPlan is the bypass restore path's entire state: two open
// files and the byte range to move between them, block_size at a time.
type zeroCopyPlan struct {
	sink          *rawio.File // the volume being restored
	source        *rawio.File // the single-segment image copy
	sessionOffset int64
	sessionLength int64
	blockSize     int64
}

// newZeroCopyRestoreTask builds a Task that bypasses the session
// pipeline per §4.10.3, valid only for a single-segment image copy.
func newZeroCopyRestoreTask(cfg RestoreConfig, meta *copymeta.Meta) (*Task, error) {
	if meta.CopyFormat != copymeta.FormatImage || len(meta.Segments) != 1 {
		return nil, newCopyError("restore", cfg.CopyName, InvalidVolume,
			fmt.Errorf("zero-copy restore requires a single-segment image copy, got format %d with %d segments", meta.CopyFormat, len(meta.Segments)))
	}
	seg := meta.Segments[0]

	resources := resource.New()
	if err := resources.LockVolume(cfg.VolumePath); err != nil {
		return nil, newVolumeError("restore", cfg.VolumePath, VolumeAccessDenied, err)
	}

	volumeFile, err := rawio.OpenFile(cfg.VolumePath)
	if err != nil {
		resources.Close()
		return nil, newVolumeError("restore", cfg.VolumePath, VolumeAccessDenied, err)
	}
	copyFile, err := rawio.OpenFile(copymeta.DataPath(cfg.DataDir, seg))
	if err != nil {
		volumeFile.Close()
		resources.Close()
		return nil, newCopyError("restore", cfg.CopyName, CopyAccessDenied, err)
	}

	task := newTask(cfg.CopyName, nil, resources, nil, false, cfg.PollInterval)
	task.extraClosers = append(task.extraClosers, volumeFile, copyFile)
	task.zeroCopy = &zeroCopyPlan{
		sink:          volumeFile,
		source:        copyFile,
		sessionOffset: int64(seg.Offset),
		sessionLength: int64(seg.Length),
		blockSize:     int64(meta.BlockSize),
	}
	return task, nil
}
