package volumebackup

import (
	"fmt"
	"os"

	"github.com/xuranus/volumebackup/internal/checkpoint"
	"github.com/xuranus/volumebackup/internal/copymeta"
	"github.com/xuranus/volumebackup/internal/pipeline"
	"github.com/xuranus/volumebackup/internal/rawio"
	"github.com/xuranus/volumebackup/internal/resource"
	"github.com/xuranus/volumebackup/internal/session"
)

// NewRestoreTask loads cfg.CopyName's CopyMeta, verifies it against the
// restore target volume, and returns a Task ready to Start. It
// implements prepare() from §4.10 for the restore direction; the
// hasher is always disabled per §4.10.2.
func NewRestoreTask(cfg RestoreConfig) (*Task, error) {
	cfg.applyDefaults()

	meta, err := copymeta.Load(cfg.MetaDir, cfg.DataDir, cfg.CopyName)
	if err != nil {
		return nil, newCopyError("restore", cfg.CopyName, CopyAccessDenied, err)
	}

	volSize, err := validateVolumePath("restore", cfg.VolumePath)
	if err != nil {
		return nil, err
	}
	if uint64(volSize) != meta.VolumeSize {
		return nil, newVolumeError("restore", cfg.VolumePath, InvalidVolume,
			fmt.Errorf("target volume is %d bytes, copy expects %d", volSize, meta.VolumeSize))
	}

	if cfg.ZeroCopyEnabled {
		return newZeroCopyRestoreTask(cfg, meta)
	}

	resources := resource.New()
	if err := resources.LockVolume(cfg.VolumePath); err != nil {
		return nil, newVolumeError("restore", cfg.VolumePath, VolumeAccessDenied, err)
	}

	plans := make([]resource.SegmentPlan, len(meta.Segments))
	for i, seg := range meta.Segments {
		plans[i] = resource.SegmentPlan{Path: copymeta.DataPath(cfg.DataDir, seg), Length: int64(seg.Length)}
	}
	if err := resources.VerifyRestoreStorage(plans); err != nil {
		resources.Close()
		return nil, newCopyError("restore", cfg.CopyName, CopyAccessDenied, err)
	}

	volumeFile, err := rawio.OpenFile(cfg.VolumePath)
	if err != nil {
		resources.Close()
		return nil, newVolumeError("restore", cfg.VolumePath, VolumeAccessDenied, err)
	}

	var sharedSource rawio.ReaderWriter
	if !copymeta.IsFragmented(meta.CopyFormat) {
		sharedSource, err = rawio.OpenFile(copymeta.DataPath(cfg.DataDir, meta.Segments[0]))
		if err != nil {
			volumeFile.Close()
			resources.Close()
			return nil, newCopyError("restore", cfg.CopyName, CopyAccessDenied, err)
		}
	}

	var checkpoints *checkpoint.Store
	if cfg.CheckpointEnabled {
		checkpoints = checkpoint.New(cfg.CheckpointDir)
	}

	// A fragmented copy touches one file per segment; cap how many of
	// those descriptors stay open at once instead of holding all of
	// them for the task's whole lifetime.
	var handleCache *rawio.HandleCache
	if copymeta.IsFragmented(meta.CopyFormat) {
		handleCache = rawio.NewHandleCache(cfg.HandleCacheCapacity, func(path string) (*os.File, error) {
			return os.OpenFile(path, os.O_RDWR, 0o644)
		})
	}

	specs := make([]*sessionSpec, len(meta.Segments))
	for i, seg := range meta.Segments {
		// The pipeline addresses blocks by absolute volume offset: the
		// volume is written as is, and only a per-segment file is shifted.
		var sink rawio.ReaderWriter = volumeFile

		var source rawio.ReaderWriter
		spec := &sessionSpec{}
		if copymeta.IsFragmented(meta.CopyFormat) {
			path := copymeta.DataPath(cfg.DataDir, seg)
			if _, err := os.Stat(path); err != nil {
				return nil, newCopyError("restore", cfg.CopyName, CopyAccessDenied, err)
			}
			source = rawio.NewFragment(rawio.NewCachedHandle(handleCache, path), int64(seg.Offset), int64(seg.Length))
		} else {
			source = sharedSource
		}

		spec.cfg = session.Config{
			Index:    seg.Index,
			CopyName: cfg.CopyName,
			Cfg: pipeline.SharedConfig{
				SessionOffset:  int64(seg.Offset),
				SessionLength:  int64(seg.Length),
				BlockSize:      int(meta.BlockSize),
				HasherEnabled:  false,
				Mode:           pipeline.ModeDirect,
				SkipEmptyBlock: cfg.SkipEmptyBlock,
			},
			PoolBlockCount:    cfg.PoolBlockCount,
			QueueCapacity:     cfg.QueueCapacity,
			Source:            source,
			Sink:              sink,
			Checkpoints:       checkpoints,
			CheckpointEnabled: cfg.CheckpointEnabled,
		}
		specs[i] = spec
	}

	task := newTask(cfg.CopyName, specs, resources, checkpoints, false, cfg.PollInterval)
	task.extraClosers = append(task.extraClosers, volumeFile)
	if sharedSource != nil {
		task.extraClosers = append(task.extraClosers, sharedSource)
	}
	if handleCache != nil {
		task.extraClosers = append(task.extraClosers, handleCache)
	}
	return task, nil
}
