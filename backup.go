package volumebackup

import (
	"fmt"
	"os"
	"time"

	"github.com/xuranus/volumebackup/internal/checkpoint"
	"github.com/xuranus/volumebackup/internal/copymeta"
	"github.com/xuranus/volumebackup/internal/digest"
	"github.com/xuranus/volumebackup/internal/pipeline"
	"github.com/xuranus/volumebackup/internal/rawio"
	"github.com/xuranus/volumebackup/internal/resource"
	"github.com/xuranus/volumebackup/internal/session"
)

// NewBackupTask validates cfg, builds the segment plan, persists the
// CopyMeta sidecar, and acquires the storage and volume lock a backup
// needs, returning a Task ready to Start. It implements prepare() from
// §4.10 for the backup direction.
func NewBackupTask(cfg BackupConfig) (*Task, error) {
	cfg.applyDefaults()

	if !copyNameLengthOK(cfg.CopyName) {
		cfg.CopyName = fmt.Sprintf("copy-%d", time.Now().UnixMicro())
	}

	volSize, err := validateVolumePath("backup", cfg.VolumePath)
	if err != nil {
		return nil, err
	}
	if err := requireDir(cfg.DataDir); err != nil {
		return nil, newCopyError("backup", cfg.CopyName, CopyAccessDenied, err)
	}
	if err := requireDir(cfg.MetaDir); err != nil {
		return nil, newCopyError("backup", cfg.CopyName, CopyAccessDenied, err)
	}
	if cfg.CheckpointEnabled {
		if err := requireDir(cfg.CheckpointDir); err != nil {
			return nil, newCopyError("backup", cfg.CopyName, CopyAccessDenied, err)
		}
	}

	var prevMeta *copymeta.Meta
	if cfg.IncrementalEnabled {
		if err := requireDir(cfg.PrevCopyMetaDirPath); err != nil {
			return nil, newCopyError("backup", cfg.CopyName, CopyAccessDenied, fmt.Errorf("prev copy meta dir: %w", err))
		}
		prevMeta, err = copymeta.Load(cfg.PrevCopyMetaDirPath, cfg.PrevCopyMetaDirPath, cfg.CopyName)
		if err != nil {
			return nil, newCopyError("backup", cfg.CopyName, CopyAccessDenied, fmt.Errorf("load previous copy meta: %w", err))
		}
	}

	segments := copymeta.SplitSegments(uint64(volSize), cfg.SessionSize, cfg.BlockSize,
		func(i int) string {
			return copymeta.DataFileName(cfg.CopyName, cfg.CopyFormat, i, 0)
		},
		func(i int) string {
			return copymeta.DigestFileName(cfg.CopyName, i)
		},
	)

	meta := &copymeta.Meta{
		CopyName:   cfg.CopyName,
		BackupType: backupType(cfg.IncrementalEnabled),
		CopyFormat: cfg.CopyFormat,
		VolumeSize: uint64(volSize),
		BlockSize:  cfg.BlockSize,
		VolumePath: cfg.VolumePath,
		Segments:   segments,
	}
	if err := meta.Validate(); err != nil {
		return nil, newCopyError("backup", cfg.CopyName, InvalidVolume, err)
	}

	resources := resource.New()
	if err := resources.LockVolume(cfg.VolumePath); err != nil {
		return nil, newVolumeError("backup", cfg.VolumePath, VolumeAccessDenied, err)
	}

	plans := make([]resource.SegmentPlan, len(segments))
	for i, seg := range segments {
		plans[i] = resource.SegmentPlan{Path: copymeta.DataPath(cfg.DataDir, seg), Length: int64(seg.Length)}
	}
	if copymeta.IsFragmented(cfg.CopyFormat) {
		if err := resources.CreateBackupStorage(toResourceFormat(cfg.CopyFormat), plans, volSize); err != nil {
			resources.Close()
			return nil, newCopyError("backup", cfg.CopyName, NoSpace, err)
		}
	} else {
		// Non-fragmented formats address the whole volume through one
		// file; create it once sized to volSize rather than per-segment.
		if err := resources.CreateBackupStorage(toResourceFormat(cfg.CopyFormat), []resource.SegmentPlan{{Path: copymeta.DataPath(cfg.DataDir, segments[0]), Length: volSize}}, volSize); err != nil {
			resources.Close()
			return nil, newCopyError("backup", cfg.CopyName, NoSpace, err)
		}
	}

	if err := copymeta.Save(cfg.MetaDir, meta); err != nil {
		resources.Close()
		return nil, newCopyError("backup", cfg.CopyName, CopyAccessDenied, fmt.Errorf("persist copy meta: %w", err))
	}

	volumeFile, err := rawio.OpenFile(cfg.VolumePath)
	if err != nil {
		resources.Close()
		return nil, newVolumeError("backup", cfg.VolumePath, VolumeAccessDenied, err)
	}

	var sharedSink rawio.ReaderWriter
	if !copymeta.IsFragmented(cfg.CopyFormat) {
		sharedSink, err = rawio.OpenFile(copymeta.DataPath(cfg.DataDir, segments[0]))
		if err != nil {
			volumeFile.Close()
			resources.Close()
			return nil, newCopyError("backup", cfg.CopyName, CopyAccessDenied, err)
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
	if copymeta.IsFragmented(cfg.CopyFormat) {
		handleCache = rawio.NewHandleCache(cfg.HandleCacheCapacity, func(path string) (*os.File, error) {
			return os.OpenFile(path, os.O_RDWR, 0o644)
		})
	}

	specs := make([]*sessionSpec, len(segments))
	for i, seg := range segments {
		blockCount := pipeline.SharedConfig{SessionLength: int64(seg.Length), BlockSize: int(cfg.BlockSize)}.BlockCount()

		// The pipeline addresses blocks by absolute volume offset: the
		// volume is read as is, and only a per-segment file is shifted.
		var source rawio.ReaderWriter = volumeFile

		var sink rawio.ReaderWriter
		if copymeta.IsFragmented(cfg.CopyFormat) {
			path := copymeta.DataPath(cfg.DataDir, seg)
			if _, err := os.Stat(path); err != nil {
				return nil, newCopyError("backup", cfg.CopyName, CopyAccessDenied, err)
			}
			sink = rawio.NewFragment(rawio.NewCachedHandle(handleCache, path), int64(seg.Offset), int64(seg.Length))
		} else {
			sink = sharedSink
		}

		spec := &sessionSpec{}

		var latestDigest, prevDigest *digest.Table
		if cfg.HasherEnabled {
			latestDigest, err = digest.Create(copymeta.DigestPath(cfg.MetaDir, meta, seg.Index), blockCount)
			if err != nil {
				return nil, newCopyError("backup", cfg.CopyName, CopyAccessDenied, err)
			}
			spec.closers = append(spec.closers, latestDigest)

			if cfg.IncrementalEnabled {
				prevDigest, err = digest.Open(copymeta.DigestPath(cfg.PrevCopyMetaDirPath, prevMeta, seg.Index), blockCount)
				if err != nil {
					return nil, newCopyError("backup", cfg.CopyName, CopyAccessDenied, fmt.Errorf("open previous digest table: %w", err))
				}
				spec.closers = append(spec.closers, prevDigest)
			}
		}

		mode := pipeline.ModeDirect
		if cfg.IncrementalEnabled {
			mode = pipeline.ModeDiff
		}

		spec.cfg = session.Config{
			Index:    seg.Index,
			CopyName: cfg.CopyName,
			Cfg: pipeline.SharedConfig{
				SessionOffset:  int64(seg.Offset),
				SessionLength:  int64(seg.Length),
				BlockSize:      int(cfg.BlockSize),
				HasherEnabled:  cfg.HasherEnabled,
				Mode:           mode,
				SkipEmptyBlock: cfg.SkipEmptyBlock,
			},
			PoolBlockCount:    cfg.PoolBlockCount,
			QueueCapacity:     cfg.QueueCapacity,
			HasherWorkers:     cfg.HasherWorkers,
			Source:            source,
			Sink:              sink,
			PrevDigest:        prevDigest,
			LatestDigest:      latestDigest,
			Checkpoints:       checkpoints,
			CheckpointEnabled: cfg.CheckpointEnabled,
		}
		specs[i] = spec
	}

	task := newTask(cfg.CopyName, specs, resources, checkpoints, cfg.ClearCheckpointsOnSucceed, cfg.PollInterval)
	task.extraClosers = append(task.extraClosers, volumeFile)
	if sharedSink != nil {
		task.extraClosers = append(task.extraClosers, sharedSink)
	}
	if handleCache != nil {
		task.extraClosers = append(task.extraClosers, handleCache)
	}

	if registry, err := copymeta.OpenRegistry(cfg.MetaDir); err == nil {
		task.extraClosers = append(task.extraClosers, registry)
		task.onSucceed = func() error {
			return registry.RegisterCopy(cfg.MetaDir, meta, time.Now())
		}
	}
	// A registry that fails to open does not block the backup itself;
	// the JSON sidecar Save above already persisted the source of truth.

	return task, nil
}

func requireDir(path string) error {
	fi, err := os.Stat(path)
	if err != nil {
		return err
	}
	if !fi.IsDir() {
		return fmt.Errorf("%s is not a directory", path)
	}
	return nil
}

func backupType(incremental bool) copymeta.BackupType {
	if incremental {
		return copymeta.BackupForeverIncremental
	}
	return copymeta.BackupFull
}
