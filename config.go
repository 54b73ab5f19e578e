package volumebackup

import (
	"time"

	"github.com/xuranus/volumebackup/internal/copymeta"
)

// Default tunables mirrored from the component defaults in §4.1-4.2:
// pool and queue sizing, and the task main loop's poll interval.
const (
	DefaultPoolBlockCount      = 32
	DefaultQueueCapacity       = 64
	DefaultBlockSize           = 4 * 1024 * 1024
	DefaultSessionSize         = 1 << 30 // 1 GiB
	DefaultPollInterval        = time.Second
	DefaultHandleCacheCapacity = 16
)

// BackupConfig configures a backup Task. Loading it from a file or flags
// is the excluded CLI front-end's job; this is a plain struct.
type BackupConfig struct {
	VolumePath string
	VolumeUUID string
	VolumeLabel string

	CopyName   string // computed from a microsecond timestamp if empty or over 32 chars
	CopyFormat copymeta.Format
	DataDir    string
	MetaDir    string

	SessionSize uint64
	BlockSize   uint32

	HasherEnabled bool

	// SkipEmptyBlock makes the writer mark an all-zero block as written
	// without issuing any I/O to the copy. Defaults to false: a caller
	// must opt in.
	SkipEmptyBlock bool

	IncrementalEnabled  bool
	PrevCopyMetaDirPath string

	CheckpointEnabled         bool
	CheckpointDir             string
	ClearCheckpointsOnSucceed bool

	PoolBlockCount int
	QueueCapacity  int
	HasherWorkers  int
	PollInterval   time.Duration

	// HandleCacheCapacity bounds how many fragmented segment files (or
	// sessions' sink handles) stay open at once; see internal/rawio.HandleCache.
	HandleCacheCapacity int
}

func (c *BackupConfig) applyDefaults() {
	if c.SessionSize == 0 {
		c.SessionSize = DefaultSessionSize
	}
	if c.BlockSize == 0 {
		c.BlockSize = DefaultBlockSize
	}
	if c.PoolBlockCount == 0 {
		c.PoolBlockCount = DefaultPoolBlockCount
	}
	if c.QueueCapacity == 0 {
		c.QueueCapacity = DefaultQueueCapacity
	}
	if c.PollInterval == 0 {
		c.PollInterval = DefaultPollInterval
	}
	if c.HandleCacheCapacity == 0 {
		c.HandleCacheCapacity = DefaultHandleCacheCapacity
	}
}

// RestoreConfig configures a restore Task.
type RestoreConfig struct {
	VolumePath string

	CopyName string
	DataDir  string
	MetaDir  string

	CheckpointEnabled bool
	CheckpointDir     string

	// SkipEmptyBlock drops an all-zero block instead of writing it back
	// to the target volume. Defaults to false: a caller must opt in.
	SkipEmptyBlock bool

	// ZeroCopyEnabled requests the kernel-assisted file-to-file restore
	// path (§4.10.3). It is valid only for single-segment image copies;
	// for any other copy NewRestoreTask returns an error.
	ZeroCopyEnabled bool

	PoolBlockCount int
	QueueCapacity  int
	PollInterval   time.Duration

	// HandleCacheCapacity bounds how many fragmented segment files stay
	// open at once; see internal/rawio.HandleCache.
	HandleCacheCapacity int
}

func (c *RestoreConfig) applyDefaults() {
	if c.PoolBlockCount == 0 {
		c.PoolBlockCount = DefaultPoolBlockCount
	}
	if c.QueueCapacity == 0 {
		c.QueueCapacity = DefaultQueueCapacity
	}
	if c.PollInterval == 0 {
		c.PollInterval = DefaultPollInterval
	}
	if c.HandleCacheCapacity == 0 {
		c.HandleCacheCapacity = DefaultHandleCacheCapacity
	}
}
