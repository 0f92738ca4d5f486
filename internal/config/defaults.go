package config

const (
	defaultDataDir           = "~/.local/share/chunkq"
	defaultLogDir            = "~/.local/share/chunkq/logs"
	defaultAPIBind           = "127.0.0.1:7491"
	defaultLogFormat         = "console"
	defaultLogLevel          = "info"
	defaultItemsPerTask      = 100
	defaultPollPeriodSeconds = 5
	defaultBlocksMin         = 1
	defaultBlocksMax         = 4
	defaultBlocksMinItems    = 1
	defaultWorkerTimeout     = 60
	defaultWorkers           = 4
	defaultVacuumBatchSize   = 500
	defaultPushBufferSize    = 64
	defaultChunkCacheSize    = 4096
)

var defaultIndexes = []string{"itemkeys", "segments"}

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Paths: Paths{
			DataDir: defaultDataDir,
			LogDir:  defaultLogDir,
			APIBind: defaultAPIBind,
		},
		Queue: Queue{
			ItemsPerTask:      defaultItemsPerTask,
			PollPeriodSeconds: defaultPollPeriodSeconds,
			BlocksMin:         defaultBlocksMin,
			BlocksMax:         defaultBlocksMax,
			BlocksMinItems:    defaultBlocksMinItems,
			WorkerTaskTimeout: defaultWorkerTimeout,
			VacuumBatchSize:   defaultVacuumBatchSize,
		},
		Worker: Worker{
			Concurrency: defaultWorkers,
		},
		Indexes: Indexes{
			Enabled:        append([]string(nil), defaultIndexes...),
			SegmentBuckets: 64,
		},
		Storage: Storage{
			ChunkCacheSize: defaultChunkCacheSize,
		},
		Push: Push{
			Enabled:             true,
			BufferSize:          defaultPushBufferSize,
			WriteTimeoutSeconds: 10,
		},
		Logging: Logging{
			Format: defaultLogFormat,
			Level:  defaultLogLevel,
		},
	}
}
