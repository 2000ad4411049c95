package ingest

// Config tunes the import engine.
type Config struct {
	// ChunkSize bounds how many record mutations share one transaction.
	ChunkSize int `mapstructure:"chunk_size" default:"500"`
	// FetchAttempts is the total number of tries for a transient fetch
	// failure, first attempt included.
	FetchAttempts int `mapstructure:"fetch_attempts" default:"3"`
	// QueueDepth bounds how many fetched pages may wait for normalization.
	QueueDepth int `mapstructure:"queue_depth" default:"4"`
}

func (c Config) queueDepth() int {
	if c.QueueDepth <= 0 {
		return 4
	}
	return c.QueueDepth
}

func (c Config) fetchAttempts() int {
	if c.FetchAttempts <= 0 {
		return 3
	}
	return c.FetchAttempts
}
