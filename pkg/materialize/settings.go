package materialize

// Settings are the per-job knobs of the sync worker. Times are milliseconds.
type Settings struct {
	MaxFlushDataTime                uint64 `json:"max_flush_data_time"`
	MaxRowsInBuffer                 uint64 `json:"max_rows_in_buffer"`
	MaxBytesInBuffer                uint64 `json:"max_bytes_in_buffer"`
	MaxRowsInBuffers                uint64 `json:"max_rows_in_buffers"`
	MaxBytesInBuffers               uint64 `json:"max_bytes_in_buffers"`
	MaxWaitTimeWhenMysqlUnavailable uint64 `json:"max_wait_time_when_mysql_unavailable"`
}

func DefaultSettings() *Settings {
	return &Settings{
		MaxFlushDataTime:                1000,
		MaxRowsInBuffer:                 65535,
		MaxBytesInBuffer:                1048576,
		MaxRowsInBuffers:                65535,
		MaxBytesInBuffers:               1048576,
		MaxWaitTimeWhenMysqlUnavailable: 1000,
	}
}
