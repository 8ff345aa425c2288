package tiercache

// Stats is a point-in-time snapshot of cache counters and fast-tier
// accounting. Hit/miss counters cover Get only; Has and Preload's internal
// reads count like any other Get.
type Stats struct {
	Hits      uint64
	Misses    uint64
	Evictions uint64

	// HitRate is hits/(hits+misses), 0 when no Get has been issued.
	HitRate float64

	// Fast tier only.
	Entries int
	Bytes   int64

	// Per-category breakdown of fast-tier entries.
	Categories map[string]CategoryStats
}

type CategoryStats struct {
	Entries int
	Bytes   int64
}
