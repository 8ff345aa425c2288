package tiercache

// Hooks are lightweight callbacks for high-signal events.
// Implementations MUST be cheap and non-blocking - the cache calls them on
// hot paths. Wrap with hooks/async to decouple slow sinks.
type Hooks interface {
	// A backing store failed on read or write for the named tier.
	// The fault was swallowed; the operation degraded to a miss/no-op.
	TierFault(level Level, op, storageKey string, err error)

	// A persisted or compacted entry could not be decoded.
	// reason is "corrupt" or "value_decode".
	DecodeFault(storageKey, reason string)

	// An entry was evicted from the fast tier under capacity pressure.
	Evicted(key, category string, size int64)

	// An entry expired and was removed (lazily on read or by the sweep).
	Expired(key string)

	// A deletion cascaded to dependent keys.
	Cascade(key string, dependents int)

	// A background stale-while-revalidate refresh failed.
	RefreshFault(key string, err error)
}

// NopHooks is the default no-op
type NopHooks struct{}

func (NopHooks) TierFault(Level, string, string, error) {}
func (NopHooks) DecodeFault(string, string)             {}
func (NopHooks) Evicted(string, string, int64)          {}
func (NopHooks) Expired(string)                         {}
func (NopHooks) Cascade(string, int)                    {}
func (NopHooks) RefreshFault(string, error)             {}
