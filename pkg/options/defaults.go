package options

const (
	// DefaultDataDir is the base directory used when none is supplied.
	DefaultDataDir = "/var/lib/stratadb"

	// MinSegmentSize is the smallest allowed segment size (512MB).
	MinSegmentSize uint64 = 512 * 1024 * 1024

	// MaxSegmentSize is the largest allowed segment size (4GB).
	MaxSegmentSize uint64 = 4 * 1024 * 1024 * 1024

	// DefaultSegmentSize is the target segment size used when none is
	// supplied (1GB).
	DefaultSegmentSize uint64 = 1 * 1024 * 1024 * 1024
)

// defaultOptions holds the baseline configuration for a strata handle.
var defaultOptions = Options{
	DataDir:         DefaultDataDir,
	SegmentSize:     DefaultSegmentSize,
	WriteDurability: DurabilityFlush,
	ReadConsistency: Eventual,
}

// NewDefaultOptions returns a copy of the library's default options.
func NewDefaultOptions() Options {
	return defaultOptions
}
