// Package compaction decides when the active segment has grown past its
// configured threshold and drives the rotate-and-compact procedure, then
// rebuilds the in-memory indexes for the segment it just retired.
//
// The rewrite mechanics themselves — forward-scanning the retiring
// segment, building the last-write-wins set, and atomically swapping in
// the compacted metadata+data pair — live in internal/storage, since they
// need direct access to the segment's unexported file handles. This
// package is the policy layer on top: should we compact right now, and
// what does the index need to do once we have.
package compaction

import (
	"github.com/iamNilotpal/strata/internal/index"
	"github.com/iamNilotpal/strata/internal/schema"
	"github.com/iamNilotpal/strata/internal/storage"
	"github.com/iamNilotpal/strata/pkg/errors"
	"go.uber.org/zap"
)

// Compaction coordinates storage's rotate-and-compact procedure with the
// index rebuild it requires afterward.
type Compaction struct {
	log     *zap.SugaredLogger
	schema  *schema.Schema
	storage *storage.Storage
	index   *index.Index
}

// Config encapsulates the configuration parameters required to initialize
// a Compaction.
type Config struct {
	Schema  *schema.Schema
	Storage *storage.Storage
	Index   *index.Index
	Logger  *zap.SugaredLogger
}

// New builds a Compaction bound to one storage handle, index, and schema.
func New(config *Config) (*Compaction, error) {
	if config == nil || config.Schema == nil || config.Storage == nil || config.Index == nil || config.Logger == nil {
		return nil, errors.NewValidationError(
			nil, errors.ErrorCodeInvalidInput, "compaction configuration is required",
		).WithField("config").WithRule("required")
	}
	return &Compaction{
		log:     config.Logger,
		schema:  config.Schema,
		storage: config.Storage,
		index:   config.Index,
	}, nil
}

// Due reports whether the active segment has reached its configured
// rotation threshold.
func (c *Compaction) Due() bool {
	return c.storage.ShouldRotate()
}

// Run rotates the active segment out, rewrites it last-write-wins, and
// points the index's refresh cursor at the start of the compacted segment
// so the next Refresh rebuilds exactly the entries that segment now
// contains — rather than the stale entries it held before compaction
// rewrote its offsets out from under them.
func (c *Compaction) Run() error {
	compactedNum, err := c.storage.RotateAndCompact(c.schema)
	if err != nil {
		return err
	}

	c.log.Infow("segment compacted", "segment", compactedNum)
	c.index.SetCursor(index.Cursor{Segment: compactedNum, Index: 0})
	return c.index.Refresh(c.storage)
}
