package storage

import (
	"github.com/iamNilotpal/strata/pkg/options"
	"go.uber.org/zap"
)

// Config encapsulates the configuration parameters required to initialize a
// Storage instance.
type Config struct {
	Options *options.Options
	Logger  *zap.SugaredLogger
}
