package pool

import "github.com/sirupsen/logrus"

// newLogger returns the structured logger an Allocator attaches to its
// arenas, falling back to a logrus entry with sane defaults when cfg
// carries none (config.go's withDefaults already guarantees cfg.Logger is
// non-nil by the time this runs, but newLogger stays defensive for direct
// callers in tests).
func newLogger(cfg Config) *logrus.Entry {
	if cfg.Logger != nil {
		return cfg.Logger
	}
	l := logrus.New()
	l.SetLevel(logrus.InfoLevel)
	return logrus.NewEntry(l)
}
