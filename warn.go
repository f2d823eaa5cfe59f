package qsim

import (
	"sync"

	"github.com/sirupsen/logrus"
)

// Warner rate-limits recoverable warnings.  Each kind of warning is logged
// the first limit times it fires; the last of those is followed by a notice
// that further occurrences are suppressed.  A Warner is scoped to one run
// (it hangs off the Engine) rather than being process global, so repeated
// runs in one process each get their full allowance.
type Warner struct {
	mu     sync.Mutex
	log    *logrus.Entry
	limit  int
	counts map[string]int
}

// NewWarner builds a Warner logging through log.  A nil log uses the standard logrus logger
func NewWarner(log *logrus.Entry, limit int) *Warner {
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	if limit < 1 {
		limit = 1
	}
	return &Warner{log: log, limit: limit, counts: make(map[string]int)}
}

// Warnf logs the formatted message under the named kind unless that kind is exhausted.
// The return is true if the message was logged.
func (w *Warner) Warnf(kind string, fields logrus.Fields, format string, args ...any) bool {
	w.mu.Lock()
	w.counts[kind]++
	n := w.counts[kind]
	w.mu.Unlock()

	if n > w.limit {
		return false
	}
	entry := w.log.WithField("kind", kind)
	if fields != nil {
		entry = entry.WithFields(fields)
	}
	entry.Warnf(format, args...)
	if n == w.limit {
		entry.Warnf("further occurrences of %s suppressed", kind)
	}
	return true
}

// Count returns how many times the named kind has fired, logged or not
func (w *Warner) Count(kind string) int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.counts[kind]
}

// Reset forgets all counts
func (w *Warner) Reset() {
	w.mu.Lock()
	w.counts = make(map[string]int)
	w.mu.Unlock()
}
