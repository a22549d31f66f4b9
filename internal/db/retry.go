package db

import (
	"strings"
	"time"

	"github.com/mu3e-tools/tileangle/internal/timeutil"
)

const (
	maxBusyRetries   = 5
	initialBusyDelay = 10 * time.Millisecond
)

// isSQLiteBusy reports whether err is a SQLITE_BUSY / locked error.
func isSQLiteBusy(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "SQLITE_BUSY") || strings.Contains(msg, "database is locked")
}

// retryOnBusy runs fn, retrying with exponential backoff while SQLite reports
// the database as busy. Other errors are returned immediately.
func retryOnBusy(clock timeutil.Clock, fn func() error) error {
	delay := initialBusyDelay
	var err error
	for attempt := 1; attempt <= maxBusyRetries; attempt++ {
		err = fn()
		if !isSQLiteBusy(err) {
			return err
		}
		if attempt < maxBusyRetries {
			clock.Sleep(delay)
			delay *= 2
		}
	}
	return err
}
