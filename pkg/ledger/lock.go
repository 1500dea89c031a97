package ledger

import (
	"fmt"
	"os"
	"time"

	"github.com/rs/zerolog/log"
)

const (
	lockAttempts = 3
	lockBackoff  = 75 * time.Millisecond

	// A lock file older than this is assumed to be left over from a crashed
	// writer and is broken.
	lockStaleAfter = 30 * time.Second
)

// acquireFileLock takes an advisory exclusive lock on the given table file by
// creating a sibling lock file. Acquisition is retried a bounded number of
// times with linear backoff. The returned release function removes the lock.
func acquireFileLock(path string) (func(), error) {
	lockPath := path + ".lock"

	var lastErr error
	for attempt := 1; attempt <= lockAttempts; attempt++ {
		f, err := os.OpenFile(lockPath, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o600)
		if err == nil {
			fmt.Fprintf(f, "%d %s\n", os.Getpid(), time.Now().Format(time.RFC3339))
			f.Close()
			return func() {
				if err := os.Remove(lockPath); err != nil && !os.IsNotExist(err) {
					log.Warn().Str("lock", lockPath).Err(err).Msg("Failed to release lock file")
				}
			}, nil
		}
		if !os.IsExist(err) {
			return nil, fmt.Errorf("failed to create lock file: %w", err)
		}
		lastErr = err

		if info, statErr := os.Stat(lockPath); statErr == nil && time.Since(info.ModTime()) > lockStaleAfter {
			log.Warn().Str("lock", lockPath).Msg("Breaking stale lock file")
			os.Remove(lockPath)
			continue
		}

		if attempt < lockAttempts {
			time.Sleep(time.Duration(attempt) * lockBackoff)
		}
	}

	return nil, fmt.Errorf("lock held after %d attempts: %w", lockAttempts, lastErr)
}
