// Package util contains small shared helpers.
package util

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"io"
	"time"

	"github.com/easyctf/openctf-judge/go/sklog"
)

// Close closes c and logs any error. Meant for deferred calls where the
// error would otherwise be dropped.
func Close(c io.Closer) {
	if err := c.Close(); err != nil {
		// Attribute the log line to whoever deferred the Close.
		sklog.ErrorfWithDepth(1, "Failed to Close(): %v", err)
	}
}

// RepeatCtx calls fn immediately and then once per interval until ctx is
// canceled.
func RepeatCtx(interval time.Duration, ctx context.Context, fn func()) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	fn()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			fn()
		}
	}
}

// RandHexString returns a string of length lower-case hex characters drawn
// from crypto/rand. Used for API-key tokens and jury instance names.
func RandHexString(length int) (string, error) {
	b := make([]byte, (length+1)/2)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b)[:length], nil
}
