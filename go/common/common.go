// Package common handles tool initialization. Import only from package main.
package common

import (
	"github.com/easyctf/openctf-judge/go/cleanup"
	"github.com/easyctf/openctf-judge/go/sklog"
)

// Defer should be deferred at the top of main()'s defer stack, e.g.:
//
//	func main() {
//	  defer common.Defer()
//	  ...
//	}
//
// It runs the registered cleanup functions and flushes the logs before the
// process exits, including on a panic.
func Defer() {
	if r := recover(); r != nil {
		// sklog.Fatal does not actually panic (it exits), so we don't need to
		// worry about this call recursing.
		sklog.Fatal(r)
	}
	cleanup.Cleanup()
	sklog.Flush()
}
