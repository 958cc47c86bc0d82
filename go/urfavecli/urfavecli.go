// Package urfavecli contains utilities for working with the urfave/cli
// package.
package urfavecli

import (
	cli "github.com/urfave/cli/v2"

	"github.com/easyctf/openctf-judge/go/sklog"
)

// LogFlags logs the name and value of every flag, both the app level flags
// and the flags for the command being run, if any. It should be called at the
// start of a command's Action.
func LogFlags(c *cli.Context) {
	for _, fl := range c.App.Flags {
		name := fl.Names()[0]
		sklog.Infof("Flags: --%s=%v", name, c.Value(name))
	}
	if c.Command == nil {
		return
	}
	for _, fl := range c.Command.Flags {
		name := fl.Names()[0]
		sklog.Infof("Flags: --%s=%v", name, c.Value(name))
	}
}
