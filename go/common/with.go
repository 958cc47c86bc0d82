package common

import (
	"flag"
	"os"
	"sort"

	"github.com/easyctf/openctf-judge/go/metrics2"
	"github.com/easyctf/openctf-judge/go/skerr"
	"github.com/easyctf/openctf-judge/go/sklog"
)

// Opt is one optional piece of process initialization, such as serving
// Prometheus metrics.
//
// Initialization is order dependent: flags must be parsed before anything
// reads them, and metrics must be registered before the first scrape. Each
// Opt therefore declares a fixed position via order(), and runs in two
// phases, setup() across all Opts first and then start().
//
// Pass the desired Opts to InitWith:
//
//	common.InitWith(
//		"judgeserver",
//		common.PrometheusOpt(promPort),
//	)
type Opt interface {
	// order fixes the position of this Opt among all Opts. One Opt per
	// order value.
	order() int
	setup(appName string) error
	start(appName string) error
}

// flagsOpt parses flags and logs the process identity. It is added to every
// InitWith call and sorts first.
type flagsOpt struct{}

func (f *flagsOpt) order() int {
	return 0
}

func (f *flagsOpt) setup(appName string) error {
	flag.Parse()
	return nil
}

func (f *flagsOpt) start(appName string) error {
	flag.VisitAll(func(fl *flag.Flag) {
		sklog.Infof("Flags: --%s=%v", fl.Name, fl.Value)
	})
	sklog.Infof("Running as %d:%d", os.Getuid(), os.Getgid())
	return nil
}

// promOpt serves Prometheus metrics.
type promOpt struct {
	port *string
}

// PrometheusOpt returns an Opt which serves metrics on the given port.
func PrometheusOpt(port *string) Opt {
	return &promOpt{
		port: port,
	}
}

func (o *promOpt) order() int {
	return 1
}

func (o *promOpt) setup(appName string) error {
	metrics2.InitPrometheus(*o.port)
	return nil
}

func (o *promOpt) start(appName string) error {
	// App uptime.
	_ = metrics2.NewLiveness("uptime", nil)
	return nil
}

// InitWith initializes the process: flags, logging, and whatever the given
// Opts add.
func InitWith(appName string, opts ...Opt) error {
	opts = append(opts, &flagsOpt{})
	sort.Slice(opts, func(i, j int) bool {
		return opts[i].order() < opts[j].order()
	})
	for i := 0; i < len(opts)-1; i++ {
		if opts[i].order() == opts[i+1].order() {
			return skerr.Fmt("Only one of each type of Opt can be used.")
		}
	}
	for _, o := range opts {
		if err := o.setup(appName); err != nil {
			return skerr.Wrap(err)
		}
	}
	for _, o := range opts {
		if err := o.start(appName); err != nil {
			return skerr.Wrap(err)
		}
	}
	sklog.Flush()
	return nil
}

// InitWithMust calls InitWith and exits on failure.
func InitWithMust(appName string, opts ...Opt) {
	if err := InitWith(appName, opts...); err != nil {
		sklog.Fatalf("Failed to initialize: %s", err)
	}
}
