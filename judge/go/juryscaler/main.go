// The jury autoscaler. Sizes the DigitalOcean jury fleet from the judge's
// queue depth.
package main

import (
	"context"
	"flag"

	"github.com/jackc/pgx/v4/pgxpool"

	"github.com/easyctf/openctf-judge/go/cleanup"
	"github.com/easyctf/openctf-judge/go/common"
	"github.com/easyctf/openctf-judge/go/httputils"
	"github.com/easyctf/openctf-judge/go/sklog"
	"github.com/easyctf/openctf-judge/judge/go/autoscaler"
	"github.com/easyctf/openctf-judge/judge/go/config"
	"github.com/easyctf/openctf-judge/judge/go/db/sqldb"
)

// flags
var (
	period   = flag.Duration("period", autoscaler.TickPeriod, "How often to run the scaling loop.")
	port     = flag.String("port", ":8001", "HTTP service address for health checks (e.g., ':8001')")
	promPort = flag.String("prom_port", ":20001", "Prometheus metrics address (e.g., ':20001')")
)

func main() {
	ctx := context.Background()
	common.InitWithMust(
		"juryscaler",
		common.PrometheusOpt(promPort),
	)
	defer common.Defer()

	cfg, err := config.Load("")
	if err != nil {
		sklog.Fatal(err)
	}
	if cfg.DatabaseURI == "" {
		sklog.Fatal("DATABASE_URI is required; the scaler samples the queue the coordinator writes.")
	}
	if cfg.DigitalOceanAPIToken == "" {
		sklog.Fatal("DIGITALOCEAN_API_TOKEN is required.")
	}
	if cfg.JudgeURL == "" {
		sklog.Fatal("JUDGE_URL is required; new juries are told where to dial.")
	}

	pool, err := pgxpool.Connect(ctx, cfg.DatabaseURI)
	if err != nil {
		sklog.Fatalf("Failed to connect to the database: %s", err)
	}
	cleanup.AtExit(pool.Close)
	d, err := sqldb.New(ctx, pool)
	if err != nil {
		sklog.Fatal(err)
	}

	cloud := autoscaler.NewDigitalOcean(cfg.DigitalOceanAPIToken, d, cfg.JudgeURL)
	scaler, err := autoscaler.New(d, cloud)
	if err != nil {
		sklog.Fatal(err)
	}
	if err := scaler.Bootstrap(ctx); err != nil {
		sklog.Fatal(err)
	}

	cleanup.Repeat(*period, func() {
		if err := scaler.Tick(ctx); err != nil {
			sklog.Errorf("Scaling tick failed: %s", err)
		}
	}, nil)

	sklog.Info("Ready to scale.")
	httputils.RunHealthCheckServer(*port)
}
