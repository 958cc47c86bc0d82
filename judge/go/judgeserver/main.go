// The judge coordinator. Serves the submission, job, and problem API plus
// the live event stream, and hands out work to juries.
package main

import (
	"context"
	"flag"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/jackc/pgx/v4/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/easyctf/openctf-judge/go/cleanup"
	"github.com/easyctf/openctf-judge/go/common"
	"github.com/easyctf/openctf-judge/go/httputils"
	"github.com/easyctf/openctf-judge/go/sklog"
	"github.com/easyctf/openctf-judge/go/sser"
	"github.com/easyctf/openctf-judge/judge/go/auth"
	"github.com/easyctf/openctf-judge/judge/go/config"
	"github.com/easyctf/openctf-judge/judge/go/db"
	"github.com/easyctf/openctf-judge/judge/go/db/memory"
	"github.com/easyctf/openctf-judge/judge/go/db/sqldb"
	"github.com/easyctf/openctf-judge/judge/go/events"
	"github.com/easyctf/openctf-judge/judge/go/lifecycle"
	"github.com/easyctf/openctf-judge/judge/go/rpc"
)

// eventChannelName is the Redis pub/sub channel replicas share.
const eventChannelName = "judge.events"

// flags
var (
	inMemory = flag.Bool("in_memory", false, "Use the in-memory store instead of Postgres. For local development.")
	port     = flag.String("port", ":8000", "HTTP service address (e.g., ':8000')")
	promPort = flag.String("prom_port", ":20000", "Prometheus metrics address (e.g., ':20000')")
)

func main() {
	ctx := context.Background()
	common.InitWithMust(
		"judgeserver",
		common.PrometheusOpt(promPort),
	)
	defer common.Defer()

	cfg, err := config.Load("")
	if err != nil {
		sklog.Fatal(err)
	}

	var d db.DB
	if *inMemory || cfg.DatabaseURI == "" {
		sklog.Info("Using the in-memory store. State is lost on restart.")
		d = memory.New()
	} else {
		pool, err := pgxpool.Connect(ctx, cfg.DatabaseURI)
		if err != nil {
			sklog.Fatalf("Failed to connect to the database: %s", err)
		}
		cleanup.AtExit(pool.Close)
		d, err = sqldb.New(ctx, pool)
		if err != nil {
			sklog.Fatal(err)
		}
	}

	// The snapshotter is constructed empty: the sse server needs its
	// subscribe hook, and the router the hook publishes through needs the
	// sse server.
	var router events.Router = events.NewNopRouter()
	var sseHandler http.HandlerFunc
	if cfg.EnableSocketIO {
		var redisClient *redis.Client
		if cfg.RedisURI != "" {
			opts, err := redis.ParseURL(cfg.RedisURI)
			if err != nil {
				sklog.Fatalf("Invalid REDIS_URI: %s", err)
			}
			redisClient = redis.NewClient(opts)
		} else {
			sklog.Info("REDIS_URI is unset. Events will not reach subscribers on other replicas.")
		}
		snapshotter := &rpc.Snapshotter{}
		sseServer, err := sser.New(redisClient, eventChannelName, snapshotter.OnSubscribe)
		if err != nil {
			sklog.Fatal(err)
		}
		if err := sseServer.Start(ctx); err != nil {
			sklog.Fatal(err)
		}
		liveRouter := events.NewRouter(sseServer)
		snapshotter.Init(d, liveRouter)
		router = liveRouter
		sseHandler = sseServer.ClientConnectionHandler(ctx)
	} else {
		sklog.Info("Live updates are disabled by ENABLE_SOCKETIO.")
	}

	callbacks := lifecycle.NewCallbackPool()
	cleanup.AtExit(callbacks.Drain)
	engine := lifecycle.New(d, router, callbacks)

	api := rpc.New(d, engine, auth.New(d), sseHandler)
	r := chi.NewRouter()
	api.RegisterHandlers(r)

	h := httputils.LoggingRequestResponse(r)
	h = httputils.Healthz(h)

	http.Handle("/", h)
	sklog.Info("Ready to serve.")
	sklog.Fatal(http.ListenAndServe(*port, nil))
}
