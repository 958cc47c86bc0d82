package sser

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/easyctf/openctf-judge/go/httputils"
	"github.com/easyctf/openctf-judge/go/metrics2"
	"github.com/easyctf/openctf-judge/go/skerr"
	"github.com/easyctf/openctf-judge/go/sklog"
	"github.com/easyctf/openctf-judge/go/util"
	sse "github.com/r3labs/sse/v2"
	"github.com/redis/go-redis/v9"
)

const (
	// Send queues up to this many events before blocking the caller.
	sendQueueSize = 100

	clientConnectionsMetricName = "sse_client_connections"

	// originLength is the length of the random hex string that identifies a
	// replica on the backplane channel.
	originLength = 16
)

var (
	ErrStreamNameRequired = errors.New("no stream name in query parameters")

	// ErrEmptyMessage guards Send; an empty SSE data frame is
	// indistinguishable from a keep-alive on the client side.
	ErrEmptyMessage = errors.New("an empty message cannot be sent over SSE")
)

// Event is serialized as JSON to be relayed to every replica over the
// backplane channel.
type Event struct {
	// Origin identifies the replica that first published the Event, so that
	// a replica can ignore its own events when they arrive back via Redis.
	Origin string `json:"origin"`
	Stream string `json:"stream"`
	Data   string `json:"data"`
}

// ServerImpl implements Server.
//
// All replicas of an app subscribe to the same Redis pub/sub channel. Send
// publishes an event both to the local subscribers and to the channel, and
// each replica replays channel events that originated elsewhere to its own
// local subscribers. A nil Redis client turns the backplane off, which
// serves single-replica deployments and tests.
type ServerImpl struct {
	// origin distinguishes this replica's events on the shared channel.
	origin string

	// The Redis pub/sub channel shared by all replicas of the app.
	channelName string

	client *redis.Client

	// server holds the per-stream local subscribers.
	server *sse.Server

	// sendCh carries events from Send into the goroutine started by Start.
	sendCh chan Event
}

// New returns a new unstarted *ServerImpl.
//
// A nil client runs the server without the backplane, in which case events
// only reach the clients connected to this process. onSubscribe, which may
// be nil, is called on its own go routine each time a client subscribes to
// a stream, after the subscription has been registered, so it can safely
// push an initial message to the new subscriber via SendLocal.
func New(client *redis.Client, channelName string, onSubscribe func(stream string)) (*ServerImpl, error) {
	origin, err := util.RandHexString(originLength)
	if err != nil {
		return nil, skerr.Wrap(err)
	}
	server := sse.New()
	server.AutoStream = true
	server.AutoReplay = false
	if onSubscribe != nil {
		server.OnSubscribe = func(streamID string, sub *sse.Subscriber) {
			onSubscribe(streamID)
		}
	}
	return &ServerImpl{
		origin:      origin,
		channelName: channelName,
		client:      client,
		server:      server,
		sendCh:      make(chan Event, sendQueueSize),
	}, nil
}

// Start implements Server.
func (s *ServerImpl) Start(ctx context.Context) error {
	if s.client != nil {
		if err := s.client.Ping(ctx).Err(); err != nil {
			return skerr.Wrapf(err, "pinging redis")
		}
		sub := s.client.Subscribe(ctx, s.channelName)
		// Wait for the subscription confirmation so that events published by
		// peers after Start returns are never missed.
		if _, err := sub.Receive(ctx); err != nil {
			return skerr.Wrapf(err, "subscribing to %q", s.channelName)
		}
		go s.replayPeerEvents(ctx, sub)
	}
	go s.drainSendCh(ctx)
	return nil
}

// drainSendCh delivers events handed to Send to the local subscribers and to
// the backplane channel.
func (s *ServerImpl) drainSendCh(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case e := <-s.sendCh:
			s.publishLocal(e.Stream, e.Data)
			if s.client == nil {
				continue
			}
			b, err := json.Marshal(e)
			if err != nil {
				sklog.Errorf("failed to serialize Event: %s", err)
				continue
			}
			if err := s.client.Publish(ctx, s.channelName, b).Err(); err != nil {
				sklog.Errorf("notifying peers over %q: %s", s.channelName, err)
			}
		}
	}
}

// replayPeerEvents delivers backplane events that originated on other
// replicas to the local subscribers.
func (s *ServerImpl) replayPeerEvents(ctx context.Context, sub *redis.PubSub) {
	defer util.Close(sub)
	ch := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return
		case m, ok := <-ch:
			if !ok {
				return
			}
			var e Event
			if err := json.Unmarshal([]byte(m.Payload), &e); err != nil {
				sklog.Errorf("failed to deserialize Event: %s", err)
				continue
			}
			if e.Origin == s.origin {
				continue
			}
			s.publishLocal(e.Stream, e.Data)
		}
	}
}

// publishLocal delivers an event to the stream's subscribers connected to
// this process. Streams are created when a client subscribes, so publishing
// to a stream nobody is watching is a no-op.
func (s *ServerImpl) publishLocal(stream, msg string) {
	s.server.Publish(stream, &sse.Event{
		Data: []byte(msg),
	})
}

// ClientConnectionHandler implements Server.
func (s *ServerImpl) ClientConnectionHandler(ctx context.Context) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		stream := r.FormValue(QueryParameterName)
		if stream == "" {
			httputils.ReportError(w, ErrStreamNameRequired, "The stream query parameter is required", http.StatusBadRequest)
			return
		}
		if !s.server.StreamExists(stream) {
			s.server.CreateStream(stream)
		}
		connections := metrics2.GetCounter(clientConnectionsMetricName, map[string]string{"stream": stream})
		connections.Inc(1)
		defer connections.Dec(1)
		s.server.ServeHTTP(w, r)
	}
}

// Send implements Server.
func (s *ServerImpl) Send(ctx context.Context, stream string, msg string) error {
	if msg == "" {
		return ErrEmptyMessage
	}
	s.sendCh <- Event{Origin: s.origin, Stream: stream, Data: msg}
	return nil
}

// SendLocal implements Server.
func (s *ServerImpl) SendLocal(ctx context.Context, stream string, msg string) error {
	if msg == "" {
		return ErrEmptyMessage
	}
	s.publishLocal(stream, msg)
	return nil
}

var _ Server = (*ServerImpl)(nil)
