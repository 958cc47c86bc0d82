// Package sser implements a Server-Sent Events (SSE) server that works
// across multiple replicas of an application by relaying every event over a
// shared Redis pub/sub channel.
//
// Clients subscribe to named streams. An event published on any replica
// reaches the subscribers of that stream on every replica.
package sser

import (
	"context"
	"net/http"
)

// QueryParameterName is the query parameter that carries the stream name on
// incoming client connections.
const QueryParameterName = "stream"

// Server sends events to all the clients subscribed to a stream, regardless
// of which replica of the application they are connected to.
type Server interface {
	// Start the Server. Must be called before any other method.
	Start(ctx context.Context) error

	// ClientConnectionHandler returns an http.HandlerFunc that upgrades
	// incoming client connections to SSE. The stream name is read from the
	// QueryParameterName query parameter.
	ClientConnectionHandler(ctx context.Context) http.HandlerFunc

	// Send the msg to every client subscribed to the stream, on every
	// replica.
	Send(ctx context.Context, stream string, msg string) error

	// SendLocal sends the msg only to the stream's subscribers connected to
	// this replica.
	SendLocal(ctx context.Context, stream string, msg string) error
}
