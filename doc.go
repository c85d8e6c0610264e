/*
Package tinyweb is an embedded HTTP server engine for serving a static
directory plus a handful of programmatic routes.

Connections are accepted on a single listener and spread over a fixed pool
of four worker threads. Each worker runs a cooperative executor that polls
per-connection futures; socket readiness comes from epoll on Linux and
kqueue on BSD and macOS. The protocol surface is deliberately small: GET
requests over HTTP/1.1, one request per connection, no header parsing.

Quick Start

	package main

	import (
	    "context"
	    "os"

	    "github.com/searchktools/tinyweb/app"
	    "github.com/searchktools/tinyweb/config"
	    "github.com/searchktools/tinyweb/core/codec"
	    "github.com/searchktools/tinyweb/core/http"
	)

	func main() {
	    cfg, err := config.Load(os.Args[1:])
	    if err != nil {
	        panic(err)
	    }
	    application, err := app.New(cfg)
	    if err != nil {
	        panic(err)
	    }

	    engine := application.Engine()
	    engine.Handle("/hello", http.Respond(func(s *http.Stream) error {
	        s.PushStr("Hello, World!")
	        return nil
	    }))
	    engine.HandleEncoded("/status", codec.JSON{}, func() (any, error) {
	        return map[string]string{"status": "running"}, nil
	    })

	    if err := application.Run(context.Background()); err != nil {
	        panic(err)
	    }
	}

Requests for "/" serve index.html from the static root, registered paths
run their handler, and any other path is read from the root by plain
concatenation, falling back to 404.html.

Modules

  - app: process lifecycle, logger construction and signal handling
  - config: environment and flag configuration
  - core: the Engine, route registration and the acceptor
  - core/future: poll-based futures, the task set and BlockOn
  - core/executor: job mailbox and the per-thread executor loop
  - core/pools: the worker thread pool and byte/buffer pools
  - core/poller: epoll/kqueue readiness notification
  - core/netio: non-blocking sockets and their I/O futures
  - core/http: request-line parsing, Stream and the connection state machine
  - core/router: the immutable route table
  - core/static: static root lookups
  - core/codec: JSON and Protobuf body codecs
*/
package tinyweb
