/*
Package uhttpd is an embeddable HTTP/1.1 server core: a connection
finite-state machine driven entirely off readability/writability/idle
ticks, a per-connection bump-allocated memory pool instead of
per-request heap churn, and a small set of fixed execution models
(thread-per-connection, an internal epoll/kqueue loop, or readiness
sets handed to a host's own event loop).

It does not route, template, or otherwise decide what a response
should contain; an application supplies a Handler that reads the
in-flight request off a *Connection and calls Reply (or c.SetResponse)
with a Response before returning.

Quick start

	package main

	import (
		"log"

		"github.com/searchktools/uhttpd"
	)

	func main() {
		srv, err := uhttpd.New(
			uhttpd.WithPort(8080),
			uhttpd.WithHandler(func(c *uhttpd.Connection) {
				uhttpd.Reply(c, uhttpd.FromString("hello\n"))
			}),
		)
		if err != nil {
			log.Fatal(err)
		}

		if err := srv.Start(); err != nil {
			log.Fatal(err)
		}
		defer srv.Stop()

		select {}
	}

Modules

  - internal/pool: per-connection bump allocator with mark/reset reuse
  - internal/headers: case-insensitive, kind-filtered header store
  - response: reference-counted, immutable-after-send Response
  - internal/conn: the connection state machine and HTTP/1.1 wire codec
  - internal/tlsshim: a conn.IO implementation over crypto/tls
  - internal/poller: epoll/kqueue readiness multiplexing
  - config: functional-options Daemon configuration
  - daemon: the accept loop and the three execution models
*/
package uhttpd
