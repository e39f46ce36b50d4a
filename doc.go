// Package nntp is an asynchronous NNTP (RFC 3977) client.
//
// Many connections share a single Reactor loop. Each Conn sends its
// requests one at a time, in submission order, and matches responses to
// them in that order. Responses are delivered to handlers keyed by event
// name, and built-in protocol handlers (greeting, authentication) always
// run before user handlers of the same event.
//
// # Quick start
//
//	r, err := nntp.NewReactor(nil)
//	if err != nil {
//	    return err
//	}
//	loop := r.Start()
//	defer loop.Stop()
//
//	conn, err := nntp.Dial(ctx, r, nntp.Config{
//	    Host:     "news.example.com",
//	    Port:     563,
//	    Username: "bob",
//	    Password: "secret",
//	    Handlers: nntp.Handlers{
//	        "on_stat": func(c *nntp.Conn, req *nntp.Request) {
//	            fmt.Println(req.Args[0], req.Code)
//	        },
//	    },
//	})
//
//	conn.Stat("<1@example>")
//
// Requests sent before the session is ready wait in the queue. Use
// Request.Wait to block on a single response, or Pool for a blocking API
// over several connections.
//
// # Single-threaded use
//
// Instead of Start, call Reactor.Poll from the goroutine that owns the
// connections:
//
//	for !done {
//	    if _, err := r.Poll(100 * time.Millisecond); err != nil {
//	        return err
//	    }
//	}
//
// # Encryption
//
// TLS is used when Config.TLS is TLSOn, or with TLSAuto when the port is
// 443 or 563. The handshake runs as a sequence of non-blocking steps
// driven by socket readiness; nothing is sent before it completes.
//
// # Failures
//
// Transport and handshake errors close the connection and are reported to
// Config.OnError. Queued requests survive and are sent again after
// Conn.Reconnect. A response that could not be parsed is still dispatched,
// with Request.Err set.
package nntp
