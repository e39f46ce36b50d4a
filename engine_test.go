package nntp

import (
	"fmt"
	"math/rand"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func readyTestConn(t *testing.T, cfg Config) (*Conn, *recordChannel) {
	t.Helper()
	c, ch := newTestConn(cfg)
	feed(c, "200 news.example.com ready\r\n")
	require.True(t, c.Ready())
	return c, ch
}

func TestScenarioStatFound(t *testing.T) {
	var got *Request
	c, ch := readyTestConn(t, Config{Handlers: Handlers{
		"on_stat": func(c *Conn, req *Request) { got = req },
	}})

	req, err := c.Stat("<1@x>")
	require.NoError(t, err)
	require.Equal(t, "STAT <1@x>\r\n", sent(c, ch))

	feed(c, "223 1@x found\r\n")
	require.Same(t, req, got)
	require.Equal(t, 223, got.Code)
	require.Equal(t, "1@x found", got.Message)
	require.Equal(t, []string{"<1@x>"}, got.Args)
}

func TestScenarioStatMissing(t *testing.T) {
	var codes []int
	c, _ := readyTestConn(t, Config{Handlers: Handlers{
		"on_stat": func(c *Conn, req *Request) { codes = append(codes, req.Code) },
	}})

	_, err := c.Stat("<2@x>")
	require.NoError(t, err)
	feed(c, "430 No Such Article\r\n")
	require.Equal(t, []int{430}, codes)
}

func TestScenarioMultiLineSplitAcrossReads(t *testing.T) {
	var got *Request
	c, _ := readyTestConn(t, Config{Handlers: Handlers{
		"on_list": func(c *Conn, req *Request) { got = req },
	}})

	_, err := c.List()
	require.NoError(t, err)

	feed(c, "215 list follows\r\nalt.a 1 2 y\r\nalt.b 3 4 n\r\nalt.c 5 6 m\r\n.", "\r\n")
	require.NotNil(t, got)
	require.NoError(t, got.Err())
	require.Equal(t, 215, got.Code)
	require.Equal(t, []string{"215 list follows", "alt.a 1 2 y", "alt.b 3 4 n", "alt.c 5 6 m"}, got.Lines())
	require.False(t, c.InFlight())
}

func TestMultiLineEmptyBody(t *testing.T) {
	var got *Request
	c, _ := readyTestConn(t, Config{Handlers: Handlers{
		"on_listgroup": func(c *Conn, req *Request) { got = req },
	}})

	_, err := c.ListGroup("alt.empty", "")
	require.NoError(t, err)
	feed(c, "211 0 0 0 alt.empty\r\n.\r\n")

	require.NotNil(t, got)
	require.Equal(t, []string{"211 0 0 0 alt.empty"}, got.Lines())
	require.Empty(t, got.Body())
}

func TestMultiLineCommandWithErrorStatus(t *testing.T) {
	var articles, stats []*Request
	c, ch := readyTestConn(t, Config{Handlers: Handlers{
		"on_article": func(c *Conn, req *Request) { articles = append(articles, req) },
		"on_stat":    func(c *Conn, req *Request) { stats = append(stats, req) },
	}})

	_, err := c.Article("<gone@x>")
	require.NoError(t, err)
	_, err = c.Stat("<here@x>")
	require.NoError(t, err)
	require.Equal(t, "ARTICLE <gone@x>\r\n", sent(c, ch))

	// 430 carries no data block, so it completes at its status line.
	feed(c, "430 No Such Article\r\n")
	require.Len(t, articles, 1)
	require.Equal(t, 430, articles[0].Code)
	require.Equal(t, "STAT <here@x>\r\n", sent(c, ch))

	feed(c, "223 0 <here@x>\r\n")
	require.Len(t, stats, 1)
}

func TestFIFOAttributionAnyArrivalPattern(t *testing.T) {
	const count = 20
	rng := rand.New(rand.NewSource(7))

	for round := 0; round < 25; round++ {
		var order []string
		maxInFlight := 0
		c, _ := readyTestConn(t, Config{Handlers: Handlers{
			"on_stat": func(c *Conn, req *Request) {
				require.Equal(t, fmt.Sprintf("0 %s", req.Args[0]), req.Message)
				order = append(order, req.Args[0])
			},
			"on_list": func(c *Conn, req *Request) {
				require.Len(t, req.Body(), 2)
				order = append(order, "list")
			},
		}})

		var want []string
		var stream strings.Builder
		for i := 0; i < count; i++ {
			if i%7 == 3 {
				_, err := c.List()
				require.NoError(t, err)
				want = append(want, "list")
				stream.WriteString("215 list\r\nalt.x 1 1 y\r\n..dot 1 1 y\r\n.\r\n")
				continue
			}
			id := fmt.Sprintf("<%d@x>", i)
			_, err := c.Stat(id)
			require.NoError(t, err)
			want = append(want, id)
			stream.WriteString("223 0 " + id + "\r\n")
		}

		data := []byte(stream.String())
		for len(data) > 0 {
			n := 1 + rng.Intn(min(len(data), 40))
			feed(c, string(data[:n]))
			data = data[n:]

			c.mu.Lock()
			inFlight := 0
			if c.pipe.inFlight != nil {
				inFlight = 1
			}
			c.mu.Unlock()
			maxInFlight = max(maxInFlight, inFlight)
		}

		require.Equal(t, want, order)
		require.LessOrEqual(t, maxInFlight, 1)
		require.Zero(t, c.Queued())
	}
}

func TestRequestsQueuedBeforeGreeting(t *testing.T) {
	c, ch := newTestConn(Config{})

	_, err := c.Stat("<1@x>")
	require.NoError(t, err)
	require.Empty(t, sent(c, ch), "nothing is sent before the greeting")

	feed(c, "200 hello\r\n")
	require.Equal(t, "STAT <1@x>\r\n", sent(c, ch))
	require.Equal(t, "hello", c.Welcome())
}

func TestRequestReuse(t *testing.T) {
	c, _ := readyTestConn(t, Config{})

	req := NewRequest("DATE")
	require.NoError(t, c.Send(req))
	require.ErrorIs(t, c.Send(req), ErrRequestReused)
}

func TestInvalidArgumentRejected(t *testing.T) {
	c, ch := readyTestConn(t, Config{})

	_, err := c.Stat("<1@x>\r\nQUIT")
	require.Error(t, err)
	require.Empty(t, sent(c, ch))
}

func TestFramingErrorStillDispatched(t *testing.T) {
	var got *Request
	c, _ := readyTestConn(t, Config{Handlers: Handlers{
		"on_date": func(c *Conn, req *Request) { got = req },
	}})

	_, err := c.Date()
	require.NoError(t, err)
	feed(c, "garbage\r\n")

	require.NotNil(t, got)
	require.Error(t, got.Err())

	// The connection keeps going.
	_, err = c.Date()
	require.NoError(t, err)
	feed(c, "111 20240101000000\r\n")
	require.NoError(t, got.Err())
	require.Equal(t, 111, got.Code)
}

func TestUnsolicitedResponses(t *testing.T) {
	var events []Event
	record := func(ev Event) Handler {
		return func(c *Conn, req *Request) {
			require.True(t, req.Unsolicited())
			events = append(events, ev)
		}
	}
	c, _ := newTestConn(Config{Handlers: Handlers{
		EventConnect:    record(EventConnect),
		EventDisconnect: record(EventDisconnect),
	}})

	feed(c, "201 read only\r\n")
	feed(c, "199 debug\r\n")
	feed(c, "400 service discontinued\r\n")

	require.Equal(t, []Event{EventConnect, EventDisconnect}, events)
	require.False(t, c.Ready())

	s := c.Stats()
	require.EqualValues(t, 3, s.Unsolicited)
	require.EqualValues(t, 3, s.Completed)
}

func TestInternalHandlerRunsFirst(t *testing.T) {
	var welcomedInHandler bool
	c, _ := newTestConn(Config{Handlers: Handlers{
		EventConnect: func(c *Conn, req *Request) {
			c.mu.Lock()
			welcomedInHandler = c.welcomed
			c.mu.Unlock()
		},
	}})

	feed(c, "200 hi\r\n")
	require.True(t, welcomedInHandler)
}

func TestHandleReplacesAndRemoves(t *testing.T) {
	calls := 0
	c, _ := readyTestConn(t, Config{})

	c.Handle("on_date", func(c *Conn, req *Request) { calls++ })
	_, _ = c.Date()
	feed(c, "111 20240101000000\r\n")

	c.Handle("on_date", nil)
	_, _ = c.Date()
	feed(c, "111 20240101000000\r\n")

	require.Equal(t, 1, calls)
}

func TestEventFor(t *testing.T) {
	require.Equal(t, Event("on_stat"), EventFor("STAT"))
	require.Equal(t, Event("on_listgroup"), EventFor("LISTGROUP"))
}
