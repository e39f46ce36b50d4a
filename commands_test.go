package nntp

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestCommandHelpers(t *testing.T) {
	tests := []struct {
		name  string
		send  func(c *Conn) (*Request, error)
		line  string
		event Event
	}{
		{"username", func(c *Conn) (*Request, error) { return c.Username("bob") }, "AUTHINFO USER bob\r\n", EventUsername},
		{"password", func(c *Conn) (*Request, error) { return c.Password("s3cret") }, "AUTHINFO PASS s3cret\r\n", EventPassword},
		{"mode reader", (*Conn).ModeReader, "MODE READER\r\n", EventModeReader},
		{"group", func(c *Conn) (*Request, error) { return c.Group("alt.test") }, "GROUP alt.test\r\n", "on_group"},
		{"listgroup", func(c *Conn) (*Request, error) { return c.ListGroup("alt.test", "1-10") }, "LISTGROUP alt.test 1-10\r\n", "on_listgroup"},
		{"listgroup current", func(c *Conn) (*Request, error) { return c.ListGroup("", "") }, "LISTGROUP\r\n", "on_listgroup"},
		{"last", (*Conn).Last, "LAST\r\n", "on_last"},
		{"next", (*Conn).Next, "NEXT\r\n", "on_next"},
		{"article", func(c *Conn) (*Request, error) { return c.Article("<1@x>") }, "ARTICLE <1@x>\r\n", "on_article"},
		{"article current", func(c *Conn) (*Request, error) { return c.Article("") }, "ARTICLE\r\n", "on_article"},
		{"head", func(c *Conn) (*Request, error) { return c.Head("42") }, "HEAD 42\r\n", "on_head"},
		{"body", func(c *Conn) (*Request, error) { return c.Body("<1@x>") }, "BODY <1@x>\r\n", "on_body"},
		{"stat", func(c *Conn) (*Request, error) { return c.Stat("<1@x>") }, "STAT <1@x>\r\n", "on_stat"},
		{"date", (*Conn).Date, "DATE\r\n", "on_date"},
		{"list", func(c *Conn) (*Request, error) { return c.List("ACTIVE", "alt.*") }, "LIST ACTIVE alt.*\r\n", "on_list"},
		{"help", (*Conn).Help, "HELP\r\n", "on_help"},
		{"capabilities", (*Conn).Capabilities, "CAPABILITIES\r\n", "on_capabilities"},
		{"quit", (*Conn).Quit, "QUIT\r\n", "on_quit"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, ch := readyTestConn(t, Config{})

			req, err := tt.send(c)
			require.NoError(t, err)
			require.Equal(t, tt.line, sent(c, ch))
			require.Equal(t, tt.event, req.Event())
		})
	}
}

func TestCommandMultiLineResponses(t *testing.T) {
	var got *Request
	c, _ := readyTestConn(t, Config{Handlers: Handlers{
		"on_head": func(c *Conn, req *Request) { got = req },
	}})

	req, err := c.Head("<1@x>")
	require.NoError(t, err)
	require.True(t, req.Multiline())

	feed(c, "221 0 <1@x>\r\nSubject: hi\r\n..dotted\r\n.\r\n")
	require.Same(t, req, got)
	require.Equal(t, []string{"Subject: hi", ".dotted"}, got.Body())
}
