package nntp

import (
	"github.com/pior/nntp/wire"
)

// Each command helper queues a request and returns it; wait on it with
// Request.Wait or handle its event. Responses are dispatched to the event
// derived from the verb, e.g. Stat to "on_stat".

func (c *Conn) do(command string, args ...string) (*Request, error) {
	req := NewRequest(command, args...)
	if err := c.Send(req); err != nil {
		return nil, err
	}
	return req, nil
}

// Username sends AUTHINFO USER. The response goes to on_username, where
// the internal handler continues with the configured password.
//
// Like the automatic login, it is queued with the session setup commands:
// it is sent once the server greeted, before the session is ready, and it
// is dropped without a response if the session ends first.
func (c *Conn) Username(username string) (*Request, error) {
	req := NewRequestWithEvent(EventUsername, wire.CmdAuthInfo, "USER", username)
	if err := c.submit(req, true); err != nil {
		return nil, err
	}
	return req, nil
}

// Password sends AUTHINFO PASS. The response goes to on_password. It is
// queued with the session setup commands, like Username.
func (c *Conn) Password(password string) (*Request, error) {
	req := NewRequestWithEvent(EventPassword, wire.CmdAuthInfo, "PASS", password)
	if err := c.submit(req, true); err != nil {
		return nil, err
	}
	return req, nil
}

// ModeReader sends MODE READER. The response goes to on_mode_reader.
func (c *Conn) ModeReader() (*Request, error) {
	req := NewRequestWithEvent(EventModeReader, wire.CmdMode, "READER")
	if err := c.Send(req); err != nil {
		return nil, err
	}
	return req, nil
}

// Quit ends the session. The server closes the connection after replying.
func (c *Conn) Quit() (*Request, error) {
	return c.do(wire.CmdQuit)
}

// Group selects a newsgroup.
func (c *Conn) Group(name string) (*Request, error) {
	return c.do(wire.CmdGroup, name)
}

// ListGroup lists the article numbers of a group. Both arguments are
// optional.
func (c *Conn) ListGroup(group, rng string) (*Request, error) {
	return c.do(wire.CmdListGroup, group, rng)
}

// Last moves to the previous article of the selected group.
func (c *Conn) Last() (*Request, error) {
	return c.do(wire.CmdLast)
}

// Next moves to the next article of the selected group.
func (c *Conn) Next() (*Request, error) {
	return c.do(wire.CmdNext)
}

// Article retrieves an article by message-id or number. An empty id means
// the current article.
func (c *Conn) Article(id string) (*Request, error) {
	return c.do(wire.CmdArticle, id)
}

// Head retrieves the headers of an article.
func (c *Conn) Head(id string) (*Request, error) {
	return c.do(wire.CmdHead, id)
}

// Body retrieves the body of an article.
func (c *Conn) Body(id string) (*Request, error) {
	return c.do(wire.CmdBody, id)
}

// Stat checks that an article exists without retrieving it.
func (c *Conn) Stat(id string) (*Request, error) {
	return c.do(wire.CmdStat, id)
}

// Date asks for the server time.
func (c *Conn) Date() (*Request, error) {
	return c.do(wire.CmdDate)
}

// List sends LIST with an optional keyword and wildmat.
func (c *Conn) List(args ...string) (*Request, error) {
	return c.do(wire.CmdList, args...)
}

// Help asks for the server help text.
func (c *Conn) Help() (*Request, error) {
	return c.do(wire.CmdHelp)
}

// Capabilities asks for the server capability list.
func (c *Conn) Capabilities() (*Request, error) {
	return c.do(wire.CmdCapabilities)
}
