package nntp

import (
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/pior/nntp/wire"
)

// Event names a point where handlers run: a response to a command
// ("on_stat"), or a session transition ("on_connect", "on_ready").
type Event string

// Session events. Command events are derived with EventFor.
const (
	EventConnect    Event = "on_connect"
	EventDisconnect Event = "on_disconnect"
	EventReady      Event = "on_ready"
	EventUsername   Event = "on_username"
	EventPassword   Event = "on_password"
	EventModeReader Event = "on_mode_reader"
	EventQuit       Event = "on_quit"
)

// EventFor returns the event a response to command is dispatched to.
func EventFor(command string) Event {
	return Event("on_" + strings.ToLower(command))
}

// Handler reacts to an event. Handlers run on the reactor goroutine
// without the connection lock held: they may send requests but must not
// wait for responses.
type Handler func(c *Conn, req *Request)

// Handlers maps events to user handlers.
type Handlers map[Event]Handler

// internalHandler returns the protocol handler of ev, or nil.
func internalHandler(ev Event) Handler {
	switch ev {
	case EventConnect:
		return onConnect
	case EventUsername:
		return onUsername
	case EventPassword:
		return onPassword
	case EventQuit:
		return onQuit
	case EventDisconnect:
		return onDisconnect
	}
	return nil
}

// dispatch runs the internal handler of ev, then the user handler.
// Either may be missing.
func (c *Conn) dispatch(ev Event, req *Request) {
	if h := internalHandler(ev); h != nil {
		h(c, req)
	}

	c.mu.Lock()
	h := c.handlers[ev]
	c.mu.Unlock()

	if h != nil {
		h(c, req)
	}
}

// complete routes a finished response. Unsolicited responses are
// dispatched by status code since there is no command to go by.
func (c *Conn) complete(req *Request) {
	if !req.Unsolicited() {
		c.dispatch(req.Event(), req)
		return
	}

	switch {
	case req.Err() != nil:
		c.log.WithError(req.Err()).Warn("unreadable unsolicited response")
	case req.Status().IsWelcome():
		c.dispatch(EventConnect, req)
	case req.Status() == wire.StatusServiceDiscontinued:
		c.dispatch(EventDisconnect, req)
	default:
		c.log.WithFields(logrus.Fields{
			"code":    req.Code,
			"message": req.Message,
		}).Warn("dropping unsolicited response")
	}
}

// Handle registers h for ev, replacing any previous user handler.
func (c *Conn) Handle(ev Event, h Handler) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if h == nil {
		delete(c.handlers, ev)
		return
	}
	c.handlers[ev] = h
}
