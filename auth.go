package nntp

import (
	"fmt"
	"strings"

	"github.com/pior/nntp/wire"
)

// onConnect starts the session once the server greeted: authenticate when
// a username is configured, else the session is ready right away.
func onConnect(c *Conn, req *Request) {
	c.mu.Lock()
	c.welcomed = true
	c.welcome = req.Message
	c.expectClose = false
	username := c.cfg.Username
	c.notifyLocked()
	c.mu.Unlock()

	c.log.WithField("code", req.Code).Debug("server greeted")

	if username == "" {
		c.markReady(req)
		return
	}

	c.sendSetup(NewRequestWithEvent(EventUsername, wire.CmdAuthInfo, "USER", username))
}

func onUsername(c *Conn, req *Request) {
	switch req.Status() {
	case wire.StatusMoreAuthRequired:
		c.mu.Lock()
		password := c.cfg.Password
		c.mu.Unlock()

		if password == "" {
			c.authFailed(ErrPasswordRequired)
			return
		}
		c.sendSetup(NewRequestWithEvent(EventPassword, wire.CmdAuthInfo, "PASS", password))

	case wire.StatusAuthAccepted:
		c.markReady(req)

	default:
		c.authFailed(authError(req))
	}
}

func onPassword(c *Conn, req *Request) {
	if req.Status() == wire.StatusAuthAccepted {
		c.markReady(req)
		return
	}
	c.authFailed(authError(req))
}

func onQuit(c *Conn, req *Request) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.ready = false
	c.expectClose = req.Status() == wire.StatusClosing
	c.notifyLocked()
}

func onDisconnect(c *Conn, req *Request) {
	c.mu.Lock()
	c.ready = false
	c.expectClose = true
	reconnect := c.cfg.ReconnectOnIdle && strings.Contains(strings.ToLower(req.Message), "idle")
	c.notifyLocked()
	c.mu.Unlock()

	c.log.WithField("message", req.Message).Info("server disconnected")

	if reconnect {
		if err := c.Reconnect(); err != nil {
			c.log.WithError(err).Error("reconnect after idle disconnect failed")
		}
	}
}

func authError(req *Request) error {
	if req.Err() != nil {
		return fmt.Errorf("%w: %w", ErrAuthRejected, req.Err())
	}
	return fmt.Errorf("%w: %d %s", ErrAuthRejected, req.Code, req.Message)
}

// markReady opens the main lane. The ready event fires once per session.
func (c *Conn) markReady(req *Request) {
	c.mu.Lock()
	if c.ready {
		c.mu.Unlock()
		return
	}
	c.ready = true
	c.authErr = nil
	c.notifyLocked()
	c.mu.Unlock()

	c.log.Debug("session ready")
	c.dispatch(EventReady, req)
}

// authFailed halts the session setup. The connection stays open and not
// ready; no command is issued on its behalf.
func (c *Conn) authFailed(err error) {
	c.mu.Lock()
	c.authErr = err
	c.notifyLocked()
	c.mu.Unlock()

	c.log.WithError(err).Error("authentication failed")
}
