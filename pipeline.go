package nntp

import "github.com/pior/nntp/wire"

// pipeline orders the requests of one connection. Responses carry no
// request identifier, so they are matched to requests purely by order:
// one request is in flight at a time and the next is only sent once the
// previous response completed.
//
// Session setup commands (AUTHINFO) go through their own lane, which is
// always drained first. The main lane is held back until the session is
// ready, except for QUIT once the server greeted.
//
// Not safe for concurrent use; the owning Conn's lock guards it.
type pipeline struct {
	setup    []*Request
	main     []*Request
	inFlight *Request
}

func (p *pipeline) push(req *Request) {
	if req.setup {
		p.setup = append(p.setup, req)
		return
	}
	p.main = append(p.main, req)
}

// requeue puts an interrupted request back at the head of the main lane.
func (p *pipeline) requeue(req *Request) {
	p.main = append([]*Request{req}, p.main...)
}

// next pops the request to send, or nil when nothing may be sent yet.
func (p *pipeline) next(welcomed, ready bool) *Request {
	if p.inFlight != nil || !welcomed {
		return nil
	}

	if len(p.setup) > 0 {
		req := p.setup[0]
		p.setup[0] = nil
		p.setup = p.setup[1:]
		return req
	}

	if len(p.main) == 0 {
		return nil
	}
	if !ready && p.main[0].Command != wire.CmdQuit {
		return nil
	}

	req := p.main[0]
	p.main[0] = nil
	p.main = p.main[1:]
	return req
}

// interrupt clears the session state of a dropped transport: setup
// commands are discarded since the next session issues its own, and a
// named in-flight request goes back to the head of the main lane.
func (p *pipeline) interrupt() {
	p.setup = nil

	req := p.inFlight
	p.inFlight = nil
	if req == nil || req.unsolicited || req.setup {
		return
	}
	req.reset()
	p.requeue(req)
}

// queued returns the number of requests waiting to be sent.
func (p *pipeline) queued() int {
	return len(p.setup) + len(p.main)
}
