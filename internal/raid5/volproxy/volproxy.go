// Copyright (C) 2021 Vojtech Aschenbrenner <v@asch.cz>

// Volproxy package is a proxy for the raid5 volume. The volume itself is
// strictly single-threaded, so the proxy funnels requests from any number of
// goroutines into one worker goroutine owning the volume. Data path requests
// are prioritized over control requests, so status polling and maintenance do
// not slow down normal operation.
package volproxy

import (
	"github.com/asch/raid5/internal/raid5"
)

// Proxy serializes access to one volume. All methods are safe for concurrent
// use; each call blocks until the worker has executed it.
type Proxy struct {
	Instance *raid5.Volume

	// Channels for internal communication specific to one type of request.
	reads  chan ioRequest
	writes chan ioRequest

	// General low priority channel for control requests.
	ctl chan ctlRequest
}

type ioRequest struct {
	secNr  int
	data   []byte
	secCnt int
	reply  chan bool
}

type ctlOp int

const (
	opStatus ctlOp = iota
	opResync
	opStop
)

type ctlRequest struct {
	op    ctlOp
	reply chan raid5.State
}

// Returns a proxy which can be directly used. It spawns one worker which
// handles all serialized and prioritized requests. The volume must not be
// touched directly while the proxy is in use.
func New(instance *raid5.Volume) *Proxy {
	p := &Proxy{
		Instance: instance,
		reads:    make(chan ioRequest),
		writes:   make(chan ioRequest),
		ctl:      make(chan ctlRequest),
	}

	go p.worker()

	return p
}

// Read serves a logical sector read through the worker.
func (p *Proxy) Read(secNr int, data []byte, secCnt int) bool {
	reply := make(chan bool)
	p.reads <- ioRequest{secNr, data, secCnt, reply}
	return <-reply
}

// Write serves a logical sector write through the worker.
func (p *Proxy) Write(secNr int, data []byte, secCnt int) bool {
	reply := make(chan bool)
	p.writes <- ioRequest{secNr, data, secCnt, reply}
	return <-reply
}

// Status returns the volume state.
func (p *Proxy) Status() raid5.State {
	return p.control(opStatus)
}

// Resync runs a resync on the worker.
func (p *Proxy) Resync() raid5.State {
	return p.control(opResync)
}

// Stop stops the volume on the worker.
func (p *Proxy) Stop() raid5.State {
	return p.control(opStop)
}

func (p *Proxy) control(op ctlOp) raid5.State {
	reply := make(chan raid5.State)
	p.ctl <- ctlRequest{op, reply}
	return <-reply
}

// Worker is doing prioritization and serialization of the requests. Reads and
// writes have the highest priority, control requests are served only when the
// data path is idle.
func (p *Proxy) worker() {
	for {
		select {
		case r := <-p.reads:
			r.reply <- p.Instance.Read(r.secNr, r.data, r.secCnt)

		case w := <-p.writes:
			w.reply <- p.Instance.Write(w.secNr, w.data, w.secCnt)

		default:
			select {
			case r := <-p.reads:
				r.reply <- p.Instance.Read(r.secNr, r.data, r.secCnt)

			case w := <-p.writes:
				w.reply <- p.Instance.Write(w.secNr, w.data, w.secCnt)

			case c := <-p.ctl:
				p.handleControl(c)
			}
		}
	}
}

func (p *Proxy) handleControl(c ctlRequest) {
	switch c.op {
	case opStatus:
		c.reply <- p.Instance.Status()
	case opResync:
		c.reply <- p.Instance.Resync()
	case opStop:
		c.reply <- p.Instance.Stop()
	default:
		c.reply <- p.Instance.Status()
	}
}
