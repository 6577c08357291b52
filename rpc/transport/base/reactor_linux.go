//go:build linux

package base

import (
	"errors"
	"fmt"
	"net"
	"os"
	"strconv"
	"sync"
	"sync/atomic"

	"github.com/ValentinKolb/marines/lib/db/util"
	"github.com/ValentinKolb/marines/rpc/common"
	"github.com/ValentinKolb/marines/rpc/transport"
	"github.com/puzpuzpuz/xsync/v3"
	"github.com/rs/xid"
	"golang.org/x/sys/unix"
)

// maxEvents is the number of readiness events fetched per epoll_wait
const maxEvents = 256

// -----------------------------------------------------------
// Helper Types
// -----------------------------------------------------------

// pending is the response slot of one request. Slots are answered in the
// order the requests arrived, whatever order the workers finish in.
type pending struct {
	frame []byte
	done  bool
}

// task is one decoded request on its way to a worker
type task struct {
	c   *conn
	p   *pending
	req []byte
}

// conn is the state of one client socket. Every field is guarded by mu.
type conn struct {
	fd     int
	gen    int32  // distinguishes connections that reuse the same fd
	remote string // unique id plus peer address, used in log lines

	mu      sync.Mutex
	dec     *Decoder
	outbox  []*pending
	written int    // bytes of outbox[0] already sent
	events  uint32 // currently registered epoll interest
	eof     bool   // peer closed its sending side
	hup     bool   // peer hung up, fd left epoll and workers flush the outbox
	closed  bool
}

// reactor is a single goroutine epoll loop plus a pool of workers
type reactor struct {
	epfd     int
	lfd      int
	wakefd   int
	unixPath string

	handler transport.ServerHandleFunc
	opts    reactorOptions

	conns   *xsync.MapOf[int, *conn]
	queue   *util.LockFreeMPSC[task]
	workers sync.WaitGroup
	gen     int32 // only touched by the loop goroutine

	closing atomic.Bool
	once    sync.Once
	done    chan struct{}
}

// -----------------------------------------------------------
// Lifecycle
// -----------------------------------------------------------

// newReactor takes over the socket of ln (ln itself is closed) and starts the workers
func newReactor(ln net.Listener, handler transport.ServerHandleFunc, opts reactorOptions) (*reactor, error) {
	lfd, unixPath, err := detachListener(ln)
	if err != nil {
		return nil, err
	}

	r := &reactor{
		epfd:     -1,
		lfd:      lfd,
		wakefd:   -1,
		unixPath: unixPath,
		handler:  handler,
		opts:     opts,
		conns:    xsync.NewMapOf[int, *conn](),
		queue:    util.NewLockFreeMPSC[task](),
		done:     make(chan struct{}),
	}

	if r.epfd, err = unix.EpollCreate1(unix.EPOLL_CLOEXEC); err != nil {
		r.closeFds()
		return nil, fmt.Errorf("epoll_create1: %w", err)
	}
	if r.wakefd, err = unix.Eventfd(0, unix.EFD_NONBLOCK|unix.EFD_CLOEXEC); err != nil {
		r.closeFds()
		return nil, fmt.Errorf("eventfd: %w", err)
	}
	for _, fd := range []int{r.lfd, r.wakefd} {
		if err := r.ctl(unix.EPOLL_CTL_ADD, fd, unix.EPOLLIN, 0); err != nil {
			r.closeFds()
			return nil, fmt.Errorf("epoll_ctl: %w", err)
		}
	}

	for i := 0; i < opts.workers; i++ {
		r.workers.Add(1)
		go r.work()
	}
	return r, nil
}

// run is the event loop. It returns nil after shutdown.
func (r *reactor) run() error {
	defer r.cleanup()

	events := make([]unix.EpollEvent, maxEvents)
	for {
		n, err := unix.EpollWait(r.epfd, events, -1)
		if err != nil {
			if errors.Is(err, unix.EINTR) {
				continue
			}
			return fmt.Errorf("epoll_wait: %w", err)
		}

		for i := 0; i < n; i++ {
			ev := events[i]
			switch fd := int(ev.Fd); fd {
			case r.wakefd:
				if r.closing.Load() {
					return nil
				}
				r.drainWake()
			case r.lfd:
				r.accept()
			default:
				c, ok := r.conns.Load(fd)
				if !ok || c.gen != ev.Pad {
					// stale event of a connection closed earlier in this batch
					continue
				}
				r.serve(c, ev.Events)
			}
		}
	}
}

// shutdown wakes the loop and waits until all connections and workers are gone
func (r *reactor) shutdown() {
	if r.closing.CompareAndSwap(false, true) {
		buf := [8]byte{1}
		_, _ = unix.Write(r.wakefd, buf[:])
	}
	<-r.done
}

// cleanup closes every connection, drains the workers and releases the fds
func (r *reactor) cleanup() {
	r.once.Do(func() {
		r.closing.Store(true)

		var open []*conn
		r.conns.Range(func(_ int, c *conn) bool {
			open = append(open, c)
			return true
		})
		for _, c := range open {
			c.mu.Lock()
			r.closeLocked(c, "server shutdown")
			c.mu.Unlock()
		}

		r.queue.Close()
		r.workers.Wait()
		r.closeFds()
		close(r.done)
		Logger.Infof("Server stopped")
	})
}

func (r *reactor) closeFds() {
	for _, fd := range []int{r.lfd, r.epfd, r.wakefd} {
		if fd >= 0 {
			_ = unix.Close(fd)
		}
	}
	if r.unixPath != "" {
		_ = os.Remove(r.unixPath)
	}
}

// -----------------------------------------------------------
// Event Handling (loop goroutine)
// -----------------------------------------------------------

func (r *reactor) accept() {
	for {
		fd, sa, err := unix.Accept4(r.lfd, unix.SOCK_NONBLOCK|unix.SOCK_CLOEXEC)
		if err != nil {
			switch {
			case errors.Is(err, unix.EAGAIN):
			case errors.Is(err, unix.EINTR), errors.Is(err, unix.ECONNABORTED):
				continue
			default:
				Logger.Errorf("Accept error: %v", err)
			}
			return
		}

		for _, o := range r.opts.sockOpts {
			if err := unix.SetsockoptInt(fd, o.Level, o.Name, o.Value); err != nil {
				Logger.Warningf("Failed to set socket option %d/%d: %v", o.Level, o.Name, err)
			}
		}

		r.gen++
		c := &conn{
			fd:     fd,
			gen:    r.gen,
			remote: fmt.Sprintf("%s (%s)", xid.New(), sockaddrString(sa)),
			dec:    NewDecoder(r.opts.maxMessage),
			events: unix.EPOLLIN,
		}
		r.conns.Store(fd, c)
		if err := r.ctl(unix.EPOLL_CTL_ADD, fd, c.events, c.gen); err != nil {
			r.conns.Delete(fd)
			_ = unix.Close(fd)
			Logger.Errorf("Failed to register connection %s: %v", c.remote, err)
			continue
		}

		common.ConnectionsAccepted.Inc()
		common.ConnectionsActive.Inc()
		Logger.Debugf("Accepted connection %s", c.remote)
	}
}

func (r *reactor) serve(c *conn, events uint32) {
	if events&unix.EPOLLERR != 0 {
		c.mu.Lock()
		r.closeLocked(c, "socket error")
		c.mu.Unlock()
		return
	}
	if events&unix.EPOLLHUP != 0 {
		c.mu.Lock()
		r.hangUpLocked(c)
		c.mu.Unlock()
		return
	}
	if events&unix.EPOLLIN != 0 {
		r.read(c)
	}
	if events&unix.EPOLLOUT != 0 {
		r.write(c)
	}
}

// read performs one bounded read into the decoder
func (r *reactor) read(c *conn) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed || c.eof {
		return
	}

	n, err := unix.Read(c.fd, c.dec.Next())
	switch {
	case errors.Is(err, unix.EAGAIN), errors.Is(err, unix.EINTR):
		return
	case err != nil:
		r.closeLocked(c, err.Error())
		return
	case n == 0:
		c.eof = true
		if len(c.outbox) == 0 {
			r.closeLocked(c, "closed by client")
			return
		}
		r.rearm(c)
		return
	}

	if err := c.dec.Advance(n); err != nil {
		common.ProtocolErrors.Inc()
		Logger.Warningf("Closing connection %s: %v", c.remote, err)
		r.closeLocked(c, "protocol error")
		return
	}

	if req, ok := c.dec.Take(); ok {
		p := &pending{}
		c.outbox = append(c.outbox, p)
		if !r.queue.Push(task{c: c, p: p, req: req}) {
			r.closeLocked(c, "server shutdown")
			return
		}
	}
	r.rearm(c)
}

// write sends (the rest of) the oldest finished response
func (r *reactor) write(c *conn) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	if len(c.outbox) == 0 || !c.outbox[0].done {
		r.rearm(c)
		return
	}

	head := c.outbox[0]
	n, err := unix.SendmsgN(c.fd, head.frame[c.written:], nil, nil, unix.MSG_NOSIGNAL)
	if err != nil {
		if errors.Is(err, unix.EAGAIN) || errors.Is(err, unix.EINTR) {
			return
		}
		r.closeLocked(c, err.Error())
		return
	}

	c.written += n
	if c.written == len(head.frame) {
		c.outbox[0] = nil
		c.outbox = c.outbox[1:]
		c.written = 0
		if c.eof && len(c.outbox) == 0 {
			r.closeLocked(c, "closed by client")
			return
		}
	}
	r.rearm(c)
}

// -----------------------------------------------------------
// Workers
// -----------------------------------------------------------

func (r *reactor) work() {
	defer r.workers.Done()
	for t := range r.queue.Recv() {
		r.execute(t)
	}
}

func (r *reactor) execute(t task) {
	resp, err := r.call(t.req)

	c := t.c
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	if err != nil {
		common.ProtocolErrors.Inc()
		Logger.Warningf("Closing connection %s: %v", c.remote, err)
		r.closeLocked(c, "undecodable request")
		return
	}
	t.p.frame = EncodeResponse(resp)
	t.p.done = true
	if c.hup {
		r.flushLocked(c)
		return
	}
	r.rearm(c)
}

// call runs the handler. A panicking handler only costs the connection.
func (r *reactor) call(req []byte) (resp transport.Response, err error) {
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("handler panic: %v", p)
		}
	}()
	return r.handler(req)
}

// -----------------------------------------------------------
// Helper Methods (callers hold c.mu)
// -----------------------------------------------------------

// interest computes the epoll events the connection currently needs
func (r *reactor) interest(c *conn) uint32 {
	var events uint32
	if !c.eof && len(c.outbox) < r.opts.maxPending {
		events |= unix.EPOLLIN
	}
	if len(c.outbox) > 0 && c.outbox[0].done {
		events |= unix.EPOLLOUT
	}
	return events
}

func (r *reactor) rearm(c *conn) {
	if c.hup {
		return
	}
	want := r.interest(c)
	if want == c.events {
		return
	}
	if err := r.ctl(unix.EPOLL_CTL_MOD, c.fd, want, c.gen); err != nil {
		r.closeLocked(c, err.Error())
		return
	}
	c.events = want
}

// hangUpLocked sends the finished responses of a connection whose peer hung
// up. HUP is reported for as long as the fd is registered, so a connection
// still waiting for workers leaves epoll and the workers flush the rest.
func (r *reactor) hangUpLocked(c *conn) {
	if c.closed || c.hup {
		return
	}
	c.eof = true
	r.flushLocked(c)
	if c.closed {
		return
	}
	if err := unix.EpollCtl(r.epfd, unix.EPOLL_CTL_DEL, c.fd, nil); err != nil {
		r.closeLocked(c, err.Error())
		return
	}
	c.hup = true
	c.events = 0
}

// flushLocked writes finished responses in order until it reaches one that
// is still executing. The connection is closed once its outbox is empty and
// the peer stopped sending, or when a write fails.
func (r *reactor) flushLocked(c *conn) {
	for !c.closed && len(c.outbox) > 0 && c.outbox[0].done {
		head := c.outbox[0]
		n, err := unix.SendmsgN(c.fd, head.frame[c.written:], nil, nil, unix.MSG_NOSIGNAL)
		if errors.Is(err, unix.EINTR) {
			continue
		}
		if err != nil {
			// EAGAIN included, nothing wakes a hung up connection again
			r.closeLocked(c, err.Error())
			return
		}
		c.written += n
		if c.written == len(head.frame) {
			c.outbox[0] = nil
			c.outbox = c.outbox[1:]
			c.written = 0
		}
	}
	if !c.closed && c.eof && len(c.outbox) == 0 {
		r.closeLocked(c, "closed by client")
	}
}

func (r *reactor) closeLocked(c *conn, reason string) {
	if c.closed {
		return
	}
	c.closed = true

	// remove the entry before the fd number can be reused by accept
	r.conns.Compute(c.fd, func(old *conn, loaded bool) (*conn, bool) {
		if !loaded || old == c {
			return nil, true
		}
		return old, false
	})
	_ = unix.EpollCtl(r.epfd, unix.EPOLL_CTL_DEL, c.fd, nil)
	_ = unix.Close(c.fd)
	c.outbox = nil

	common.ConnectionsActive.Dec()
	Logger.Debugf("Closed connection %s: %s", c.remote, reason)
}

// -----------------------------------------------------------
// Helper Functions
// -----------------------------------------------------------

func (r *reactor) ctl(op, fd int, events uint32, gen int32) error {
	ev := unix.EpollEvent{Events: events, Fd: int32(fd), Pad: gen}
	return unix.EpollCtl(r.epfd, op, fd, &ev)
}

func (r *reactor) drainWake() {
	var buf [8]byte
	_, _ = unix.Read(r.wakefd, buf[:])
}

// detachListener returns a non-blocking duplicate of the listener's socket
// and closes the listener. Unix socket paths are kept and returned.
func detachListener(ln net.Listener) (int, string, error) {
	type filer interface {
		File() (*os.File, error)
	}
	fl, ok := ln.(filer)
	if !ok {
		return -1, "", fmt.Errorf("listener %T does not expose its socket", ln)
	}

	var path string
	if ul, ok := ln.(*net.UnixListener); ok {
		ul.SetUnlinkOnClose(false)
		path = ul.Addr().String()
	}

	f, err := fl.File()
	_ = ln.Close()
	if err != nil {
		return -1, "", fmt.Errorf("listener file: %w", err)
	}
	defer f.Close()

	fd, err := unix.Dup(int(f.Fd()))
	if err != nil {
		return -1, "", fmt.Errorf("dup listener: %w", err)
	}
	unix.CloseOnExec(fd)
	if err := unix.SetNonblock(fd, true); err != nil {
		_ = unix.Close(fd)
		return -1, "", fmt.Errorf("set non-blocking: %w", err)
	}
	return fd, path, nil
}

func sockaddrString(sa unix.Sockaddr) string {
	switch a := sa.(type) {
	case *unix.SockaddrInet4:
		return net.JoinHostPort(net.IP(a.Addr[:]).String(), strconv.Itoa(a.Port))
	case *unix.SockaddrInet6:
		return net.JoinHostPort(net.IP(a.Addr[:]).String(), strconv.Itoa(a.Port))
	case *unix.SockaddrUnix:
		if a.Name == "" {
			return "unix"
		}
		return a.Name
	default:
		return "unknown"
	}
}
