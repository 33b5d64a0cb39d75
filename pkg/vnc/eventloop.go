package vnc

/*
#cgo LDFLAGS: -lev
#include <ev.h>
#include <stdlib.h>
#include <stddef.h>

extern void goIdleCallback(struct ev_loop *loop, ev_idle *w, int revents);
extern void goCheckCallback(struct ev_loop *loop, ev_check *w, int revents);
extern void goAsyncCallback(struct ev_loop *loop, ev_async *w, int revents);

typedef struct {
	ev_idle  idle;
	ev_check check;
	ev_async async;
	long     id;
} bridge_watchers;

static inline bridge_watchers *new_bridge_watchers(long id) {
	bridge_watchers *w = (bridge_watchers*) malloc(sizeof(bridge_watchers));
	ev_idle_init(&w->idle, (void (*)(struct ev_loop *, ev_idle *, int)) goIdleCallback);
	ev_check_init(&w->check, (void (*)(struct ev_loop *, ev_check *, int)) goCheckCallback);
	ev_async_init(&w->async, (void (*)(struct ev_loop *, ev_async *, int)) goAsyncCallback);
	w->id = id;
	return w;
}

static inline void start_bridge_watchers(struct ev_loop *loop, bridge_watchers *w) {
	ev_idle_start(loop, &w->idle);
	ev_check_start(loop, &w->check);
	ev_async_start(loop, &w->async);
}

static inline void free_bridge_watchers(bridge_watchers *w) {
	free(w);
}

static inline void send_async(struct ev_loop *loop, bridge_watchers *w) {
	ev_async_send(loop, &w->async);
}

static inline bridge_watchers *watchers_from_check(ev_check *w) {
	return (bridge_watchers *)((char *)w - offsetof(bridge_watchers, check));
}

static inline bridge_watchers *watchers_from_async(ev_async *w) {
	return (bridge_watchers *)((char *)w - offsetof(bridge_watchers, async));
}
*/
import "C"
import (
	"sync"
)

// EventLoop wraps libev's idle/check/async watcher trio: an idle watcher
// that does nothing (keeps the loop from sleeping so the check watcher
// fires continually), a check watcher that steps the downstream RFB
// server's own event processing once per libev iteration, and an async
// watcher the bridge signals whenever it pushes to the RFB update queue.
type EventLoop struct {
	loop     *C.struct_ev_loop
	watchers *C.bridge_watchers
	server   ServerPort
	onAsync  func()
}

var (
	eventLoops      = make(map[int64]*EventLoop)
	eventLoopsMu    sync.Mutex
	nextEventLoopID int64
)

// NewEventLoop creates a libev loop driving server's ProcessEvents and
// invoking onAsync whenever the loop observes an async signal (the
// bridge wires onAsync to draining its RFB update queue).
func NewEventLoop(server ServerPort, onAsync func()) *EventLoop {
	eventLoopsMu.Lock()
	nextEventLoopID++
	id := nextEventLoopID
	eventLoopsMu.Unlock()

	loop := C.ev_loop_new(C.EVFLAG_AUTO)
	watchers := C.new_bridge_watchers(C.long(id))

	el := &EventLoop{loop: loop, watchers: watchers, server: server, onAsync: onAsync}

	eventLoopsMu.Lock()
	eventLoops[id] = el
	eventLoopsMu.Unlock()

	C.start_bridge_watchers(loop, watchers)
	return el
}

//export goIdleCallback
func goIdleCallback(loop *C.struct_ev_loop, w *C.ev_idle, revents C.int) {
	// Intentionally empty: prevents the loop from sleeping so the check
	// watcher below fires on every iteration.
}

//export goCheckCallback
func goCheckCallback(loop *C.struct_ev_loop, w *C.ev_check, revents C.int) {
	el := eventLoopFromWatchers(C.watchers_from_check(w))
	if el != nil && el.server != nil {
		el.server.ProcessEvents(-1)
	}
}

//export goAsyncCallback
func goAsyncCallback(loop *C.struct_ev_loop, w *C.ev_async, revents C.int) {
	el := eventLoopFromWatchers(C.watchers_from_async(w))
	if el != nil && el.onAsync != nil {
		el.onAsync()
	}
}

func eventLoopFromWatchers(w *C.bridge_watchers) *EventLoop {
	eventLoopsMu.Lock()
	defer eventLoopsMu.Unlock()
	return eventLoops[int64(w.id)]
}

// Signal wakes the loop's async watcher, causing onAsync to run on the
// loop's own goroutine shortly after. This is how pkg/bridge's
// UpdateQueue notifies the downstream side without the downstream ever
// blocking on a mutex owned by the upstream reader.
func (el *EventLoop) Signal() {
	C.send_async(el.loop, el.watchers)
}

// Run blocks running the libev loop. Intended to be launched on its own
// goroutine, left running for the lifetime of the process.
func (el *EventLoop) Run() {
	C.ev_run(el.loop, 0)
}

// Close stops and frees the loop's native resources.
func (el *EventLoop) Close() {
	C.ev_loop_destroy(el.loop)
	C.free_bridge_watchers(el.watchers)
}
