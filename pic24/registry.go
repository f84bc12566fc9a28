package pic24

import (
	"sync"
	"time"

	"github.com/pkg/errors"
)

// ErrTimeout rejects a pending request when no matching reply arrives
// before its deadline.
var ErrTimeout = errors.New("timed out waiting for response")

// pendingKey correlates a reply to the request that caused it. Simple
// commands key on (CmdAckResponse, seq); data-gets share the single
// dataSlotKey because the PIC24 supports one outstanding data request.
type pendingKey struct {
	cmd byte
	seq byte
}

var dataSlotKey = pendingKey{cmd: CmdDataResponse}

type result struct {
	frame *Frame
	err   error
}

type registry struct {
	mu      sync.Mutex
	pending map[pendingKey]chan result
}

func newRegistry() *registry {
	return &registry{
		pending: make(map[pendingKey]chan result),
	}
}

func (r *registry) register(key pendingKey, timeout time.Duration) (<-chan result, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.pending[key]; ok {
		return nil, errors.Errorf("request already pending for cmd %#x seq %v", key.cmd, key.seq)
	}
	ch := make(chan result, 1)
	r.pending[key] = ch
	time.AfterFunc(timeout, func() {
		r.reject(key, ErrTimeout)
	})
	return ch, nil
}

func (r *registry) take(key pendingKey) chan result {
	r.mu.Lock()
	defer r.mu.Unlock()
	ch, ok := r.pending[key]
	if !ok {
		return nil
	}
	delete(r.pending, key)
	return ch
}

// resolve completes the request registered under key. Replies arriving
// after the deadline find no entry and report false so the caller can
// drop them.
func (r *registry) resolve(key pendingKey, f *Frame) bool {
	ch := r.take(key)
	if ch == nil {
		return false
	}
	ch <- result{frame: f}
	return true
}

func (r *registry) reject(key pendingKey, err error) bool {
	ch := r.take(key)
	if ch == nil {
		return false
	}
	ch <- result{err: err}
	return true
}

// rejectAll fails every pending request, used when the link goes down.
func (r *registry) rejectAll(err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for key, ch := range r.pending {
		delete(r.pending, key)
		ch <- result{err: err}
	}
}
