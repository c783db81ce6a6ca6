// Package dagrun holds the per-request shared state: the DAG, its
// evolving context, the dag-wide error and reference count, and the
// handle used to unblock the client exactly once.
package dagrun

import (
	"sync"

	"github.com/google/uuid"

	"github.com/vectorshelf/tensorsched/internal/tensor"
)

// Client is the opaque handle the host uses to unblock a waiting caller.
// A nil Client means the client already detached: unblock is then
// skipped, but the Info is still disposed.
type Client interface {
	// Detached reports whether the client has gone away and no longer
	// needs (or can receive) a reply.
	Detached() bool
}

// UnblockFunc is the host's client-unblock primitive: it asynchronously
// delivers the reply and takes ownership of disposing info.
type UnblockFunc func(client Client, info *Info)

// Info is one client submission's shared state, visible to every device
// queue the DAG touches and to the unblock callback.
// All fields below the mutex line are protected by it; DAG and Client are
// immutable after construction and may be read without the lock.
type Info struct {
	ID     string
	DAG    *tensor.DAG
	Client Client

	mu        sync.Mutex
	context   map[tensor.Key]tensor.Value
	err       error
	refCount  int
	unblocked bool
}

// New creates an Info for dag, seeded with its literal inputs, and a ref
// count equal to the number of distinct devices the DAG touches, i.e. the
// number of device queues on which it has at least one unfinished op. If
// dag.ID is empty a uuid is generated so log lines can correlate across
// devices.
func New(dag *tensor.DAG, client Client) *Info {
	id := dag.ID
	if id == "" {
		id = uuid.NewString()
	}
	ctx := make(map[tensor.Key]tensor.Value, len(dag.Inputs))
	for k, v := range dag.Inputs {
		ctx[k] = v
	}
	return &Info{
		ID:       id,
		DAG:      dag,
		Client:   client,
		context:  ctx,
		refCount: len(dag.Devices()),
	}
}

// WithMutex runs fn with the Info's mutex held, giving callers (the
// inspector, executors, the worker loop) a single choke point for all
// context/err/refCount access.
func (i *Info) WithMutex(fn func(s *State)) {
	i.mu.Lock()
	defer i.mu.Unlock()
	fn(&State{info: i})
}

// State is the mutable view of an Info available only while its mutex is
// held; it exists so WithMutex's callers cannot accidentally read the
// fields without the lock.
type State struct {
	info *Info
}

// Get returns the tensor stored at key and whether it is present.
func (s *State) Get(key tensor.Key) (tensor.Value, bool) {
	v, ok := s.info.context[key]
	return v, ok
}

// Set stores v at key.
func (s *State) Set(key tensor.Key, v tensor.Value) {
	s.info.context[key] = v
}

// Err returns the dag-wide error, if any op has failed.
func (s *State) Err() error {
	return s.info.err
}

// SetErr records the first failure; subsequent calls are no-ops, so only
// the first failure across a batched group is reported.
func (s *State) SetErr(err error) {
	if s.info.err == nil {
		s.info.err = err
	}
}

// RefCount returns the number of devices that still hold unfinished work
// for this run.
func (s *State) RefCount() int {
	return s.info.refCount
}

// DecrRef decrements the ref count by one, representing one device's
// contribution completing, and returns the new value. It must never be
// called more than once per device per Info.
func (s *State) DecrRef() int {
	s.info.refCount--
	return s.info.refCount
}

// MarkUnblocked records that unblock has been delivered (or skipped due to
// a detached client) for this Info, and reports whether this call was the
// one to do so. Every code path that might unblock must gate on this
// return value so unblock happens exactly once even when multiple workers
// race to observe refCount==0.
func (s *State) MarkUnblocked() bool {
	if s.info.unblocked {
		return false
	}
	s.info.unblocked = true
	return true
}
