package bridge

import (
	"github.com/stefanhoelzl/codehydra-sub002/internal/workspace"
)

// pendingQueue buffers workspace registrations accepted while the transport
// is not running. It is the pre-start twin of the live registry: keyed by
// normalized path, replace-on-insert. Guarded by the manager's mutex, so it
// carries no locking of its own.
type pendingQueue struct {
	entries map[string]workspace.Identity
}

func newPendingQueue() *pendingQueue {
	return &pendingQueue{
		entries: make(map[string]workspace.Identity),
	}
}

func (q *pendingQueue) add(identity workspace.Identity) {
	q.entries[workspace.NormalizePath(identity.Path)] = identity
}

func (q *pendingQueue) remove(path string) {
	delete(q.entries, workspace.NormalizePath(path))
}

func (q *pendingQueue) len() int {
	return len(q.entries)
}

// drainInto hands every queued identity to the live registry and empties the
// queue. The drained identities are returned so a failed start can re-queue
// them.
func (q *pendingQueue) drainInto(registry *workspace.Registry) []workspace.Identity {
	drained := make([]workspace.Identity, 0, len(q.entries))
	for _, identity := range q.entries {
		registry.Register(identity)
		drained = append(drained, identity)
	}
	q.entries = make(map[string]workspace.Identity)
	return drained
}

func (q *pendingQueue) clear() {
	q.entries = make(map[string]workspace.Identity)
}
