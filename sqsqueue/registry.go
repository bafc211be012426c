package sqsqueue

import (
	"context"
	"sort"

	"github.com/roadrunner-server/errors"
)

// Registry holds the named queues. It is populated once, every queue being
// created or resolved at that time.
type Registry struct {
	queues map[string]*Queue
}

// NewRegistry resolves every configured queue. The first failure aborts.
func NewRegistry(ctx context.Context, svc *Service, queues map[string]*QueueConfig, opts ...Option) (*Registry, error) {
	const op = errors.Op("sqs_new_registry")

	r := &Registry{
		queues: make(map[string]*Queue, len(queues)),
	}

	names := make([]string, 0, len(queues))
	for name := range queues {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		q, err := NewQueue(ctx, svc, name, queues[name], opts...)
		if err != nil {
			return nil, errors.E(op, err)
		}

		r.queues[name] = q
	}

	return r, nil
}

// Queue returns the queue registered under name
func (r *Registry) Queue(name string) (*Queue, error) {
	const op = errors.Op("sqs_registry_queue")

	q, ok := r.queues[name]
	if !ok {
		return nil, errors.E(op, errors.Errorf("no such queue: %s, available: %v", name, r.Names()))
	}

	return q, nil
}

// Names returns the sorted queue names
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.queues))
	for name := range r.queues {
		names = append(names, name)
	}
	sort.Strings(names)

	return names
}
