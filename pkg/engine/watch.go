package engine

import (
	"context"
	"fmt"

	"github.com/stepflow-io/stepflow/pkg/models"
)

// WaitForInstance blocks until the instance reaches a terminal status or
// the context ends. Sub-workflow steps use it to wait for their child
// without polling; the wait deadline comes from the caller's context.
func (e *Engine) WaitForInstance(ctx context.Context, instanceID string) (*models.WorkflowInstance, error) {
	watcher := e.addWatcher(instanceID)
	defer e.removeWatcher(instanceID, watcher)

	// Read after registering: a terminal transition between the read and
	// the select would otherwise be missed.
	instance, err := e.persistence.Instances().GetByID(ctx, instanceID)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch instance %s: %w", instanceID, err)
	}

	if instance.Status.IsTerminal() {
		return instance, nil
	}

	select {
	case terminal := <-watcher:
		return terminal, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (e *Engine) addWatcher(instanceID string) chan *models.WorkflowInstance {
	watcher := make(chan *models.WorkflowInstance, 1)

	e.watchersMu.Lock()
	e.watchers[instanceID] = append(e.watchers[instanceID], watcher)
	e.watchersMu.Unlock()

	return watcher
}

func (e *Engine) removeWatcher(instanceID string, watcher chan *models.WorkflowInstance) {
	e.watchersMu.Lock()
	defer e.watchersMu.Unlock()

	remaining := e.watchers[instanceID][:0]

	for _, w := range e.watchers[instanceID] {
		if w != watcher {
			remaining = append(remaining, w)
		}
	}

	if len(remaining) == 0 {
		delete(e.watchers, instanceID)
	} else {
		e.watchers[instanceID] = remaining
	}
}

// notifyWatchers wakes every waiter of an instance that just went terminal.
func (e *Engine) notifyWatchers(instance *models.WorkflowInstance) {
	e.watchersMu.Lock()
	waiting := e.watchers[instance.ID]
	delete(e.watchers, instance.ID)
	e.watchersMu.Unlock()

	for _, watcher := range waiting {
		// Buffered; a watcher that already left simply never reads it.
		select {
		case watcher <- instance:
		default:
		}
	}
}
