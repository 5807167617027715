package manager

import (
	"context"
	"time"
)

// beginGeneration reserves a queue slot and then the single in-flight slot.
// Returns a release func to be deferred.
func (m *Manager) beginGeneration(ctx context.Context, modelID string) (func(), error) {
	// Fast path: respect an already-canceled context
	if err := ctx.Err(); err != nil {
		return func() {}, err
	}

	// Try to reserve a queue slot with timeout
	timer := time.NewTimer(m.maxWait)
	defer timer.Stop()
	select {
	case m.queueCh <- struct{}{}:
		// reserved queue slot
	case <-ctx.Done():
		return func() {}, ctx.Err()
	case <-timer.C:
		return func() {}, tooBusyError{modelID: modelID}
	}

	// Wait to acquire the single in-flight slot
	acquired := false
	defer func() {
		if !acquired {
			<-m.queueCh
		}
	}()
	// Check for cancellation again before blocking on gen slot
	if err := ctx.Err(); err != nil {
		return func() {}, err
	}
	timer2 := time.NewTimer(m.maxWait)
	defer timer2.Stop()
	select {
	case m.genCh <- struct{}{}:
		acquired = true
		return func() { <-m.genCh; <-m.queueCh }, nil
	case <-ctx.Done():
		return func() {}, ctx.Err()
	case <-timer2.C:
		return func() {}, tooBusyError{modelID: modelID}
	}
}
