package router

import (
	"context"
	"fmt"
	"sync"

	"github.com/tbaxter-dev/foreman/internal/state"
)

// ApprovalNotice is emitted when a task enters the approval queue, for the
// collaborator that owns the approval UX.
type ApprovalNotice struct {
	// TaskID is the suspended task.
	TaskID string
	// PlanSummary describes what the task intends to do.
	PlanSummary string
	// RiskScore is the task's risk score.
	RiskScore float64
}

// approvalManager parks suspended tasks durably and wakes in-process waiters
// when a decision arrives. Durability lives in the store; the channels only
// shortcut the wait for tasks suspended in this process.
type approvalManager struct {
	store    state.ApprovalStore
	noticeCh chan ApprovalNotice

	mu      sync.Mutex
	waiters map[string]chan state.ApprovalDecision
}

func newApprovalManager(store state.ApprovalStore) *approvalManager {
	return &approvalManager{
		store:    store,
		noticeCh: make(chan ApprovalNotice, 16),
		waiters:  make(map[string]chan state.ApprovalDecision),
	}
}

// Notices returns the pending-approval notification channel.
func (m *approvalManager) Notices() <-chan ApprovalNotice {
	return m.noticeCh
}

// park enqueues a task durably and emits a notice.
func (m *approvalManager) park(notice ApprovalNotice) error {
	err := m.store.EnqueueApproval(state.PendingApproval{
		TaskID:      notice.TaskID,
		PlanSummary: notice.PlanSummary,
		RiskScore:   notice.RiskScore,
	})
	if err != nil {
		return err
	}
	select {
	case m.noticeCh <- notice:
	default:
		// Notices are advisory; the durable queue is the source of truth.
	}
	return nil
}

// register creates the in-process wake channel for a task. Call it before
// the task becomes resolvable so a decision cannot slip past the waiter.
func (m *approvalManager) register(taskID string) chan state.ApprovalDecision {
	ch := make(chan state.ApprovalDecision, 1)
	m.mu.Lock()
	m.waiters[taskID] = ch
	m.mu.Unlock()
	return ch
}

func (m *approvalManager) unregister(taskID string) {
	m.mu.Lock()
	delete(m.waiters, taskID)
	m.mu.Unlock()
}

// wait blocks on a registered channel until resolve delivers a decision or
// the context is cancelled. There is deliberately no timeout; the approval
// wait belongs to the collaborator owning the approval UX.
func (m *approvalManager) wait(ctx context.Context, ch chan state.ApprovalDecision) (state.ApprovalDecision, error) {
	select {
	case decision := <-ch:
		return decision, nil
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

// resolve records the decision durably and wakes an in-process waiter if one
// exists. It reports whether a waiter consumed the decision.
func (m *approvalManager) resolve(taskID string, decision state.ApprovalDecision) (bool, error) {
	if err := m.store.ResolveApproval(taskID, decision); err != nil {
		return false, fmt.Errorf("resolve approval: %w", err)
	}

	m.mu.Lock()
	ch, ok := m.waiters[taskID]
	m.mu.Unlock()
	if !ok {
		return false, nil
	}
	select {
	case ch <- decision:
		return true, nil
	default:
		return false, nil
	}
}
