package dispatch

import "context"

// Fence is a task submitted to a role that signals once it has run.
// Because a role runs its tasks in order, a completed fence means every task
// the submitting goroutine queued to that role before it has also run.
type Fence struct {
	role Role
	reg  *Registry
	done chan struct{}
}

// SubmitFence queues a fence on role.
func (r *Registry) SubmitFence(role Role) (*Fence, error) {
	f := &Fence{
		role: role,
		reg:  r,
		done: make(chan struct{}),
	}
	if err := r.Submit(role, f.signal); err != nil {
		return nil, err
	}
	return f, nil
}

// NewFence creates a fence not yet submitted anywhere. Callers enqueue
// Signal on the role themselves.
func NewFence(reg *Registry, role Role) *Fence {
	return &Fence{role: role, reg: reg, done: make(chan struct{})}
}

// Signal is the fence task body.
func (f *Fence) Signal() {
	f.signal()
}

func (f *Fence) signal() {
	select {
	case <-f.done:
	default:
		close(f.done)
	}
}

// Ready reports whether the fence has run.
func (f *Fence) Ready() bool {
	select {
	case <-f.done:
		return true
	default:
		return false
	}
}

// Done returns a channel closed once the fence has run.
func (f *Fence) Done() <-chan struct{} {
	return f.done
}

// Wait blocks until the fence has run or ctx is done.
//
// Waiting from the goroutine bound to the fence's own role would deadlock
// and is reported as SELF_WAIT misuse instead.
func (f *Fence) Wait(ctx context.Context) error {
	if f.reg != nil && f.reg.IsCurrent(f.role) {
		return f.reg.Misuse(NewMisuseError(ErrCodeSelfWait, f.role,
			"fence waited on from its own role"))
	}
	select {
	case <-f.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// MailboxSubmitter adapts a Mailbox into a Submitter for role. Enqueueing
// into a closed mailbox reports ENQUEUE_AFTER_STOP.
func (r *Registry) MailboxSubmitter(role Role, m *Mailbox) Submitter {
	return func(t Task) error {
		if !m.Enqueue(t) {
			return r.Misuse(NewMisuseError(ErrCodeEnqueueAfterStop, role,
				"mailbox closed"))
		}
		return nil
	}
}
