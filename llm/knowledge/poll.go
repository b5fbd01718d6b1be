package knowledge

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/failsafe-go/failsafe-go"
	"github.com/failsafe-go/failsafe-go/retrypolicy"

	"salesrep/llm"
)

const (
	DefaultPollAttempts = 10
	DefaultPollInterval = time.Second
)

// PollPolicy bounds how long an upload may stay in processing.
type PollPolicy struct {
	Attempts int
	Interval time.Duration
}

// CheckFunc reports the current remote state of one document.
type CheckFunc func(ctx context.Context) (llm.ProcessingState, error)

// Poll calls check until it reports ACTIVE or FAILED, or the budget runs out.
// Errors and PENDING are retried. Anything other than ACTIVE at the end is FAILED.
// It returns the final state and the number of checks made.
func Poll(ctx context.Context, check CheckFunc, policy PollPolicy) (llm.ProcessingState, int) {
	if policy.Attempts <= 0 {
		policy.Attempts = DefaultPollAttempts
	}
	if policy.Interval < 0 {
		policy.Interval = 0
	}

	retry := retrypolicy.NewBuilder[llm.ProcessingState]().
		HandleIf(func(state llm.ProcessingState, err error) bool {
			return err != nil || state == llm.StatePending
		}).
		WithMaxRetries(policy.Attempts - 1).
		WithDelay(policy.Interval).
		Build()

	var attempts atomic.Int32
	state, _ := failsafe.With(retry).WithContext(ctx).Get(func() (llm.ProcessingState, error) {
		attempts.Add(1)
		return check(ctx)
	})

	if state != llm.StateActive {
		return llm.StateFailed, int(attempts.Load())
	}
	return llm.StateActive, int(attempts.Load())
}

// Active keeps only documents that may be attached to a model request.
func Active(docs []llm.KnowledgeDocument) []llm.KnowledgeDocument {
	var out []llm.KnowledgeDocument
	for _, d := range docs {
		if d.Usable() {
			out = append(out, d)
		}
	}
	return out
}
