package publish

import "context"

// Confirmer is asked before the force-with-lease push that follows a
// merge whose conflicts were resolved automatically. Returning false
// skips the force push and the run ends needing manual intervention.
type Confirmer interface {
	Confirm(ctx context.Context, prompt string) (bool, error)
}

// ConfirmFunc adapts an ordinary function to the Confirmer interface.
type ConfirmFunc func(ctx context.Context, prompt string) (bool, error)

// Confirm calls f(ctx, prompt).
func (f ConfirmFunc) Confirm(ctx context.Context, prompt string) (bool, error) {
	return f(ctx, prompt)
}

// FixedAnswer returns a Confirmer that always gives the same answer.
// It backs the --yes flag and is handy in tests.
func FixedAnswer(answer bool) Confirmer {
	return ConfirmFunc(func(context.Context, string) (bool, error) {
		return answer, nil
	})
}
