package assets

import (
	"fmt"
	"strings"
)

// Outcome distinguishes create from replace on upsert-style operations.
type Outcome int

const (
	OutcomeCreated Outcome = iota + 1
	OutcomeUpdated
)

func (o Outcome) String() string {
	switch o {
	case OutcomeCreated:
		return "created"
	case OutcomeUpdated:
		return "updated"
	default:
		return "unknown"
	}
}

// RemoveFailure is one item a bulk removal could not process.
type RemoveFailure struct {
	Key string
	Err error
}

// RemoveAllResult partitions a bulk removal into removed and failed items.
// A bulk call never hard-fails on mixed outcomes; callers inspect the
// partitions instead.
type RemoveAllResult[T any] struct {
	Removed []T
	Failed  []RemoveFailure
}

// AllSucceeded reports whether every matched item was removed.
func (r RemoveAllResult[T]) AllSucceeded() bool { return len(r.Failed) == 0 }

// NoneMatched reports whether the call was a no-op.
func (r RemoveAllResult[T]) NoneMatched() bool {
	return len(r.Removed) == 0 && len(r.Failed) == 0
}

// ErrorText aggregates the individual failure messages with a delimiter.
func (r RemoveAllResult[T]) ErrorText() string {
	if len(r.Failed) == 0 {
		return ""
	}
	msgs := make([]string, len(r.Failed))
	for i, f := range r.Failed {
		msgs[i] = fmt.Sprintf("%s: %v", f.Key, f.Err)
	}
	return strings.Join(msgs, "; ")
}
