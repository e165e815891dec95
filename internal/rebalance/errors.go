package rebalance

import (
	"errors"
	"fmt"

	"github.com/jazzypop/content-engine/internal/content"
)

// ErrGroupLocked is returned by a Store when another worker holds the group.
var ErrGroupLocked = errors.New("group claimed by another worker")

// errDryRun rolls back a dry-run transaction after planning.
var errDryRun = errors.New("dry run")

// GroupError reports a failure confined to one group. The run continues.
type GroupError struct {
	Key content.GroupKey
	Err error
}

func (e *GroupError) Error() string {
	return fmt.Sprintf("rebalance group %s: %v", e.Key, e.Err)
}

func (e *GroupError) Unwrap() error { return e.Err }

// FatalRunError aborts a run. Summary holds the statistics gathered before the failure.
type FatalRunError struct {
	Summary Summary
	Err     error
}

func (e *FatalRunError) Error() string {
	return fmt.Sprintf("rebalance run aborted after %d groups: %v", e.Summary.GroupsProcessed, e.Err)
}

func (e *FatalRunError) Unwrap() error { return e.Err }
