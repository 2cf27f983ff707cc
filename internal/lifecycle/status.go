package lifecycle

import (
	"fmt"
	"strings"

	"github.com/dyluth/lodge/pkg/datasheet"
)

// Action is a user intent that may move a document between statuses.
type Action string

const (
	ActionEdit    Action = "edit"
	ActionVerify  Action = "verify"
	ActionApprove Action = "approve"
	ActionReject  Action = "reject"
)

type transition struct {
	from []datasheet.DocumentStatus
	to   datasheet.DocumentStatus
}

var transitions = map[Action]transition{
	ActionEdit: {
		from: []datasheet.DocumentStatus{datasheet.StatusDraft, datasheet.StatusModifiedDraft, datasheet.StatusRejected},
		to:   datasheet.StatusModifiedDraft,
	},
	ActionVerify: {
		from: []datasheet.DocumentStatus{datasheet.StatusDraft, datasheet.StatusModifiedDraft},
		to:   datasheet.StatusVerified,
	},
	ActionApprove: {
		from: []datasheet.DocumentStatus{datasheet.StatusVerified},
		to:   datasheet.StatusApproved,
	},
	ActionReject: {
		from: []datasheet.DocumentStatus{datasheet.StatusDraft, datasheet.StatusModifiedDraft, datasheet.StatusVerified},
		to:   datasheet.StatusRejected,
	},
}

// NextStatus returns the status a document in current moves to under action,
// or a KindConflict error naming the current and required statuses.
func NextStatus(current datasheet.DocumentStatus, action Action) (datasheet.DocumentStatus, error) {
	t, ok := transitions[action]
	if !ok {
		return "", datasheet.NewValidationError(string(action), fmt.Sprintf("unknown action %q", action))
	}
	for _, from := range t.from {
		if from == current {
			return t.to, nil
		}
	}
	required := make([]string, len(t.from))
	for i, s := range t.from {
		required[i] = string(s)
	}
	return "", datasheet.NewConflictError(string(action),
		"cannot %s document in status %s (requires %s)", action, current, strings.Join(required, " or "))
}

// WriteMode selects how a mutation is applied to a document.
type WriteMode int

const (
	// NormalEdit is an ordinary user edit: status guards apply, the header is
	// editable only in Draft, and a revision is minted for the change.
	NormalEdit WriteMode = iota

	// RestoreReplay re-applies a stored snapshot: status guards are bypassed,
	// the header and layout are rewritten, and no revision is minted by the
	// mutation itself. The restore coordinator mints exactly one afterwards.
	RestoreReplay
)

func (m WriteMode) String() string {
	switch m {
	case NormalEdit:
		return "normal_edit"
	case RestoreReplay:
		return "restore_replay"
	default:
		return fmt.Sprintf("WriteMode(%d)", int(m))
	}
}

// restoredStatus derives the status a document takes after a restore. An
// editable snapshot status is kept; dispositions fall back to ModifiedDraft.
func restoredStatus(snapshot datasheet.DocumentStatus) datasheet.DocumentStatus {
	if snapshot.Editable() {
		return snapshot
	}
	return datasheet.StatusModifiedDraft
}
