package lifecycle

import (
	"testing"

	"github.com/dyluth/lodge/pkg/datasheet"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNextStatus(t *testing.T) {
	tests := []struct {
		from    datasheet.DocumentStatus
		action  Action
		want    datasheet.DocumentStatus
		wantErr bool
	}{
		{datasheet.StatusDraft, ActionEdit, datasheet.StatusModifiedDraft, false},
		{datasheet.StatusModifiedDraft, ActionEdit, datasheet.StatusModifiedDraft, false},
		{datasheet.StatusRejected, ActionEdit, datasheet.StatusModifiedDraft, false},
		{datasheet.StatusVerified, ActionEdit, "", true},
		{datasheet.StatusApproved, ActionEdit, "", true},

		{datasheet.StatusDraft, ActionVerify, datasheet.StatusVerified, false},
		{datasheet.StatusModifiedDraft, ActionVerify, datasheet.StatusVerified, false},
		{datasheet.StatusVerified, ActionVerify, "", true},
		{datasheet.StatusRejected, ActionVerify, "", true},

		{datasheet.StatusVerified, ActionApprove, datasheet.StatusApproved, false},
		{datasheet.StatusDraft, ActionApprove, "", true},
		{datasheet.StatusApproved, ActionApprove, "", true},

		{datasheet.StatusDraft, ActionReject, datasheet.StatusRejected, false},
		{datasheet.StatusModifiedDraft, ActionReject, datasheet.StatusRejected, false},
		{datasheet.StatusVerified, ActionReject, datasheet.StatusRejected, false},
		{datasheet.StatusApproved, ActionReject, "", true},
		{datasheet.StatusRejected, ActionReject, "", true},
	}

	for _, tt := range tests {
		t.Run(string(tt.action)+"_from_"+string(tt.from), func(t *testing.T) {
			got, err := NextStatus(tt.from, tt.action)
			if tt.wantErr {
				require.Error(t, err)
				assert.ErrorIs(t, err, datasheet.ErrConflict)
				assert.Contains(t, err.Error(), string(tt.from))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestNextStatus_UnknownAction(t *testing.T) {
	_, err := NextStatus(datasheet.StatusDraft, Action("archive"))
	assert.ErrorIs(t, err, datasheet.ErrValidation)
}

func TestNextStatus_ConflictNamesRequiredStatuses(t *testing.T) {
	_, err := NextStatus(datasheet.StatusApproved, ActionVerify)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Draft or ModifiedDraft")
}

func TestRestoredStatus(t *testing.T) {
	assert.Equal(t, datasheet.StatusDraft, restoredStatus(datasheet.StatusDraft))
	assert.Equal(t, datasheet.StatusModifiedDraft, restoredStatus(datasheet.StatusModifiedDraft))
	assert.Equal(t, datasheet.StatusModifiedDraft, restoredStatus(datasheet.StatusRejected))
	assert.Equal(t, datasheet.StatusModifiedDraft, restoredStatus(datasheet.StatusVerified))
	assert.Equal(t, datasheet.StatusModifiedDraft, restoredStatus(datasheet.StatusApproved))
}

func TestWriteModeString(t *testing.T) {
	assert.Equal(t, "normal_edit", NormalEdit.String())
	assert.Equal(t, "restore_replay", RestoreReplay.String())
	assert.Equal(t, "WriteMode(7)", WriteMode(7).String())
}
