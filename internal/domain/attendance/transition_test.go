package attendance

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestAllowedActions(t *testing.T) {
	tests := []struct {
		state State
		want  []Action
	}{
		{StateNotStarted, []Action{ActionCheckIn}},
		{StateCheckedIn, []Action{ActionLunchStart, ActionCheckOut}},
		{StateOnLunch, []Action{ActionLunchEnd, ActionCheckOut}},
		{StateLunchDone, []Action{ActionCheckOut}},
		{StateCompleted, []Action{}},
	}

	for _, tt := range tests {
		t.Run(string(tt.state), func(t *testing.T) {
			assert.Equal(t, tt.want, AllowedActions(tt.state))
			for _, a := range Actions {
				assert.Equal(t, contains(tt.want, a), IsAllowed(tt.state, a), a)
			}
		})
	}
}

func TestAllowedActions_CheckOutReachableAfterCheckIn(t *testing.T) {
	for _, s := range []State{StateCheckedIn, StateOnLunch, StateLunchDone} {
		assert.True(t, IsAllowed(s, ActionCheckOut), s)
	}
}

func TestAllowedActions_ReturnsCopy(t *testing.T) {
	acts := AllowedActions(StateCheckedIn)
	acts[0] = ActionCheckOut
	assert.Equal(t, ActionLunchStart, AllowedActions(StateCheckedIn)[0])
}

func TestReselect(t *testing.T) {
	tests := []struct {
		name    string
		state   State
		current Action
		want    Action
	}{
		{"keeps allowed", StateCheckedIn, ActionCheckOut, ActionCheckOut},
		{"first allowed when none", StateCheckedIn, ActionNone, ActionLunchStart},
		{"replaces disallowed", StateOnLunch, ActionLunchStart, ActionLunchEnd},
		{"not started defaults to check in", StateNotStarted, ActionCheckOut, ActionCheckIn},
		{"completed clears", StateCompleted, ActionCheckOut, ActionNone},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Reselect(tt.state, tt.current))
		})
	}
}

func TestStateOf(t *testing.T) {
	ts := time.Date(2025, 3, 14, 8, 0, 0, 0, time.UTC)

	tests := []struct {
		name   string
		record *DayRecord
		want   State
	}{
		{"nil record", nil, StateNotStarted},
		{"empty record", &DayRecord{}, StateNotStarted},
		{"checked in", &DayRecord{CheckInAt: &ts}, StateCheckedIn},
		{"on lunch", &DayRecord{CheckInAt: &ts, LunchOutAt: &ts}, StateOnLunch},
		{"lunch done", &DayRecord{CheckInAt: &ts, LunchOutAt: &ts, LunchInAt: &ts}, StateLunchDone},
		{"completed without lunch", &DayRecord{CheckInAt: &ts, CheckOutAt: &ts}, StateCompleted},
		{"latest field wins", &DayRecord{LunchInAt: &ts}, StateLunchDone},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, StateOf(tt.record))
		})
	}
}

func TestDayRecord_Stamp(t *testing.T) {
	at := time.Date(2025, 3, 14, 12, 0, 0, 0, time.UTC)
	r := DayRecord{}

	r.Stamp(ActionLunchStart, at, Location{Latitude: -6.2, Longitude: 106.8, Address: "Jl. Sudirman"}, SelfieRef{AttachmentID: "/files/a.jpg"})

	assert.Equal(t, &at, r.TimestampOf(ActionLunchStart))
	assert.Equal(t, "/files/a.jpg", r.SelfieOf(ActionLunchStart).AttachmentID)
	assert.Nil(t, r.TimestampOf(ActionCheckIn))
	assert.Equal(t, -6.2, *r.Latitude)
	assert.Equal(t, "Jl. Sudirman", r.Address)
	assert.Equal(t, "lunch_out_selfie", SelfieField(ActionLunchStart))
}

func contains(acts []Action, a Action) bool {
	for _, candidate := range acts {
		if candidate == a {
			return true
		}
	}
	return false
}
