package models

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLabelStoredRoundTrip(t *testing.T) {
	cases := []struct {
		name   string
		label  ClusterLabel
		stored int
	}{
		{"pending", PendingLabel(), StoredPending},
		{"noise", NoiseLabel(), StoredNoise},
		{"first cluster", AssignedLabel(0), 0},
		{"later cluster", AssignedLabel(7), 7},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.stored, tc.label.ToStored())

			back, err := LabelFromStored(tc.stored)
			require.NoError(t, err)
			assert.Equal(t, tc.label, back)
		})
	}
}

func TestLabelFromStoredRejectsUnknown(t *testing.T) {
	_, err := LabelFromStored(-3)
	assert.Error(t, err)
}

func TestLabelStates(t *testing.T) {
	pending := PendingLabel()
	assert.True(t, pending.IsPending())
	assert.False(t, pending.IsNoise())
	_, ok := pending.Cluster()
	assert.False(t, ok)

	noise := NoiseLabel()
	assert.True(t, noise.IsNoise())
	assert.False(t, noise.IsPending())

	assigned := AssignedLabel(3)
	id, ok := assigned.Cluster()
	require.True(t, ok)
	assert.Equal(t, 3, id)
}

func TestAssignedLabelPanicsOnNegative(t *testing.T) {
	assert.Panics(t, func() { AssignedLabel(-1) })
}

func TestLabelJSON(t *testing.T) {
	data, err := json.Marshal(AssignedLabel(5))
	require.NoError(t, err)
	assert.Equal(t, "5", string(data))

	var label ClusterLabel
	require.NoError(t, json.Unmarshal([]byte("-2"), &label))
	assert.True(t, label.IsPending())
}

func TestBoundingBoxValidate(t *testing.T) {
	assert.NoError(t, BoundingBox{X: 0, Y: 0, Width: 10, Height: 10}.Validate())
	assert.Error(t, BoundingBox{X: -1, Y: 0, Width: 10, Height: 10}.Validate())
	assert.Error(t, BoundingBox{X: 0, Y: 0, Width: 0, Height: 10}.Validate())
}

func TestEventRunning(t *testing.T) {
	now := mustTime(t, "2026-06-15T12:00:00Z")

	cases := []struct {
		name    string
		start   string
		end     string
		running bool
	}{
		{"no window", "", "", false},
		{"start only", "2026-06-15T10:00:00Z", "", false},
		{"inside window", "2026-06-15T10:00:00Z", "2026-06-15T18:00:00Z", true},
		{"before window", "2026-06-16T00:00:00Z", "2026-06-17T00:00:00Z", false},
		{"after window", "2026-06-14T00:00:00Z", "2026-06-15T11:00:00Z", false},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			e := Event{}
			if tc.start != "" {
				s := mustTime(t, tc.start)
				e.StartAt = &s
			}
			if tc.end != "" {
				end := mustTime(t, tc.end)
				e.EndAt = &end
			}
			assert.Equal(t, tc.running, e.Running(now))
		})
	}
}

func mustTime(t *testing.T, s string) time.Time {
	t.Helper()
	ts, err := time.Parse(time.RFC3339, s)
	require.NoError(t, err)
	return ts
}
