package telemetry

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := NewStore(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestNewStoreRegistersSession(t *testing.T) {
	t.Parallel()

	s := newTestStore(t)
	_, err := uuid.Parse(s.SessionID())
	require.NoError(t, err)

	var count int
	require.NoError(t, s.QueryRow(
		"SELECT COUNT(*) FROM sessions WHERE session_id = ?", s.SessionID()).Scan(&count))
	assert.Equal(t, 1, count)
}

func TestRecordAndQueryDecisions(t *testing.T) {
	t.Parallel()

	s := newTestStore(t)
	base := time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC)

	for i := 0; i < 3; i++ {
		require.NoError(t, s.RecordDecision(DecisionRecord{
			RequestedLeft:  1000,
			RequestedRight: 1000,
			AppliedLeft:    500 * i,
			AppliedRight:   500 * i,
			Reason:         "scaled",
			DistanceCm:     float64(20 + i),
			At:             base.Add(time.Duration(i) * time.Second),
		}))
	}

	recs, err := s.RecentDecisions(2)
	require.NoError(t, err)
	require.Len(t, recs, 2)

	// Most recent first.
	assert.Equal(t, 22.0, recs[0].DistanceCm)
	assert.Equal(t, 21.0, recs[1].DistanceCm)
	assert.Equal(t, s.SessionID(), recs[0].SessionID)
	assert.Equal(t, 1000, recs[0].RequestedLeft)
	assert.Equal(t, "scaled", recs[0].Reason)
}

func TestRecentDecisionsScopedToSession(t *testing.T) {
	t.Parallel()

	s := newTestStore(t)
	// Rows from an earlier session must not leak into this one.
	_, err := s.Exec(`INSERT INTO decisions
		(session_id, requested_left, requested_right, applied_left, applied_right,
		 reason, distance_cm, absent, stale, at)
		VALUES ('other-session', 1, 1, 1, 1, 'full', 100, 0, 0, ?)`, time.Now())
	require.NoError(t, err)

	recs, err := s.RecentDecisions(10)
	require.NoError(t, err)
	assert.Empty(t, recs)
}

func TestRecentDecisionsDefaultLimit(t *testing.T) {
	t.Parallel()

	s := newTestStore(t)
	require.NoError(t, s.RecordDecision(DecisionRecord{Reason: "full", At: time.Now()}))

	recs, err := s.RecentDecisions(0)
	require.NoError(t, err)
	assert.Len(t, recs, 1)
}

func TestRecordSample(t *testing.T) {
	t.Parallel()

	s := newTestStore(t)
	at := time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC)
	require.NoError(t, s.RecordSample(120, at))

	var distance float64
	require.NoError(t, s.QueryRow(
		"SELECT distance_cm FROM samples WHERE session_id = ?", s.SessionID()).Scan(&distance))
	assert.Equal(t, 120.0, distance)
}
