package outpass_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/hostelhub/outpass-engine/outpass"
)

func TestNext_AllowedEdges(t *testing.T) {
	cases := []struct {
		from  outpass.Status
		event outpass.Event
		to    outpass.Status
	}{
		{outpass.StatusPending, outpass.EventApprove, outpass.StatusApproved},
		{outpass.StatusPending, outpass.EventReject, outpass.StatusRejected},
		{outpass.StatusApproved, outpass.EventScanOut, outpass.StatusOut},
		{outpass.StatusApproved, outpass.EventExpireBeforeOut, outpass.StatusLate},
		{outpass.StatusLate, outpass.EventScanOut, outpass.StatusOut},
		{outpass.StatusOut, outpass.EventScanIn, outpass.StatusReturned},
		{outpass.StatusOut, outpass.EventExpireBeforeIn, outpass.StatusOut},
	}

	for _, tc := range cases {
		next, err := outpass.Next(tc.from, tc.event)
		require.NoError(t, err, "%s + %s", tc.from, tc.event)
		assert.Equal(t, tc.to, next, "%s + %s", tc.from, tc.event)
	}
}

func TestNext_PostDeadlineRegeneration_KeepsStatusOut(t *testing.T) {
	// The out->out edge is deliberate: regenerating a missed-deadline token
	// changes the token and lateness flag, never the status name
	next, err := outpass.Next(outpass.StatusOut, outpass.EventExpireBeforeIn)
	require.NoError(t, err)
	assert.Equal(t, outpass.StatusOut, next)
}

func TestNext_DecidingTwice_ReturnsAlreadyDecided(t *testing.T) {
	// GIVEN: A pass already approved or rejected
	// WHEN: Approving or rejecting again
	// THEN: The caller gets ErrAlreadyDecided, not a generic transition error
	for _, from := range []outpass.Status{outpass.StatusApproved, outpass.StatusRejected} {
		for _, ev := range []outpass.Event{outpass.EventApprove, outpass.EventReject} {
			_, err := outpass.Next(from, ev)
			assert.ErrorIs(t, err, outpass.ErrAlreadyDecided, "%s + %s", from, ev)
		}
	}
}

func TestNext_MissingEdge_ReturnsInvalidTransition(t *testing.T) {
	cases := []struct {
		from  outpass.Status
		event outpass.Event
	}{
		{outpass.StatusPending, outpass.EventScanOut},
		{outpass.StatusPending, outpass.EventScanIn},
		{outpass.StatusApproved, outpass.EventScanIn},
		{outpass.StatusOut, outpass.EventScanOut},
		{outpass.StatusReturned, outpass.EventScanIn},
		{outpass.StatusRejected, outpass.EventScanOut},
		{outpass.StatusLate, outpass.EventScanIn},
		{outpass.StatusLate, outpass.EventExpireBeforeOut},
	}

	for _, tc := range cases {
		_, err := outpass.Next(tc.from, tc.event)
		assert.ErrorIs(t, err, outpass.ErrInvalidTransition, "%s + %s", tc.from, tc.event)

		var ite *outpass.InvalidTransitionError
		require.ErrorAs(t, err, &ite)
		assert.Equal(t, tc.from, ite.Current)
		assert.Equal(t, tc.event, ite.Event)
	}
}

func TestCanApply(t *testing.T) {
	assert.True(t, outpass.CanApply(outpass.StatusApproved, outpass.EventScanOut))
	assert.False(t, outpass.CanApply(outpass.StatusReturned, outpass.EventScanOut))
}

func TestStatus_TerminalAndActive(t *testing.T) {
	assert.True(t, outpass.StatusRejected.Terminal())
	assert.True(t, outpass.StatusReturned.Terminal())
	assert.False(t, outpass.StatusOut.Terminal())

	assert.True(t, outpass.StatusPending.Active())
	assert.True(t, outpass.StatusLate.Active())
	assert.False(t, outpass.StatusReturned.Active())
	assert.False(t, outpass.StatusRejected.Active())
}
