package domain

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTicketNormalize_Urgency(t *testing.T) {
	cases := []struct {
		priority TicketPriority
		urgent   bool
	}{
		{TicketPriorityLow, false},
		{TicketPriorityMedium, false},
		{TicketPriorityHigh, true},
		{TicketPriorityCritical, true},
	}
	for _, tc := range cases {
		t.Run(string(tc.priority), func(t *testing.T) {
			ticket := &Ticket{Priority: tc.priority, IsUrgent: !tc.urgent}
			ticket.Normalize()
			assert.Equal(t, tc.urgent, ticket.IsUrgent)
		})
	}
}

func TestTicketNormalize_Defaults(t *testing.T) {
	ticket := &Ticket{Priority: TicketPriorityLow, EscalationLevel: 7}
	ticket.Normalize()

	assert.Equal(t, TicketCategoryOther, ticket.Category)
	assert.Equal(t, MaxEscalationLevel, ticket.EscalationLevel)
	assert.NotNil(t, ticket.Tags)

	ticket.EscalationLevel = 0
	ticket.Normalize()
	assert.Equal(t, MinEscalationLevel, ticket.EscalationLevel)
}

func TestTransitionTo_StampsResolutionOnce(t *testing.T) {
	created := time.Date(2024, 3, 1, 8, 0, 0, 0, time.UTC)
	ticket := &Ticket{Status: TicketStatusOpen, CreatedAt: created}

	resolvedAt := created.Add(90 * time.Minute)
	require.NoError(t, ticket.TransitionTo(TicketStatusResolved, resolvedAt, TransitionFree))
	require.NotNil(t, ticket.ActualResolutionTime)
	assert.Equal(t, resolvedAt, *ticket.ActualResolutionTime)

	// staying resolved does not restamp
	require.NoError(t, ticket.TransitionTo(TicketStatusResolved, resolvedAt.Add(time.Hour), TransitionFree))
	assert.Equal(t, resolvedAt, *ticket.ActualResolutionTime)

	// later transitions keep the stamp
	require.NoError(t, ticket.TransitionTo(TicketStatusClosed, resolvedAt.Add(2*time.Hour), TransitionFree))
	assert.Equal(t, resolvedAt, *ticket.ActualResolutionTime)

	d, ok := ticket.ResolutionDuration()
	assert.True(t, ok)
	assert.Equal(t, 90*time.Minute, d)
}

func TestTransitionTo_NonResolvedLeavesStampNil(t *testing.T) {
	ticket := &Ticket{Status: TicketStatusOpen}
	require.NoError(t, ticket.TransitionTo(TicketStatusInProgress, time.Now(), TransitionFree))
	assert.Nil(t, ticket.ActualResolutionTime)
}

func TestTransitionTo_ForwardOnly(t *testing.T) {
	cases := []struct {
		from, to TicketStatus
		allowed  bool
	}{
		{TicketStatusOpen, TicketStatusInProgress, true},
		{TicketStatusInProgress, TicketStatusResolved, true},
		{TicketStatusResolved, TicketStatusClosed, true},
		{TicketStatusOpen, TicketStatusOpen, true},
		{TicketStatusOpen, TicketStatusClosed, false},
		{TicketStatusClosed, TicketStatusOpen, false},
		{TicketStatusResolved, TicketStatusInProgress, false},
	}
	for _, tc := range cases {
		t.Run(string(tc.from)+"->"+string(tc.to), func(t *testing.T) {
			ticket := &Ticket{Status: tc.from}
			err := ticket.TransitionTo(tc.to, time.Now(), TransitionForwardOnly)
			if tc.allowed {
				require.NoError(t, err)
				assert.Equal(t, tc.to, ticket.Status)
				return
			}
			require.Error(t, err)
			assert.True(t, errors.Is(err, ErrInvalidTransition))
			assert.Equal(t, tc.from, ticket.Status)
		})
	}
}

func TestTransitionTo_FreeAllowsReopen(t *testing.T) {
	ticket := &Ticket{Status: TicketStatusClosed}
	require.NoError(t, ticket.TransitionTo(TicketStatusOpen, time.Now(), TransitionFree))
	assert.Equal(t, TicketStatusOpen, ticket.Status)
}

func TestTransitionTo_RejectsUnknownStatus(t *testing.T) {
	ticket := &Ticket{Status: TicketStatusOpen}
	err := ticket.TransitionTo("pending", time.Now(), TransitionFree)
	assert.ErrorIs(t, err, ErrInvalidTransition)
}

func TestPublicView_StripsInternalComments(t *testing.T) {
	ticket := &Ticket{Comments: []Comment{
		{ID: "c1", Content: "visible"},
		{ID: "c2", Content: "staff only", IsInternal: true},
	}}

	view := ticket.PublicView()
	require.Len(t, view.Comments, 1)
	assert.Equal(t, "c1", view.Comments[0].ID)
	assert.Len(t, ticket.Comments, 2)
}

func TestComputeStats(t *testing.T) {
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	resolvedA := base.Add(2 * time.Hour)
	resolvedB := base.Add(4 * time.Hour)
	tickets := []*Ticket{
		{Status: TicketStatusOpen, Priority: TicketPriorityCritical, GasStationLocation: "Downtown", CreatedAt: base},
		{Status: TicketStatusResolved, Priority: TicketPriorityLow, GasStationLocation: "Downtown", CreatedAt: base, ActualResolutionTime: &resolvedA},
		{Status: TicketStatusClosed, Priority: TicketPriorityHigh, GasStationLocation: "Highway", CreatedAt: base, ActualResolutionTime: &resolvedB},
	}

	stats := ComputeStats(tickets)

	assert.Equal(t, 3, stats.Total)
	assert.Equal(t, 1, stats.ByStatus[TicketStatusOpen])
	assert.Equal(t, 0, stats.ByStatus[TicketStatusInProgress])
	assert.Equal(t, 1, stats.ByPriority[TicketPriorityCritical])
	assert.Equal(t, (3 * time.Hour).Milliseconds(), stats.AvgResolutionTimeMs)
	require.Len(t, stats.TopLocations, 2)
	assert.Equal(t, LocationCount{Location: "Downtown", Count: 2}, stats.TopLocations[0])
}

func TestComputeStats_NoResolvedTickets(t *testing.T) {
	stats := ComputeStats([]*Ticket{{Status: TicketStatusOpen, Priority: TicketPriorityLow}})
	assert.Zero(t, stats.AvgResolutionTimeMs)
}
