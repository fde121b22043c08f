package order

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestStatusTransitions(t *testing.T) {
	allowed := map[Status][]Status{
		StatusPending: {StatusPending, StatusPaid, StatusCancelled},
		StatusPaid:    {StatusShipped},
		StatusShipped: {StatusDelivered},
	}

	for _, from := range AllStatuses {
		for _, to := range AllStatuses {
			want := false
			for _, a := range allowed[from] {
				if a == to {
					want = true
					break
				}
			}
			assert.Equal(t, want, from.CanTransition(to), "%s -> %s", from, to)
		}
	}
}

func TestStatusTerminal(t *testing.T) {
	assert.True(t, StatusDelivered.Terminal())
	assert.True(t, StatusCancelled.Terminal())
	assert.False(t, StatusPending.Terminal())
	assert.False(t, StatusPaid.Terminal())
	assert.False(t, StatusShipped.Terminal())
}

func TestStatusesAllowedInto(t *testing.T) {
	assert.Equal(t, []Status{StatusPending}, StatusesAllowedInto(StatusPaid))
	assert.Equal(t, []Status{StatusPending}, StatusesAllowedInto(StatusPending))
	assert.Equal(t, []Status{StatusPending}, StatusesAllowedInto(StatusCancelled))
	assert.Equal(t, []Status{StatusPaid}, StatusesAllowedInto(StatusShipped))
	assert.Equal(t, []Status{StatusShipped}, StatusesAllowedInto(StatusDelivered))

	// A gateway answer flipping from Cancel to Failed must not revive a
	// cancelled order: terminal states appear in no from-set.
	for _, to := range AllStatuses {
		assert.NotContains(t, StatusesAllowedInto(to), StatusCancelled)
		assert.NotContains(t, StatusesAllowedInto(to), StatusDelivered)
	}
}

func TestStatusForBankStatus(t *testing.T) {
	tests := []struct {
		bank  string
		want  Status
		known bool
	}{
		{"Success", StatusPaid, true},
		{"Failed", StatusPending, true},
		{"Cancel", StatusCancelled, true},
		{"", "", false},
		{"Refunded", "", false},
	}

	for _, tc := range tests {
		got, known := StatusForBankStatus(tc.bank)
		assert.Equal(t, tc.known, known, "bank=%q", tc.bank)
		assert.Equal(t, tc.want, got, "bank=%q", tc.bank)
	}
}
