package domain

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestCanTransition(t *testing.T) {
	allowed := []struct{ from, to AlertStatus }{
		{AlertPending, AlertSent},
		{AlertSent, AlertDelivered},
		{AlertSent, AlertAcknowledged},
		{AlertSent, AlertFailed},
		{AlertDelivered, AlertAcknowledged},
		{AlertAcknowledged, AlertResolved},
		{AlertFailed, AlertResolved},
	}
	for _, tc := range allowed {
		require.True(t, CanTransition(tc.from, tc.to), "%s -> %s", tc.from, tc.to)
	}

	rejected := []struct{ from, to AlertStatus }{
		{AlertResolved, AlertSent},
		{AlertResolved, AlertAcknowledged},
		{AlertPending, AlertAcknowledged},
		{AlertPending, AlertResolved},
		{AlertAcknowledged, AlertSent},
	}
	for _, tc := range rejected {
		require.False(t, CanTransition(tc.from, tc.to), "%s -> %s", tc.from, tc.to)
	}
}

func TestDeliveredEverywhere(t *testing.T) {
	alert := &Alert{}
	require.False(t, alert.DeliveredEverywhere(), "zero recipients is vacuously undelivered")

	alert.Recipients = []AlertRecipient{
		{ID: "A", Delivered: ChannelFlags{Email: true}},
		{ID: "B", Delivered: ChannelFlags{Dashboard: true}},
	}
	require.False(t, alert.DeliveredEverywhere(), "dashboard broadcast is not a direct delivery")

	alert.Recipients[1].Delivered.Push = true
	require.True(t, alert.DeliveredEverywhere())
}
