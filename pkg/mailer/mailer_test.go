package mailer

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleConfirmation() BookingConfirmation {
	return BookingConfirmation{
		BookingRef:     "BK7Q2X9Z",
		UserName:       "Asha Rao",
		UserEmail:      "asha@example.com",
		ExperienceName: "Kayaking in the Mangroves",
		Location:       "Udupi",
		StartTime:      time.Date(2026, 11, 3, 7, 0, 0, 0, time.UTC),
		Quantity:       2,
		PricePaid:      1890,
	}
}

func TestConfirmationBody(t *testing.T) {
	body := ConfirmationBody(sampleConfirmation())

	assert.Contains(t, body, "Hi Asha Rao,")
	assert.Contains(t, body, "Reference: BK7Q2X9Z")
	assert.Contains(t, body, "Experience: Kayaking in the Mangroves")
	assert.Contains(t, body, "Location: Udupi")
	assert.Contains(t, body, "Starts: Tue, 03 Nov 2026 07:00 UTC")
	assert.Contains(t, body, "Spots: 2")
	assert.Contains(t, body, "Total paid: ₹1890")
}

func TestCompose(t *testing.T) {
	m, err := New(Config{Host: "localhost", From: "noreply@bookit.local", FromName: "BookIt"})
	require.NoError(t, err)

	msg, err := m.compose(sampleConfirmation())
	require.NoError(t, err)
	to := msg.GetTo()
	require.Len(t, to, 1)
	assert.Equal(t, "asha@example.com", to[0].Address)
	assert.Equal(t, "Asha Rao", to[0].Name)

	bad := sampleConfirmation()
	bad.UserEmail = "not an address"
	_, err = m.compose(bad)
	assert.Error(t, err)
}
