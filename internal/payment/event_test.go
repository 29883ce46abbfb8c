package payment_test

import (
	"os"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/paywall-webhook/internal/payment"
)

func loadFixture(t *testing.T) []byte {
	t.Helper()
	raw, err := os.ReadFile("testdata/payment_captured.json")
	require.NoError(t, err)
	return raw
}

func TestParseEventCapturedFixture(t *testing.T) {
	ev, err := payment.ParseEvent(loadFixture(t))
	require.NoError(t, err)

	want := payment.WebhookEvent{
		EventType: "payment.captured",
		AccountID: "acc_BFQ7uQEaa7j2z7",
		CreatedAt: 1567674606,
		Payment: payment.PaymentEntity{
			ID:               "pay_DESlfW9H8K9snM",
			OrderID:          "order_DESlLckIVRkMjB",
			Status:           payment.StatusCaptured,
			RawStatus:        "captured",
			AmountMinorUnits: 50000,
			Currency:         "INR",
			Method:           "card",
			Email:            "gaurav.kumar@example.com",
			Contact:          "+919000090000",
			Captured:         true,
			CreatedAt:        1567674599,
			Notes:            map[string]string{"user_id": "user_test_123"},
		},
		AccountRef:    "user_test_123",
		HasAccountRef: true,
	}
	if diff := cmp.Diff(want, ev); diff != "" {
		t.Fatalf("parsed event mismatch (-want +got):\n%s", diff)
	}
}

func TestParseEventNotes(t *testing.T) {
	cases := []struct {
		name    string
		notes   string
		wantRef string
		hasRef  bool
	}{
		{name: "empty array", notes: `[]`},
		{name: "null", notes: `null`},
		{name: "blank user", notes: `{"user_id":"   "}`},
		{name: "other keys", notes: `{"plan":"pro"}`},
		{name: "numeric user", notes: `{"user_id":42}`, wantRef: "42", hasRef: true},
		{name: "trimmed", notes: `{"user_id":" u-1 "}`, wantRef: "u-1", hasRef: true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			raw := []byte(`{"event":"payment.captured","payload":{"payment":{"entity":{"id":"pay_1","status":"captured","order_id":"order_1","notes":` + tc.notes + `}}}}`)
			ev, err := payment.ParseEvent(raw)
			require.NoError(t, err)
			require.Equal(t, tc.hasRef, ev.HasAccountRef)
			require.Equal(t, tc.wantRef, ev.AccountRef)
			require.NotNil(t, ev.Payment.Notes)
		})
	}
}

func TestParseEventRequiredFields(t *testing.T) {
	cases := map[string]string{
		"event":    `{"payload":{"payment":{"entity":{"status":"captured","order_id":"o"}}}}`,
		"entity":   `{"event":"payment.captured","payload":{}}`,
		"status":   `{"event":"payment.captured","payload":{"payment":{"entity":{"order_id":"o"}}}}`,
		"order_id": `{"event":"payment.captured","payload":{"payment":{"entity":{"status":"captured","order_id":null}}}}`,
	}
	for name, raw := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := payment.ParseEvent([]byte(raw))
			require.ErrorIs(t, err, payment.ErrMissingField)
		})
	}
}

func TestParseEventKeepsEventTypeOnMissingField(t *testing.T) {
	ev, err := payment.ParseEvent([]byte(`{"event":"subscription.charged","payload":{"subscription":{}}}`))
	require.ErrorIs(t, err, payment.ErrMissingField)
	require.Equal(t, "subscription.charged", ev.EventType)
}

func TestParseEventInvalidJSON(t *testing.T) {
	for _, raw := range []string{``, `not json`, `[]`, `{"event":"payment.captured","payload":{"payment":{"entity":{"status":"captured","order_id":"o","amount":"50000"}}}}`} {
		_, err := payment.ParseEvent([]byte(raw))
		require.ErrorIs(t, err, payment.ErrInvalidEnvelope, raw)
	}
}

func TestParseEventUnknownStatus(t *testing.T) {
	ev, err := payment.ParseEvent([]byte(`{"event":"payment.captured","payload":{"payment":{"entity":{"status":"Pending_Review","order_id":"o"}}}}`))
	require.NoError(t, err)
	require.Equal(t, payment.StatusUnknown, ev.Payment.Status)
	require.Equal(t, "Pending_Review", ev.Payment.RawStatus)
}

func TestParseEventKeepsEventAndStatusExact(t *testing.T) {
	ev, err := payment.ParseEvent([]byte(`{"event":" payment.captured ","payload":{"payment":{"entity":{"status":"  CAPTURED ","order_id":"o","notes":{"user_id":"u1"}}}}}`))
	require.NoError(t, err)
	require.Equal(t, " payment.captured ", ev.EventType)
	require.Equal(t, payment.StatusUnknown, ev.Payment.Status)
	require.Equal(t, "  CAPTURED ", ev.Payment.RawStatus)

	ev, err = payment.ParseEvent([]byte(`{"event":"payment.captured","payload":{"payment":{"entity":{"status":"Captured","order_id":"o"}}}}`))
	require.NoError(t, err)
	require.Equal(t, payment.StatusUnknown, ev.Payment.Status)
}
