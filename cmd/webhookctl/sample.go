package main

import (
	"strings"
	"time"

	"github.com/goccy/go-json"
	"github.com/google/uuid"
	"github.com/spf13/cobra"
)

type sampleOptions struct {
	Event     string
	Status    string
	UserID    string
	PaymentID string
	OrderID   string
	Amount    int64
}

func addSampleFlags(cmd *cobra.Command, o *sampleOptions) {
	cmd.Flags().StringVar(&o.Event, "event", "payment.captured", "event type")
	cmd.Flags().StringVar(&o.Status, "status", "captured", "payment status")
	cmd.Flags().StringVar(&o.UserID, "user", "user_test_123", "notes.user_id; empty omits it")
	cmd.Flags().StringVar(&o.PaymentID, "payment-id", "", "payment id (random when empty)")
	cmd.Flags().StringVar(&o.OrderID, "order-id", "", "order id (random when empty)")
	cmd.Flags().Int64Var(&o.Amount, "amount", 50000, "amount in minor units")
}

func randomID(prefix string) string {
	return prefix + strings.ReplaceAll(uuid.NewString(), "-", "")[:14]
}

// samplePayload builds a Razorpay-shaped event envelope.
func samplePayload(o sampleOptions, now time.Time) ([]byte, error) {
	if o.PaymentID == "" {
		o.PaymentID = randomID("pay_")
	}
	if o.OrderID == "" {
		o.OrderID = randomID("order_")
	}
	notes := map[string]any{}
	if o.UserID != "" {
		notes["user_id"] = o.UserID
	}
	entity := map[string]any{
		"id":              o.PaymentID,
		"entity":          "payment",
		"amount":          o.Amount,
		"currency":        "INR",
		"status":          o.Status,
		"order_id":        o.OrderID,
		"invoice_id":      nil,
		"international":   false,
		"method":          "card",
		"amount_refunded": 0,
		"refund_status":   nil,
		"captured":        o.Status == "captured",
		"description":     "Test Transaction",
		"email":           "gaurav.kumar@example.com",
		"contact":         "+919000090000",
		"notes":           notes,
		"fee":             1000,
		"tax":             0,
		"created_at":      now.Unix() - 7,
	}
	return json.Marshal(map[string]any{
		"entity":     "event",
		"account_id": "acc_BFQ7uQEaa7j2z7",
		"event":      o.Event,
		"contains":   []string{"payment"},
		"payload": map[string]any{
			"payment": map[string]any{"entity": entity},
		},
		"created_at": now.Unix(),
	})
}
