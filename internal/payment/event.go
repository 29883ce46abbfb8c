package payment

import (
	"bytes"
	"errors"
	"fmt"
	"strings"

	"github.com/goccy/go-json"
)

// EventPaymentCaptured is the only event type that grants an entitlement.
const EventPaymentCaptured = "payment.captured"

var (
	// ErrInvalidEnvelope is returned for bodies that are not a webhook envelope.
	ErrInvalidEnvelope = errors.New("payment: invalid webhook envelope")
	// ErrMissingField is returned when a required envelope field is absent or empty.
	ErrMissingField = errors.New("payment: required field missing")
)

// PaymentStatus is the lifecycle state of a payment entity.
type PaymentStatus string

const (
	StatusCreated    PaymentStatus = "created"
	StatusAuthorized PaymentStatus = "authorized"
	StatusCaptured   PaymentStatus = "captured"
	StatusFailed     PaymentStatus = "failed"
	StatusRefunded   PaymentStatus = "refunded"
	StatusUnknown    PaymentStatus = "unknown"
)

func parseStatus(raw string) PaymentStatus {
	switch s := PaymentStatus(raw); s {
	case StatusCreated, StatusAuthorized, StatusCaptured, StatusFailed, StatusRefunded:
		return s
	default:
		return StatusUnknown
	}
}

// PaymentEntity is the payment object nested in a webhook envelope.
type PaymentEntity struct {
	ID               string
	OrderID          string
	Status           PaymentStatus
	RawStatus        string
	AmountMinorUnits int64
	Currency         string
	Method           string
	Email            string
	Contact          string
	Captured         bool
	CreatedAt        int64
	Notes            map[string]string
}

// Note returns the trimmed value stored under key and whether it is non-empty.
func (p PaymentEntity) Note(key string) (string, bool) {
	v := strings.TrimSpace(p.Notes[key])
	return v, v != ""
}

// WebhookEvent is a structurally valid webhook notification.
type WebhookEvent struct {
	EventType     string
	AccountID     string
	CreatedAt     int64
	Payment       PaymentEntity
	AccountRef    string
	HasAccountRef bool
}

type envelopeDoc struct {
	Event     string `json:"event"`
	AccountID string `json:"account_id"`
	CreatedAt int64  `json:"created_at"`
	Payload   struct {
		Payment *struct {
			Entity *entityDoc `json:"entity"`
		} `json:"payment"`
	} `json:"payload"`
}

type entityDoc struct {
	ID        string          `json:"id"`
	OrderID   *string         `json:"order_id"`
	Status    *string         `json:"status"`
	Amount    int64           `json:"amount"`
	Currency  string          `json:"currency"`
	Method    string          `json:"method"`
	Email     string          `json:"email"`
	Contact   string          `json:"contact"`
	Captured  bool            `json:"captured"`
	CreatedAt int64           `json:"created_at"`
	Notes     json.RawMessage `json:"notes"`
}

// ParseEvent validates raw as a webhook envelope. Event and status are kept
// byte-exact. Once the JSON decodes, a returned error still comes with whatever
// was read, including EventType.
func ParseEvent(raw []byte) (WebhookEvent, error) {
	var doc envelopeDoc
	if err := json.Unmarshal(raw, &doc); err != nil {
		return WebhookEvent{}, fmt.Errorf("%w: %v", ErrInvalidEnvelope, err)
	}
	ev := WebhookEvent{
		EventType: doc.Event,
		AccountID: doc.AccountID,
		CreatedAt: doc.CreatedAt,
	}
	if ev.EventType == "" {
		return ev, fmt.Errorf("%w: event", ErrMissingField)
	}
	if doc.Payload.Payment == nil || doc.Payload.Payment.Entity == nil {
		return ev, fmt.Errorf("%w: payload.payment.entity", ErrMissingField)
	}
	ent := doc.Payload.Payment.Entity
	if ent.Status == nil || *ent.Status == "" {
		return ev, fmt.Errorf("%w: payload.payment.entity.status", ErrMissingField)
	}
	if ent.OrderID == nil || strings.TrimSpace(*ent.OrderID) == "" {
		return ev, fmt.Errorf("%w: payload.payment.entity.order_id", ErrMissingField)
	}
	notes, err := decodeNotes(ent.Notes)
	if err != nil {
		return ev, fmt.Errorf("%w: notes: %v", ErrInvalidEnvelope, err)
	}

	ev.Payment = PaymentEntity{
		ID:               ent.ID,
		OrderID:          strings.TrimSpace(*ent.OrderID),
		Status:           parseStatus(*ent.Status),
		RawStatus:        *ent.Status,
		AmountMinorUnits: ent.Amount,
		Currency:         ent.Currency,
		Method:           ent.Method,
		Email:            ent.Email,
		Contact:          ent.Contact,
		Captured:         ent.Captured,
		CreatedAt:        ent.CreatedAt,
		Notes:            notes,
	}
	ev.AccountRef, ev.HasAccountRef = ev.Payment.Note("user_id")
	return ev, nil
}

// decodeNotes accepts an object, null, or an array (Razorpay sends [] for empty notes).
// Non-string values are kept as their compact JSON text.
func decodeNotes(raw json.RawMessage) (map[string]string, error) {
	notes := map[string]string{}
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) || trimmed[0] == '[' {
		return notes, nil
	}
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(trimmed, &fields); err != nil {
		return nil, err
	}
	for key, value := range fields {
		value = bytes.TrimSpace(value)
		if bytes.Equal(value, []byte("null")) {
			continue
		}
		var s string
		if err := json.Unmarshal(value, &s); err == nil {
			notes[key] = s
			continue
		}
		var buf bytes.Buffer
		if err := json.Compact(&buf, value); err != nil {
			return nil, err
		}
		notes[key] = buf.String()
	}
	return notes, nil
}
