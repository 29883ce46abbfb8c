package payment

import (
	"net/http"

	"github.com/noah-isme/paywall-webhook/internal/common"
)

// OutcomeKind classifies the result of processing one webhook delivery.
type OutcomeKind int

const (
	OutcomeProcessed OutcomeKind = iota + 1
	OutcomeDuplicate
	OutcomeNoAccountRef
	OutcomeUnknownEvent
	OutcomeSignatureMissing
	OutcomeSignatureInvalid
	OutcomeBodyUnavailable
	OutcomeParseFailed
	OutcomeConfigurationFault
	OutcomeDownstreamFailure
)

var outcomeNames = map[OutcomeKind]string{
	OutcomeProcessed:          "processed",
	OutcomeDuplicate:          "duplicate",
	OutcomeNoAccountRef:       "no_account_ref",
	OutcomeUnknownEvent:       "ignored",
	OutcomeSignatureMissing:   "signature_missing",
	OutcomeSignatureInvalid:   "signature_invalid",
	OutcomeBodyUnavailable:    "body_unavailable",
	OutcomeParseFailed:        "parse_failed",
	OutcomeConfigurationFault: "config_fault",
	OutcomeDownstreamFailure:  "downstream_failure",
}

func (k OutcomeKind) String() string {
	if name, ok := outcomeNames[k]; ok {
		return name
	}
	return "unknown"
}

// Outcome is the terminal state of the webhook pipeline.
// AccountRef is set for Processed and Duplicate; Cause for failures and is never sent to the caller.
type Outcome struct {
	Kind       OutcomeKind
	AccountRef string
	Cause      error
}

type webhookResponse struct {
	Success  bool   `json:"success,omitempty"`
	User     string `json:"user,omitempty"`
	Received bool   `json:"received,omitempty"`
	Warning  string `json:"warning,omitempty"`
	Error    string `json:"error,omitempty"`
}

// Status maps the outcome to the HTTP status that drives the sender's retry behaviour.
// 2xx stops retries, 5xx asks for one.
func (o Outcome) Status() int {
	switch o.Kind {
	case OutcomeProcessed, OutcomeDuplicate, OutcomeNoAccountRef, OutcomeUnknownEvent:
		return http.StatusOK
	case OutcomeSignatureMissing, OutcomeParseFailed:
		return http.StatusBadRequest
	case OutcomeSignatureInvalid:
		return http.StatusForbidden
	default:
		return http.StatusInternalServerError
	}
}

func (o Outcome) body() webhookResponse {
	switch o.Kind {
	case OutcomeProcessed, OutcomeDuplicate:
		return webhookResponse{Success: true, User: o.AccountRef}
	case OutcomeNoAccountRef:
		return webhookResponse{Warning: "Missing user_id in payment notes"}
	case OutcomeUnknownEvent:
		return webhookResponse{Received: true}
	case OutcomeSignatureMissing:
		return webhookResponse{Error: "Missing signature"}
	case OutcomeSignatureInvalid:
		return webhookResponse{Error: "Invalid signature"}
	case OutcomeParseFailed:
		return webhookResponse{Error: "Invalid payload"}
	case OutcomeBodyUnavailable:
		return webhookResponse{Error: "Internal Server Error"}
	case OutcomeConfigurationFault:
		return webhookResponse{Error: "Internal verification error"}
	default:
		return webhookResponse{Error: "Internal processing error"}
	}
}

// Respond writes the outcome as a JSON response.
func Respond(w http.ResponseWriter, o Outcome) {
	common.JSON(w, o.Status(), o.body())
}
