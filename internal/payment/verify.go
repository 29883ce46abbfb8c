package payment

import (
	"errors"
	"net/http"
	"strings"

	validator "github.com/go-playground/validator/v10"
	"github.com/goccy/go-json"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/noah-isme/paywall-webhook/internal/common"
	"github.com/noah-isme/paywall-webhook/internal/entitlement"
	"github.com/noah-isme/paywall-webhook/internal/obs"
)

// VerifyHandler checks the signature a client received from Razorpay Checkout.
type VerifyHandler struct {
	Auth      Authenticator
	Granter   entitlement.Granter
	Validator *validator.Validate
}

type verifyRequest struct {
	OrderID   string `json:"razorpay_order_id" validate:"required"`
	PaymentID string `json:"razorpay_payment_id" validate:"required"`
	Signature string `json:"razorpay_signature" validate:"required"`
	UserID    string `json:"user_id" validate:"omitempty,max=256"`
}

type verifyResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message,omitempty"`
	Error   string `json:"error,omitempty"`
}

// Handle verifies {order_id, payment_id, signature} and, on success, grants the
// optional user_id on a best-effort basis.
func (h VerifyHandler) Handle(w http.ResponseWriter, r *http.Request) {
	ctx, span := otel.Tracer("payment").Start(r.Context(), "Verify.Handle")
	defer span.End()
	log := zerolog.Ctx(ctx)

	req, err := h.decode(r)
	if err != nil {
		obs.ObserveVerify("bad_request")
		common.JSON(w, common.StatusOf(err), verifyResponse{Error: common.MessageOf(err, "Invalid request")})
		return
	}

	ok, err := h.Auth.Verify(OrderPaymentMessage(req.OrderID, req.PaymentID), req.Signature)
	if err != nil {
		log.Error().Err(err).Msg("checkout signature verification error")
		obs.ObserveVerify("config_fault")
		common.JSON(w, http.StatusInternalServerError, verifyResponse{Error: "Server configuration error"})
		return
	}
	span.SetAttributes(attribute.Bool("payment.verified", ok))
	if !ok {
		log.Warn().Str("order_id", req.OrderID).Str("payment_id", req.PaymentID).Msg("invalid checkout signature")
		obs.ObserveVerify("invalid")
		common.JSON(w, http.StatusBadRequest, verifyResponse{Error: "Invalid signature"})
		return
	}

	if req.UserID != "" && h.Granter != nil {
		if err := h.Granter.Grant(withVerified(ctx, ConventionOrderPayment), req.UserID); err != nil {
			log.Error().Err(err).Str("user", req.UserID).Str("payment_id", req.PaymentID).
				Msg("grant after checkout verification failed")
		}
	}
	obs.ObserveVerify("verified")
	common.JSON(w, http.StatusOK, verifyResponse{Success: true, Message: "Payment verified successfully"})
}

func (h VerifyHandler) decode(r *http.Request) (verifyRequest, error) {
	var req verifyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		return req, common.BadRequest("Invalid request body", err)
	}
	req.OrderID = strings.TrimSpace(req.OrderID)
	req.PaymentID = strings.TrimSpace(req.PaymentID)
	req.Signature = strings.TrimSpace(req.Signature)
	req.UserID = strings.TrimSpace(req.UserID)

	v := h.Validator
	if v == nil {
		v = validator.New(validator.WithRequiredStructEnabled())
	}
	if err := v.Struct(req); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			for _, fe := range verrs {
				if fe.Tag() == "required" {
					return req, common.BadRequest("Missing required payment details", err)
				}
			}
		}
		return req, common.BadRequest("Invalid request", err)
	}
	return req, nil
}
