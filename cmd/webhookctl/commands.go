package main

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/spf13/cobra"

	"github.com/noah-isme/paywall-webhook/internal/payment"
)

func webhookSecret(cmd *cobra.Command) (string, error) {
	secret, _ := cmd.Flags().GetString("secret")
	if secret == "" {
		return "", errors.New("webhook secret is required (--secret or RAZORPAY_WEBHOOK_SECRET)")
	}
	return secret, nil
}

func signCmd() *cobra.Command {
	var opts sampleOptions
	cmd := &cobra.Command{
		Use:   "sign",
		Short: "Print a sample payload and its X-Razorpay-Signature",
		RunE: func(cmd *cobra.Command, args []string) error {
			secret, err := webhookSecret(cmd)
			if err != nil {
				return err
			}
			body, err := samplePayload(opts, time.Now())
			if err != nil {
				return fmt.Errorf("failed to build payload: %w", err)
			}
			sig, err := payment.Razorpay{WebhookSecret: secret}.SignWebhook(body)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "%s: %s\n", payment.SignatureHeader, sig)
			fmt.Fprintf(out, "%s\n", body)
			return nil
		},
	}
	addSampleFlags(cmd, &opts)
	return cmd
}

func sendCmd() *cobra.Command {
	var (
		opts    sampleOptions
		url     string
		tamper  bool
		timeout time.Duration
	)
	cmd := &cobra.Command{
		Use:   "send",
		Short: "POST a signed sample payload to a running server",
		RunE: func(cmd *cobra.Command, args []string) error {
			secret, err := webhookSecret(cmd)
			if err != nil {
				return err
			}
			body, err := samplePayload(opts, time.Now())
			if err != nil {
				return fmt.Errorf("failed to build payload: %w", err)
			}
			sig, err := payment.Razorpay{WebhookSecret: secret}.SignWebhook(body)
			if err != nil {
				return err
			}
			if tamper {
				sig = flipFirst(sig)
			}

			req, err := http.NewRequestWithContext(cmd.Context(), http.MethodPost, url, bytes.NewReader(body))
			if err != nil {
				return err
			}
			req.Header.Set("Content-Type", "application/json")
			req.Header.Set(payment.SignatureHeader, sig)

			resp, err := (&http.Client{Timeout: timeout}).Do(req)
			if err != nil {
				return fmt.Errorf("failed to send webhook: %w", err)
			}
			defer func() { _ = resp.Body.Close() }()
			respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Status:   %d\n", resp.StatusCode)
			fmt.Fprintf(out, "Response: %s\n", bytes.TrimSpace(respBody))
			if resp.StatusCode >= 300 {
				return fmt.Errorf("server answered %d", resp.StatusCode)
			}
			return nil
		},
	}
	addSampleFlags(cmd, &opts)
	cmd.Flags().StringVar(&url, "url", "http://localhost:3000/webhook", "webhook endpoint")
	cmd.Flags().BoolVar(&tamper, "tamper", false, "corrupt the signature to exercise the 403 path")
	cmd.Flags().DurationVar(&timeout, "timeout", 10*time.Second, "request timeout")
	return cmd
}

func verifySignCmd() *cobra.Command {
	var keySecret, orderID, paymentID, signature string
	cmd := &cobra.Command{
		Use:   "verify-sign",
		Short: "Compute or check a checkout signature for order_id|payment_id",
		RunE: func(cmd *cobra.Command, args []string) error {
			if keySecret == "" {
				return errors.New("key secret is required (--key-secret or RAZORPAY_KEY_SECRET)")
			}
			if orderID == "" || paymentID == "" {
				return errors.New("--order-id and --payment-id are required")
			}
			auth := payment.Razorpay{KeySecret: keySecret}.Checkout()
			msg := payment.OrderPaymentMessage(orderID, paymentID)
			out := cmd.OutOrStdout()
			if signature == "" {
				sig, err := auth.Sign(msg)
				if err != nil {
					return err
				}
				fmt.Fprintln(out, sig)
				return nil
			}
			ok, err := auth.Verify(msg, signature)
			if err != nil {
				return err
			}
			if !ok {
				return errors.New("signature does not match")
			}
			fmt.Fprintln(out, "signature valid")
			return nil
		},
	}
	cmd.Flags().StringVar(&keySecret, "key-secret", envDefault("RAZORPAY_KEY_SECRET"), "API key secret (defaults to RAZORPAY_KEY_SECRET)")
	cmd.Flags().StringVar(&orderID, "order-id", "", "razorpay_order_id")
	cmd.Flags().StringVar(&paymentID, "payment-id", "", "razorpay_payment_id")
	cmd.Flags().StringVar(&signature, "signature", "", "signature to check; when empty the expected one is printed")
	return cmd
}

func flipFirst(sig string) string {
	if sig == "" {
		return "0"
	}
	if sig[0] == '0' {
		return "1" + sig[1:]
	}
	return "0" + sig[1:]
}
