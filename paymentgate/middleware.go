// Package paymentgate is the per-route x402 payment middleware (spec.md
// section 4.11, component C14), grounded on the example pack's x402
// gateway middleware: 402 challenge issuance, verify-then-settle
// sequencing, and idempotent record-then-settle.
package paymentgate

import (
	"encoding/base64"
	"encoding/json"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/proofport/gateway/config"
	"github.com/proofport/gateway/models/gateway"
	"github.com/proofport/gateway/service/payment"
)

// challengeHeader carries the machine-readable 402 body (spec.md
// section 6).
const challengeHeader = "Payment-Required"

// paymentHeader is the request header carrying the signed payload.
const paymentHeader = "X-PAYMENT"
const legacyPaymentHeader = "PAYMENT-SIGNATURE"

// Gate issues 402 challenges and records verified payments.
type Gate struct {
	mode        config.PaymentMode
	payTo       string
	network     string
	asset       string
	domainName  string
	domainVer   string
	price       string
	facilitator *payment.Facilitator
	records     *payment.Store
	log         zerolog.Logger
}

// New builds a Gate. asset is the USDC contract address for the
// configured network.
func New(mode config.PaymentMode, payTo, network, asset, domainName, domainVer, price string, facilitator *payment.Facilitator, records *payment.Store, log zerolog.Logger) *Gate {
	return &Gate{
		mode: mode, payTo: payTo, network: network, asset: asset,
		domainName: domainName, domainVer: domainVer, price: price,
		facilitator: facilitator, records: records,
		log: log.With().Str("component", "payment-gate").Logger(),
	}
}

func (g *Gate) challenge(resourceURL string) gateway.PaymentChallenge {
	return gateway.PaymentChallenge{
		Scheme:            "exact",
		Network:           g.network,
		Amount:            g.price,
		Asset:             g.asset,
		PayTo:             g.payTo,
		MaxTimeoutSeconds: 60,
		Extra:             gateway.PaymentChallengeExtra{Name: g.domainName, Version: g.domainVer},
		Resource: gateway.PaymentChallengeResource{
			URL:         resourceURL,
			Description: "proof generation",
			MimeType:    "application/json",
		},
	}
}

// Require is an echo.MiddlewareFunc gating the wrapped handler behind
// a verified payment. The settled PaymentRecord id and transaction hash
// are stashed on the echo.Context ("paymentRecordId", "paymentTxHash")
// for the handler to bind to the task/session it creates.
func (g *Gate) Require() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if g.mode == config.PaymentDisabled {
				return next(c)
			}

			raw := c.Request().Header.Get(paymentHeader)
			if raw == "" {
				raw = c.Request().Header.Get(legacyPaymentHeader)
			}
			if raw == "" {
				return g.send402(c)
			}

			payload, err := decodePayload(raw)
			if err != nil {
				return g.send402(c)
			}

			requirements := g.challenge(c.Request().URL.String())
			ctx := c.Request().Context()

			if _, err := g.facilitator.Verify(ctx, payload, requirements); err != nil {
				g.log.Warn().Err(err).Msg("payment verification failed")
				return g.send402(c)
			}

			settle, err := g.facilitator.Settle(ctx, payload, requirements)
			if err != nil {
				g.log.Warn().Err(err).Msg("payment settlement failed")
				return g.send402(c)
			}

			record := gateway.PaymentRecord{
				ID:             payload.Payload.Authorization.Nonce,
				PayerAddress:   payload.Payload.Authorization.From,
				Amount:         payload.Payload.Authorization.Value,
				Network:        g.network,
				Scheme:         requirements.Scheme,
				Status:         gateway.PayRecordPending,
				FacilitatorRef: settle.Transaction,
			}
			if err := g.records.Create(ctx, record); err != nil {
				g.log.Error().Err(err).Msg("could not record payment")
			}

			c.Set("paymentRecordId", record.ID)
			c.Set("paymentTxHash", settle.Transaction)
			return next(c)
		}
	}
}

// IsFreeSkill reports whether skillName bypasses the payment gate
// (spec.md section 4.11's free-skill allow-list).
func IsFreeSkill(skillName string) bool {
	switch skillName {
	case "get_supported_circuits", "verify_proof", "check_status", "request_signing", "request_payment":
		return true
	default:
		return false
	}
}

func (g *Gate) send402(c echo.Context) error {
	challenge := g.challenge(c.Request().URL.String())
	encoded, err := encodeChallenge(challenge)
	if err == nil {
		c.Response().Header().Set(challengeHeader, encoded)
	}
	return c.JSON(402, challenge)
}

func encodeChallenge(challenge gateway.PaymentChallenge) (string, error) {
	raw, err := json.Marshal(challenge)
	if err != nil {
		return "", err
	}
	return base64.StdEncoding.EncodeToString(raw), nil
}

func decodePayload(raw string) (gateway.PaymentPayload, error) {
	data, err := base64.StdEncoding.DecodeString(raw)
	if err != nil {
		return gateway.PaymentPayload{}, err
	}
	var payload gateway.PaymentPayload
	if err := json.Unmarshal(data, &payload); err != nil {
		return gateway.PaymentPayload{}, err
	}
	return payload, nil
}
