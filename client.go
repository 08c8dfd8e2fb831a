// Package arianpay is a client for the ArianPay internet payment gateway. It
// shapes typed requests onto the gateway's JSON wire contract, attaches a
// cached bearer token, and maps response envelopes to payloads or typed
// errors. The client keeps no transaction state; callers track payments with
// the invoice/urlId pair the purchase-family operations return.
package arianpay

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/arianpay/arianpay-go/auth"
	"github.com/sony/gobreaker"
	"golang.org/x/exp/slog"
)

const requestTimeout = 15 * time.Second

const (
	pathPurchase       = "/api/payment/purchase"
	pathPreTransaction = "/api/payment/pre-transaction"
	pathConfirm        = "/api/payment/confirm-transactions"
	pathVerifyTx       = "/api/payment/verify-transactions"
	pathVerifyPayment  = "/api/payment/verify-payment"
	pathReverse        = "/api/payment/reverse-transactions"
)

// Client issues gateway operations. Safe for concurrent use; the only shared
// mutable state is the token cache, which serializes its own refreshes.
type Client struct {
	cfg        Config
	httpClient *http.Client
	tokens     *auth.Source
	store      auth.Store
	breaker    *gobreaker.CircuitBreaker
	logger     *slog.Logger
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the HTTP client used for every call, including the
// token exchange.
func WithHTTPClient(c *http.Client) Option {
	return func(cl *Client) { cl.httpClient = c }
}

// WithLogger enables debug logging of operations and gateway result codes.
// The client is silent by default.
func WithLogger(l *slog.Logger) Option {
	return func(cl *Client) { cl.logger = l }
}

// WithTokenStore replaces the in-memory token cache backend.
func WithTokenStore(st auth.Store) Option {
	return func(cl *Client) { cl.store = st }
}

// WithBreaker wraps the operation calls in a circuit breaker. The token
// exchange is not wrapped; a tripped breaker must not block the refresh that
// recovery needs. An open breaker surfaces as a *TransportError.
func WithBreaker(settings gobreaker.Settings) Option {
	return func(cl *Client) { cl.breaker = gobreaker.NewCircuitBreaker(settings) }
}

func NewClient(cfg Config, opts ...Option) *Client {
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")

	c := &Client{
		cfg:        cfg,
		httpClient: &http.Client{},
	}
	for _, opt := range opts {
		opt(c)
	}

	authOpts := []auth.Option{auth.WithHTTPClient(c.httpClient)}
	if c.store != nil {
		authOpts = append(authOpts, auth.WithStore(c.store))
	}
	if c.logger != nil {
		authOpts = append(authOpts, auth.WithLogger(c.logger))
	}
	c.tokens = auth.NewSource(auth.Config{
		BaseURL:  cfg.BaseURL,
		Username: cfg.Username,
		Password: cfg.Password,
	}, authOpts...)

	return c
}

// Purchase starts a standard payment and returns the redirect URL for the
// payer together with the urlId used by confirm/verify/reverse.
func (c *Client) Purchase(ctx context.Context, req PurchaseRequest) (*PaymentResult, error) {
	body := req.payload(c.cfg.TerminalNumber, servicePurchase, "PURCHASE")

	var out PaymentResult
	if _, err := c.call(ctx, "purchase", pathPurchase, body, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// MultiAccountPurchase starts a payment whose settlement is split across
// several SHEBA accounts.
func (c *Client) MultiAccountPurchase(ctx context.Context, req MultiAccountPurchaseRequest) (*PaymentResult, error) {
	body := req.PurchaseRequest.payload(c.cfg.TerminalNumber, serviceMultiAccPurchase, "MULTIACCPURCHASE")
	body.SharedValue = req.SharedValue
	body.Sheba = req.Sheba

	var out PaymentResult
	if _, err := c.call(ctx, "multi-account purchase", pathPurchase, body, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// PayBill starts a utility bill payment.
func (c *Client) PayBill(ctx context.Context, req BillPaymentRequest) (*PaymentResult, error) {
	body := req.PurchaseRequest.payload(c.cfg.TerminalNumber, serviceBill, "BILL")
	body.BillID = req.BillID
	body.PaymentID = req.PaymentID

	var out PaymentResult
	if _, err := c.call(ctx, "bill payment", pathPreTransaction, body, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// DirectCharge starts a direct mobile top-up for the request's operator.
func (c *Client) DirectCharge(ctx context.Context, req ChargeRequest) (*PaymentResult, error) {
	if !req.Operator.Valid() {
		return nil, fmt.Errorf("direct charge: %q: %w", req.Operator, ErrInvalidOperator)
	}

	body := req.PurchaseRequest.payload(c.cfg.TerminalNumber, directChargeCodes[req.Operator], "CHARGE")
	body.Operator = string(req.Operator)

	var out PaymentResult
	if _, err := c.call(ctx, "direct charge", pathPreTransaction, body, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// PinCharge starts a purchase of charge PINs.
func (c *Client) PinCharge(ctx context.Context, req PinChargeRequest) (*PaymentResult, error) {
	if !req.Operator.Valid() {
		return nil, fmt.Errorf("pin charge: %q: %w", req.Operator, ErrInvalidOperator)
	}

	body := req.PurchaseRequest.payload(c.cfg.TerminalNumber, pinChargeCodes[req.Operator], "PINCHARGE")
	body.Operator = string(req.Operator)
	body.Count = req.Count

	var out PaymentResult
	if _, err := c.call(ctx, "pin charge", pathPreTransaction, body, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// InternetCharge starts a purchase of an operator data package.
func (c *Client) InternetCharge(ctx context.Context, req InternetChargeRequest) (*PaymentResult, error) {
	if !req.Operator.Valid() {
		return nil, fmt.Errorf("internet charge: %q: %w", req.Operator, ErrInvalidOperator)
	}

	body := req.PurchaseRequest.payload(c.cfg.TerminalNumber, internetCodes[req.Operator], "INTERNET")
	body.Operator = string(req.Operator)
	body.ProductCode = req.ProductCode

	var out PaymentResult
	if _, err := c.call(ctx, "internet charge", pathPreTransaction, body, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Confirm settles a previously authorized payment and returns the gateway's
// detailed settlement record.
func (c *Client) Confirm(ctx context.Context, invoice, urlID string) (*ConfirmResult, error) {
	body := payload{TerminalNumber: c.cfg.TerminalNumber, Invoice: invoice, URLID: urlID}

	var out ConfirmResult
	if _, err := c.call(ctx, "confirm", pathConfirm, body, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// VerifyTransaction checks a payment's state and returns the gateway envelope
// as-is. VerifyPayment is the richer variant; the gateway exposes both and
// neither supersedes the other.
func (c *Client) VerifyTransaction(ctx context.Context, invoice, urlID string) (*Envelope, error) {
	body := payload{TerminalNumber: c.cfg.TerminalNumber, Invoice: invoice, URLID: urlID}
	return c.call(ctx, "verify transaction", pathVerifyTx, body, nil)
}

// VerifyPayment checks a payment's state via the detailed verification
// endpoint and returns the gateway envelope as-is.
func (c *Client) VerifyPayment(ctx context.Context, invoice, urlID string) (*Envelope, error) {
	body := payload{TerminalNumber: c.cfg.TerminalNumber, Invoice: invoice, URLID: urlID}
	return c.call(ctx, "verify payment", pathVerifyPayment, body, nil)
}

// Reverse returns an unconfirmed payment's funds to the payer.
func (c *Client) Reverse(ctx context.Context, invoice, urlID string) (*Envelope, error) {
	body := payload{TerminalNumber: c.cfg.TerminalNumber, Invoice: invoice, URLID: urlID}
	return c.call(ctx, "reverse", pathReverse, body, nil)
}

// call is the one shape behind every operation: token, POST, envelope,
// payload or error. When out is nil the caller gets the bare envelope.
func (c *Client) call(ctx context.Context, op, path string, body payload, out interface{}) (*Envelope, error) {
	token, err := c.tokens.Token(ctx)
	if err != nil {
		return nil, err
	}

	raw, err := json.Marshal(body)
	if err != nil {
		return nil, &TransportError{Operation: op, Err: fmt.Errorf("encoding request: %w", err)}
	}

	env, err := c.post(ctx, path, token, raw)
	if err != nil {
		return nil, &TransportError{Operation: op, Err: err}
	}

	if c.logger != nil {
		c.logger.Debug("gateway call",
			slog.String("operation", op),
			slog.Int("result_code", env.ResultCode))
	}

	if !env.OK() {
		return nil, &GatewayError{Operation: op, Code: env.ResultCode, Message: env.ResultMsg, Envelope: env}
	}

	if out != nil && len(env.Data) > 0 {
		if err := json.Unmarshal(env.Data, out); err != nil {
			return nil, &TransportError{Operation: op, Err: fmt.Errorf("decoding data: %w", err)}
		}
	}

	return env, nil
}

func (c *Client) post(ctx context.Context, path, token string, body []byte) (*Envelope, error) {
	do := func() (*Envelope, error) {
		ctx, cancel := context.WithTimeout(ctx, requestTimeout)
		defer cancel()

		req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.BaseURL+path, bytes.NewReader(body))
		if err != nil {
			return nil, fmt.Errorf("building request: %w", err)
		}
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("Authorization", "Bearer "+token)

		resp, err := c.httpClient.Do(req)
		if err != nil {
			return nil, err
		}
		defer resp.Body.Close()

		raw, err := io.ReadAll(resp.Body)
		if err != nil {
			return nil, fmt.Errorf("reading response: %w", err)
		}

		env := &Envelope{}
		if err := json.Unmarshal(raw, env); err != nil {
			return nil, fmt.Errorf("status %d: decoding envelope: %w", resp.StatusCode, err)
		}
		return env, nil
	}

	if c.breaker == nil {
		return do()
	}

	v, err := c.breaker.Execute(func() (interface{}, error) { return do() })
	if err != nil {
		return nil, err
	}
	return v.(*Envelope), nil
}
