package arianpay_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/sony/gobreaker"
	"github.com/stretchr/testify/require"

	arianpay "github.com/arianpay/arianpay-go"
	"github.com/arianpay/arianpay-go/auth"
	"github.com/arianpay/arianpay-go/internal/gatewaytest"
)

func newTestClient(t *testing.T, opts ...arianpay.Option) (*arianpay.Client, *gatewaytest.Server) {
	t.Helper()

	gw := gatewaytest.New(nil)
	srv := httptest.NewServer(gw.Router())
	t.Cleanup(srv.Close)

	client := arianpay.NewClient(arianpay.Config{
		BaseURL:        srv.URL,
		TerminalNumber: "T-001",
		Username:       "merchant",
		Password:       "secret",
	}, opts...)

	return client, gw
}

func purchaseRequest() arianpay.PurchaseRequest {
	return arianpay.PurchaseRequest{
		Invoice:     "INV-001",
		InvoiceDate: "2024-01-15",
		Amount:      100000,
		CallbackURL: "https://merchant.example/callback",
		Mobile:      "09120000000",
	}
}

func TestPurchase_RoundTrip(t *testing.T) {
	client, gw := newTestClient(t)

	gw.Stub("/api/payment/purchase", gatewaytest.Envelope{
		Data: map[string]interface{}{"urlId": "U1", "url": "https://gw/pay/U1"},
	})

	result, err := client.Purchase(context.Background(), purchaseRequest())
	require.NoError(t, err)
	require.Equal(t, &arianpay.PaymentResult{URLID: "U1", URL: "https://gw/pay/U1"}, result)

	calls := gw.Requests("/api/payment/purchase")
	require.Len(t, calls, 1)
	require.NotEmpty(t, calls[0].Token, "call must carry a bearer token")

	body := calls[0].Body
	require.Equal(t, "T-001", body["terminalNumber"])
	require.EqualValues(t, 8, body["serviceCode"])
	require.Equal(t, "PURCHASE", body["serviceType"])
	require.Equal(t, "INV-001", body["invoice"])
	require.EqualValues(t, 100000, body["amount"])
	require.Equal(t, "https://merchant.example/callback", body["callbackUrl"])
}

func TestMultiAccountPurchase_WireFields(t *testing.T) {
	client, gw := newTestClient(t)

	_, err := client.MultiAccountPurchase(context.Background(), arianpay.MultiAccountPurchaseRequest{
		PurchaseRequest: purchaseRequest(),
		SharedValue:     []int64{60000, 40000},
		Sheba:           []string{"IR000000000000000000000001", "IR000000000000000000000002"},
	})
	require.NoError(t, err)

	calls := gw.Requests("/api/payment/purchase")
	require.Len(t, calls, 1)

	body := calls[0].Body
	require.EqualValues(t, 9, body["serviceCode"])
	require.Equal(t, "MULTIACCPURCHASE", body["serviceType"])
	require.Len(t, body["sharedValue"], 2)
	require.Len(t, body["sheba"], 2)
}

func TestPayBill_WireFields(t *testing.T) {
	client, gw := newTestClient(t)

	_, err := client.PayBill(context.Background(), arianpay.BillPaymentRequest{
		PurchaseRequest: purchaseRequest(),
		BillID:          "111111",
		PaymentID:       "222222",
	})
	require.NoError(t, err)

	calls := gw.Requests("/api/payment/pre-transaction")
	require.Len(t, calls, 1)

	body := calls[0].Body
	require.EqualValues(t, 4, body["serviceCode"])
	require.Equal(t, "BILL", body["serviceType"])
	require.Equal(t, "111111", body["billId"])
	require.Equal(t, "222222", body["paymentId"])
}

func TestCharges_ServiceCodesPerOperator(t *testing.T) {
	tests := []struct {
		name        string
		operator    arianpay.Operator
		call        func(*arianpay.Client, context.Context, arianpay.Operator) error
		serviceCode int
		serviceType string
	}{
		{"direct MCI", arianpay.MCI, directCharge, 1, "CHARGE"},
		{"direct MTN", arianpay.MTN, directCharge, 2, "CHARGE"},
		{"direct RTL", arianpay.RTL, directCharge, 3, "CHARGE"},
		{"pin MCI", arianpay.MCI, pinCharge, 5, "PINCHARGE"},
		{"pin MTN", arianpay.MTN, pinCharge, 6, "PINCHARGE"},
		{"pin RTL", arianpay.RTL, pinCharge, 7, "PINCHARGE"},
		{"internet MCI", arianpay.MCI, internetCharge, 1, "INTERNET"},
		{"internet MTN", arianpay.MTN, internetCharge, 2, "INTERNET"},
		{"internet RTL", arianpay.RTL, internetCharge, 3, "INTERNET"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client, gw := newTestClient(t)

			require.NoError(t, tt.call(client, context.Background(), tt.operator))

			calls := gw.Requests("/api/payment/pre-transaction")
			require.Len(t, calls, 1)

			body := calls[0].Body
			require.EqualValues(t, tt.serviceCode, body["serviceCode"])
			require.Equal(t, tt.serviceType, body["serviceType"])
			require.Equal(t, string(tt.operator), body["operator"])
		})
	}
}

func directCharge(c *arianpay.Client, ctx context.Context, op arianpay.Operator) error {
	_, err := c.DirectCharge(ctx, arianpay.ChargeRequest{PurchaseRequest: purchaseRequest(), Operator: op})
	return err
}

func pinCharge(c *arianpay.Client, ctx context.Context, op arianpay.Operator) error {
	_, err := c.PinCharge(ctx, arianpay.PinChargeRequest{PurchaseRequest: purchaseRequest(), Operator: op, Count: 2})
	return err
}

func internetCharge(c *arianpay.Client, ctx context.Context, op arianpay.Operator) error {
	_, err := c.InternetCharge(ctx, arianpay.InternetChargeRequest{PurchaseRequest: purchaseRequest(), Operator: op, ProductCode: "D-100"})
	return err
}

func TestCharges_RejectUnknownOperatorBeforeDispatch(t *testing.T) {
	client, gw := newTestClient(t)
	ctx := context.Background()

	for _, call := range []func(*arianpay.Client, context.Context, arianpay.Operator) error{
		directCharge, pinCharge, internetCharge,
	} {
		err := call(client, ctx, arianpay.Operator("VODAFONE"))
		require.ErrorIs(t, err, arianpay.ErrInvalidOperator)
	}

	require.Zero(t, gw.AuthRequests(), "validation must precede any network call")
	require.Empty(t, gw.Requests("/api/payment/pre-transaction"))
}

func TestPinCharge_WireFields(t *testing.T) {
	client, gw := newTestClient(t)

	_, err := client.PinCharge(context.Background(), arianpay.PinChargeRequest{
		PurchaseRequest: purchaseRequest(),
		Operator:        arianpay.MTN,
		Count:           3,
	})
	require.NoError(t, err)

	body := gw.Requests("/api/payment/pre-transaction")[0].Body
	require.EqualValues(t, 3, body["count"])
}

func TestInternetCharge_WireFields(t *testing.T) {
	client, gw := newTestClient(t)

	_, err := client.InternetCharge(context.Background(), arianpay.InternetChargeRequest{
		PurchaseRequest: purchaseRequest(),
		Operator:        arianpay.RTL,
		ProductCode:     "D-100",
	})
	require.NoError(t, err)

	body := gw.Requests("/api/payment/pre-transaction")[0].Body
	require.Equal(t, "D-100", body["productCode"])
}

func TestConfirm_ReturnsDataUnchanged(t *testing.T) {
	client, gw := newTestClient(t)

	gw.Stub("/api/payment/confirm-transactions", gatewaytest.Envelope{
		Data: map[string]interface{}{
			"invoice":          "INV-001",
			"referenceNumber":  "R1",
			"trackId":          "T1",
			"maskedCardNumber": "6219...1234",
			"hashedCardNumber": "h",
			"requestDate":      "2024-01-15",
			"amount":           100000,
		},
	})

	result, err := client.Confirm(context.Background(), "INV-001", "U1")
	require.NoError(t, err)
	require.Equal(t, &arianpay.ConfirmResult{
		Invoice:          "INV-001",
		ReferenceNumber:  "R1",
		TrackID:          "T1",
		MaskedCardNumber: "6219...1234",
		HashedCardNumber: "h",
		RequestDate:      "2024-01-15",
		Amount:           100000,
	}, result)

	body := gw.Requests("/api/payment/confirm-transactions")[0].Body
	require.Equal(t, "INV-001", body["invoice"])
	require.Equal(t, "U1", body["urlId"])
}

func TestVerifyAndReverse_ReturnEnvelope(t *testing.T) {
	client, gw := newTestClient(t)
	ctx := context.Background()

	gw.Stub("/api/payment/verify-transactions", gatewaytest.Envelope{ResultMsg: "verified"})
	env, err := client.VerifyTransaction(ctx, "INV-001", "U1")
	require.NoError(t, err)
	require.Equal(t, 0, env.ResultCode)
	require.Equal(t, "verified", env.ResultMsg)

	gw.Stub("/api/payment/verify-payment", gatewaytest.Envelope{
		ResultMsg: "verified",
		Data:      map[string]interface{}{"invoice": "INV-001", "amount": 100000},
	})
	env, err = client.VerifyPayment(ctx, "INV-001", "U1")
	require.NoError(t, err)
	require.NotEmpty(t, env.Data)

	gw.Stub("/api/payment/reverse-transactions", gatewaytest.Envelope{ResultMsg: "reversed"})
	env, err = client.Reverse(ctx, "INV-001", "U1")
	require.NoError(t, err)
	require.Equal(t, "reversed", env.ResultMsg)
}

func TestGatewayError_CarriesEnvelope(t *testing.T) {
	client, gw := newTestClient(t)

	gw.Stub("/api/payment/purchase", gatewaytest.Envelope{ResultCode: 2, ResultMsg: "insufficient funds"})

	_, err := client.Purchase(context.Background(), purchaseRequest())

	var gwErr *arianpay.GatewayError
	require.ErrorAs(t, err, &gwErr)
	require.Equal(t, "purchase", gwErr.Operation)
	require.Equal(t, 2, gwErr.Code)
	require.Equal(t, "insufficient funds", gwErr.Message)
	require.NotNil(t, gwErr.Envelope)
	require.Equal(t, 2, gwErr.Envelope.ResultCode)
}

func TestTokenReusedAcrossOperations(t *testing.T) {
	client, gw := newTestClient(t)
	gw.SetTokenTTL(3600)
	ctx := context.Background()

	_, err := client.Purchase(ctx, purchaseRequest())
	require.NoError(t, err)
	_, err = client.VerifyTransaction(ctx, "INV-001", "U1")
	require.NoError(t, err)
	_, err = client.Reverse(ctx, "INV-001", "U1")
	require.NoError(t, err)

	require.Equal(t, 1, gw.AuthRequests())

	purchase := gw.Requests("/api/payment/purchase")[0]
	verify := gw.Requests("/api/payment/verify-transactions")[0]
	require.Equal(t, purchase.Token, verify.Token)
}

func TestAuthenticationFailureSurfaces(t *testing.T) {
	client, gw := newTestClient(t)
	gw.FailAuth(12, "bad credentials")

	_, err := client.Purchase(context.Background(), purchaseRequest())

	var authErr *auth.Error
	require.ErrorAs(t, err, &authErr)
	require.Equal(t, 12, authErr.ResultCode)
	require.Empty(t, gw.Requests("/api/payment/purchase"), "no operation call after failed auth")
}

// slowGateway answers auth immediately and stalls the operation endpoints.
func slowGateway(stall time.Duration) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/token/getToken", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]interface{}{"resultCode": 0, "token": "tok", "expiry": 3600})
	})
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(stall):
			w.Header().Set("Content-Type", "application/json")
			json.NewEncoder(w).Encode(map[string]interface{}{"resultCode": 0, "resultMsg": "ok"})
		}
	})
	return mux
}

func TestTimeoutAndCancellationAreDistinct(t *testing.T) {
	srv := httptest.NewServer(slowGateway(5 * time.Second))
	defer srv.Close()

	client := arianpay.NewClient(arianpay.Config{
		BaseURL: srv.URL, TerminalNumber: "T-001", Username: "u", Password: "p",
	})

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err := client.VerifyTransaction(ctx, "INV-001", "U1")

	var transportErr *arianpay.TransportError
	require.ErrorAs(t, err, &transportErr)
	require.True(t, arianpay.IsTimeout(err))
	require.False(t, arianpay.IsCanceled(err))

	ctx2, cancel2 := context.WithCancel(context.Background())
	go func() {
		time.Sleep(50 * time.Millisecond)
		cancel2()
	}()
	_, err = client.VerifyTransaction(ctx2, "INV-001", "U1")

	require.ErrorAs(t, err, &transportErr)
	require.True(t, arianpay.IsCanceled(err))
	require.False(t, arianpay.IsTimeout(err))
}

func TestWithBreaker_OpensAfterConsecutiveFailures(t *testing.T) {
	var opHits int32
	mux := http.NewServeMux()
	mux.HandleFunc("/token/getToken", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]interface{}{"resultCode": 0, "token": "tok", "expiry": 3600})
	})
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&opHits, 1)
		w.WriteHeader(http.StatusBadGateway)
		w.Write([]byte("upstream exploded")) // unparsable body
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	client := arianpay.NewClient(arianpay.Config{
		BaseURL: srv.URL, TerminalNumber: "T-001", Username: "u", Password: "p",
	}, arianpay.WithBreaker(gobreaker.Settings{
		Name: "gateway",
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 1
		},
	}))

	ctx := context.Background()

	_, err := client.Purchase(ctx, purchaseRequest())
	var transportErr *arianpay.TransportError
	require.ErrorAs(t, err, &transportErr)
	require.EqualValues(t, 1, atomic.LoadInt32(&opHits))

	// Breaker is open: the second call fails without reaching the gateway.
	_, err = client.Purchase(ctx, purchaseRequest())
	require.ErrorAs(t, err, &transportErr)
	require.True(t, errors.Is(transportErr.Err, gobreaker.ErrOpenState))
	require.EqualValues(t, 1, atomic.LoadInt32(&opHits))
}

func TestClient_SharedTokenStore(t *testing.T) {
	gw := gatewaytest.New(nil)
	srv := httptest.NewServer(gw.Router())
	defer srv.Close()
	gw.SetTokenTTL(3600)

	cfg := arianpay.Config{BaseURL: srv.URL, TerminalNumber: "T-001", Username: "u", Password: "p"}
	store := auth.NewMemoryStore()

	first := arianpay.NewClient(cfg, arianpay.WithTokenStore(store))
	second := arianpay.NewClient(cfg, arianpay.WithTokenStore(store))

	ctx := context.Background()
	_, err := first.Purchase(ctx, purchaseRequest())
	require.NoError(t, err)
	_, err = second.VerifyTransaction(ctx, "INV-001", "U1")
	require.NoError(t, err)

	require.Equal(t, 1, gw.AuthRequests(), "clients sharing a store share the token")
}
