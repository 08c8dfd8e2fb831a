package arianpay

import "encoding/json"

// Envelope is the uniform gateway response shape. ResultCode zero is the only
// success discriminator; ResultMsg is informational and never inspected by
// the client.
type Envelope struct {
	ResultCode int             `json:"resultCode"`
	ResultMsg  string          `json:"resultMsg"`
	Data       json.RawMessage `json:"data,omitempty"`
}

// OK reports whether the envelope signals success.
func (e *Envelope) OK() bool {
	return e.ResultCode == 0
}

// PaymentResult is the payload of the purchase-family operations. URLID pairs
// with the invoice for the later confirm/verify/reverse calls; URL is where
// the payer's browser should be redirected.
type PaymentResult struct {
	URLID string `json:"urlId"`
	URL   string `json:"url"`
}

// ConfirmResult is the detailed payload returned by Confirm.
type ConfirmResult struct {
	Invoice          string `json:"invoice"`
	ReferenceNumber  string `json:"referenceNumber"`
	TrackID          string `json:"trackId"`
	MaskedCardNumber string `json:"maskedCardNumber"`
	HashedCardNumber string `json:"hashedCardNumber"`
	RequestDate      string `json:"requestDate"`
	Amount           int64  `json:"amount"`
}
