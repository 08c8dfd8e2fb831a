package arianpay

// PurchaseRequest carries the caller fields shared by every purchase-family
// operation. Amounts are in Rials.
type PurchaseRequest struct {
	Invoice     string
	InvoiceDate string
	Amount      int64
	CallbackURL string
	Mobile      string
	Description string
	PayerName   string
}

// MultiAccountPurchaseRequest splits a purchase across several accounts.
// SharedValue[i] is the portion settled into Sheba[i]; the gateway validates
// the split, the client passes it through untouched.
type MultiAccountPurchaseRequest struct {
	PurchaseRequest
	SharedValue []int64
	Sheba       []string
}

// BillPaymentRequest pays a utility bill identified by the billId/paymentId
// pair printed on it.
type BillPaymentRequest struct {
	PurchaseRequest
	BillID    string
	PaymentID string
}

// ChargeRequest tops up a mobile number directly.
type ChargeRequest struct {
	PurchaseRequest
	Operator Operator
}

// PinChargeRequest buys Count charge PINs for the given operator.
type PinChargeRequest struct {
	PurchaseRequest
	Operator Operator
	Count    int
}

// InternetChargeRequest buys an operator data package identified by
// ProductCode.
type InternetChargeRequest struct {
	PurchaseRequest
	Operator    Operator
	ProductCode string
}

// payload is the single wire shape for all operation bodies. Fixed constants
// (terminal, service code, service type) are merged with caller fields;
// omitempty keeps each operation's body down to the fields it uses.
type payload struct {
	TerminalNumber string   `json:"terminalNumber"`
	ServiceCode    int      `json:"serviceCode,omitempty"`
	ServiceType    string   `json:"serviceType,omitempty"`
	Invoice        string   `json:"invoice,omitempty"`
	InvoiceDate    string   `json:"invoiceDate,omitempty"`
	Amount         int64    `json:"amount,omitempty"`
	CallbackURL    string   `json:"callbackUrl,omitempty"`
	Mobile         string   `json:"mobile,omitempty"`
	Description    string   `json:"description,omitempty"`
	PayerName      string   `json:"payerName,omitempty"`
	SharedValue    []int64  `json:"sharedValue,omitempty"`
	Sheba          []string `json:"sheba,omitempty"`
	BillID         string   `json:"billId,omitempty"`
	PaymentID      string   `json:"paymentId,omitempty"`
	Operator       string   `json:"operator,omitempty"`
	Count          int      `json:"count,omitempty"`
	ProductCode    string   `json:"productCode,omitempty"`
	URLID          string   `json:"urlId,omitempty"`
}

func (r PurchaseRequest) payload(terminal string, code int, typ string) payload {
	return payload{
		TerminalNumber: terminal,
		ServiceCode:    code,
		ServiceType:    typ,
		Invoice:        r.Invoice,
		InvoiceDate:    r.InvoiceDate,
		Amount:         r.Amount,
		CallbackURL:    r.CallbackURL,
		Mobile:         r.Mobile,
		Description:    r.Description,
		PayerName:      r.PayerName,
	}
}
