package arianpay

// Config is the construction-time configuration for a Client. All fields are
// read-only after NewClient; injecting them from flags, env or files is the
// embedding application's concern.
type Config struct {
	// BaseURL is the gateway root, e.g. "https://pay.arianpay.ir". Trailing
	// slashes are trimmed.
	BaseURL string
	// TerminalNumber is the merchant terminal issued by the gateway operator.
	// It is merged into every operation payload.
	TerminalNumber string
	// Username and Password are the credentials exchanged for bearer tokens.
	Username string
	Password string
}
