package arianpay

// Operator identifies a mobile network operator for the charge operations.
type Operator string

const (
	MCI Operator = "MCI"
	MTN Operator = "MTN"
	RTL Operator = "RTL"
)

// Gateway service codes, one per payment product.
const (
	servicePurchase         = 8
	serviceMultiAccPurchase = 9
	serviceBill             = 4
)

// Service codes per operator and product family. Direct charge and internet
// charge share the same codes; PIN charge has its own block.
var (
	directChargeCodes = map[Operator]int{MCI: 1, MTN: 2, RTL: 3}
	pinChargeCodes    = map[Operator]int{MCI: 5, MTN: 6, RTL: 7}
	internetCodes     = map[Operator]int{MCI: 1, MTN: 2, RTL: 3}
)

// Valid reports whether o is one of the known operators. Membership in the
// service-code tables is the single definition; the tables all carry the same
// key set.
func (o Operator) Valid() bool {
	_, ok := directChargeCodes[o]
	return ok
}
