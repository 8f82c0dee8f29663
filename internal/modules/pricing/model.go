// README: Pickup tier rates charged on top of an accepted quote.
package pricing

// Rate is the flat pickup charge for one tier, in minor units.
type Rate struct {
	Tier     string
	Cost     int64
	Currency string
}

// DefaultRates apply when no override row exists.
var DefaultRates = map[string]int64{
	"Regular":   0,
	"Priority":  500,
	"Emergency": 1000,
}
