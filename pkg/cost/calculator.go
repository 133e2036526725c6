package cost

// FallbackPerToken is the conservative USD-per-token rate applied when
// neither the pricing registry nor the built-in table knows a model.
const FallbackPerToken = 1e-5

// fallbackRates prices common models when no registry entry exists.
// USD per token.
var fallbackRates = map[string]float64{
	"gpt-4":             3e-5,
	"gpt-4o":            1e-5,
	"gpt-4o-mini":       3e-7,
	"gpt-3.5-turbo":     1e-6,
	"claude-3-opus":     4.5e-5,
	"claude-3-sonnet":   9e-6,
	"claude-3-haiku":    7.5e-7,
	"claude-3-5-sonnet": 9e-6,
	"gemini-1.5-pro":    4e-6,
	"gemini-1.5-flash":  2e-7,
}

// Calculator converts token counts to USD. Lookup order: pricing
// registry, built-in fallback table, conservative flat rate. The
// calculation is always defined; unknown models never error.
type Calculator struct {
	pricing *Pricing
}

// NewCalculator creates a calculator. pricing may be nil.
func NewCalculator(pricing *Pricing) *Calculator {
	return &Calculator{pricing: pricing}
}

// PerToken returns the USD-per-token rate for a model. An empty model
// (deterministic work) rates at the conservative fallback so callers
// recording stray tokens still get a defined cost.
func (c *Calculator) PerToken(model string) float64 {
	if c.pricing != nil {
		if rate, ok := c.pricing.Rate("", model); ok {
			if per := rate.PerToken(); per > 0 {
				return per
			}
		}
	}
	if per, ok := fallbackRates[model]; ok {
		return per
	}
	return FallbackPerToken
}

// Cost converts a token count to USD for a model.
func (c *Calculator) Cost(model string, tokens int) float64 {
	if tokens <= 0 {
		return 0
	}
	return float64(tokens) * c.PerToken(model)
}
