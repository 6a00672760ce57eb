package mask

// DefaultPattern is the replacement string substituted for masked values.
const DefaultPattern = "***MASKED***"

// DefaultSensitiveNames lists the property names whose values are always
// masked. Matching is case-insensitive.
var DefaultSensitiveNames = []string{
	"Password",
	"Token",
	"Secret",
	"ApiKey",
	"RecoveryKey",
	"Key",
	"Credential",
	"Ssn",
	"Credit",
	"Card",
}

// Finding reports how many values a single sensitive name masked during
// one operation.
type Finding struct {
	Rule   string `json:"rule"`
	Masked string `json:"masked"`
	Hits   int    `json:"hits"`
}

// Result contains the outcome of processing one payload through the engine.
type Result struct {
	Masked   string    `json:"maskedText"`
	Findings []Finding `json:"findings"`
	Fallback bool      `json:"fallback"`
	Original string    `json:"-"` // Never serialize original text
}
