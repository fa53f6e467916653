package domain

// OutcomeToken pairs one tradable outcome with its CLOB token id.
type OutcomeToken struct {
	TokenID string
	Outcome string
}

// Instrument is the result of resolving a human-supplied market URL, slug or
// id down to the single outcome token the process watches.
type Instrument struct {
	// TokenID is the CLOB asset id (long decimal numeral) for the watched
	// outcome.
	TokenID string
	// MarketName is the display label for the market (the question text).
	MarketName string
	// Outcome is the label of the watched outcome, e.g. "Yes".
	Outcome string
	// Siblings lists every outcome token of the market, watched one included.
	Siblings []OutcomeToken
}
