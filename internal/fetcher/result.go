package fetcher

// RawRecord is the union of the three provider responses for a single
// ticker. It only lives for the duration of that ticker's fetch cycle and
// is turned into a normalized record by the aggregator.
type RawRecord struct {
	// Symbol is the ticker that was claimed from the universe.
	Symbol string

	Quote   Quote
	Profile Profile

	// History is ordered oldest to newest.
	History []Close
}
