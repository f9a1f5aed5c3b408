package model

// RawPlazaRecord is a plaza as scraped, before normalization. All fields are
// untyped text; Source locates the record for log context.
type RawPlazaRecord struct {
	PlazaID   string
	Name      string
	Latitude  string
	Longitude string
	Source    string
}

// RawRateRecord is a rate row as scraped, before normalization.
type RawRateRecord struct {
	PlazaID    string
	CategoryID string
	TimeBand   string
	Rate       string
	Source     string
}
