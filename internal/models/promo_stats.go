package models

// PromoStats are aggregate counters maintained incrementally alongside
// store mutations so dashboard reads stay cheap.
type PromoStats struct {
	TotalCodes  int64 `json:"total_codes"`
	TotalUsages int64 `json:"total_usages"`
}
