// Package pagination normalizes page sizes and cursor tokens for list RPCs.
package pagination

// PageSizeConfig configures page size normalization.
type PageSizeConfig struct {
	Default int
	Max     int
}

// ClampPageSize applies defaults and limits for page sizes.
func ClampPageSize(value int32, cfg PageSizeConfig) int {
	pageSize := int(value)
	if pageSize <= 0 {
		pageSize = cfg.Default
	}
	if cfg.Max > 0 && pageSize > cfg.Max {
		pageSize = cfg.Max
	}
	if pageSize <= 0 {
		pageSize = 1
	}
	return pageSize
}

// Trim cuts a result fetched with LIMIT pageSize+1 down to pageSize and
// returns the cursor of the last kept item when more rows exist.
func Trim[T any](items []T, pageSize int, cursor func(T) string) ([]T, string) {
	if pageSize <= 0 || len(items) <= pageSize {
		return items, ""
	}
	kept := items[:pageSize]
	return kept, cursor(kept[pageSize-1])
}
