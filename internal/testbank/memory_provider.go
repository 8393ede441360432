package testbank

import "context"

// MemoryProvider is the in-memory fallback RowProvider used when Redis is
// disabled or unreachable — every repository resolves to an empty bank, so
// testhash lookups simply always miss rather than the service failing to
// start.
type MemoryProvider struct{}

// LoadRows always returns an empty map — there is no remote dataset to
// stream rows from.
func (MemoryProvider) LoadRows(ctx context.Context, repoID string) (map[string]string, error) {
	return map[string]string{}, nil
}
