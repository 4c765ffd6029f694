package settings

import "context"

// Repository is the opaque key/value settings partition of the local store.
// The engine does not interpret values; callers store whatever they need
// (device identity, feature toggles, last-used outlet).
type Repository interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte) error
	Delete(ctx context.Context, key string) error
	List(ctx context.Context) (map[string][]byte, error)
	Clear(ctx context.Context) error
}
