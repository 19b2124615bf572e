package dedupe

// Option applies a configuration option to the in-memory claim cache.
type Option func(*inMemoryClaims)

// WithMaxSize sets how many transaction ids are kept.
// maxSize <= 0 disables eviction.
func WithMaxSize(maxSize int) Option {
	return func(c *inMemoryClaims) {
		c.maxSize = maxSize
	}
}
