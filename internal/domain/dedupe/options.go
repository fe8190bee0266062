package dedupe

// Option applies a configuration option to the window.
type Option func(*window)

// WithMaxSize sets how many keys are remembered.
func WithMaxSize(size int) Option {
	return func(w *window) {
		if size > 0 {
			w.maxSize = size
		}
	}
}
