package api

type options struct {
	adminToken string
}

// Option configures the Server.
type Option func(*options)

// WithAdminToken enables the admin endpoints behind the X-Admin-Token header.
func WithAdminToken(token string) Option {
	return func(o *options) {
		o.adminToken = token
	}
}
