package server

// Config holds configuration for the HTTP server.
type Config struct {
	// Port is the port where the server will listen.
	Port string `mapstructure:"port" default:"8080"`
	// ApiKey is the secret key required to access the API. Empty disables
	// authentication, which is only sensible for local single-user setups.
	ApiKey string `mapstructure:"api_key" default:""`
	// Metrics toggles the public /metrics endpoint.
	Metrics bool `mapstructure:"metrics" default:"true"`
}

// RequireAuth reports whether API requests must present the API key.
func (c Config) RequireAuth() bool {
	return c.ApiKey != ""
}
