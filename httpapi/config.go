package httpapi

// Config defines HTTP API settings.
type Config struct {
	Addr     string
	BasePath string
	// UserHeader names the request header carrying the acting user.
	UserHeader  string
	DefaultUser string
	// RateLimit is requests per second per client; zero disables limiting.
	RateLimit  float64
	RateBurst  int
	HubHistory int
}
