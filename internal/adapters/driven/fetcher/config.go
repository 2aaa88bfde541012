package fetcher

import "time"

// DefaultUserAgent is a desktop Chrome string; some sites serve stub pages to bots.
const DefaultUserAgent = "Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 " +
	"(KHTML, like Gecko) Chrome/126.0 Safari/537.36"

// Config contains configuration for the HTTP fetcher.
type Config struct {
	// UserAgent is sent on every request and used for robots.txt matching.
	UserAgent string

	// Timeout bounds each individual request.
	Timeout time.Duration

	// MaxRedirects is the number of redirects followed before giving up.
	MaxRedirects int

	// MaxBodyBytes caps the body; longer bodies are truncated.
	MaxBodyBytes int64

	// Attempts is the total number of tries for retryable failures.
	Attempts uint

	// RetryDelay is the base of the exponential back-off (1s, 2s, 4s, ...).
	RetryDelay time.Duration

	// HostRPS limits requests per second to any one host. Zero disables it.
	HostRPS float64

	// HostBurst is the limiter burst size.
	HostBurst int

	// IgnoreRobots skips the robots.txt check.
	IgnoreRobots bool

	// RobotsTimeout bounds the robots.txt request.
	RobotsTimeout time.Duration

	// RenderTimeout bounds a headless browser navigation.
	RenderTimeout time.Duration
}

// DefaultConfig returns the default fetcher configuration.
func DefaultConfig() Config {
	return Config{
		UserAgent:     DefaultUserAgent,
		Timeout:       25 * time.Second,
		MaxRedirects:  7,
		MaxBodyBytes:  15 << 20, // 15 MiB
		Attempts:      4,
		RetryDelay:    time.Second,
		HostRPS:       2,
		HostBurst:     1,
		RobotsTimeout: 8 * time.Second,
		RenderTimeout: 30 * time.Second,
	}
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.UserAgent == "" {
		c.UserAgent = d.UserAgent
	}
	if c.Timeout <= 0 {
		c.Timeout = d.Timeout
	}
	if c.MaxRedirects <= 0 {
		c.MaxRedirects = d.MaxRedirects
	}
	if c.MaxBodyBytes <= 0 {
		c.MaxBodyBytes = d.MaxBodyBytes
	}
	if c.Attempts == 0 {
		c.Attempts = d.Attempts
	}
	if c.RetryDelay <= 0 {
		c.RetryDelay = d.RetryDelay
	}
	if c.HostBurst <= 0 {
		c.HostBurst = d.HostBurst
	}
	if c.RobotsTimeout <= 0 {
		c.RobotsTimeout = d.RobotsTimeout
	}
	if c.RenderTimeout <= 0 {
		c.RenderTimeout = d.RenderTimeout
	}
	return c
}
