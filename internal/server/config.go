package server

import "time"

type Config struct {
	// ListenAddr is the HTTP listen address for the API server.
	ListenAddr string `yaml:"listen_addr"`

	// JWTSecret enables bearer-token auth. When empty the server trusts the
	// X-Owner-ID and X-Role headers, which is only fit for local use.
	JWTSecret string `yaml:"jwt_secret"`

	ReadTimeout time.Duration `yaml:"read_timeout"`
}

func DefaultConfig() Config {
	return Config{
		ListenAddr:  ":8080",
		ReadTimeout: 15 * time.Second,
	}
}
