package config

import (
	"os"
	"strings"
)

type Config struct {
	HTTPAddr  string
	JWTSecret []byte
	NATSURL   string
}

func Load() Config {
	addr := strings.TrimSpace(os.Getenv("HTTP_ADDR"))
	if addr == "" {
		addr = ":8082"
	}
	natsURL := strings.TrimSpace(os.Getenv("NATS_URL"))
	if natsURL == "" {
		natsURL = "nats://nats:4222"
	}
	return Config{
		HTTPAddr:  addr,
		JWTSecret: []byte(strings.TrimSpace(os.Getenv("JWT_SECRET"))),
		NATSURL:   natsURL,
	}
}
