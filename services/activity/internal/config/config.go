package config

import (
	"os"
	"strings"
)

type Config struct {
	HTTPAddr  string
	JWTSecret []byte
}

func Load() Config {
	addr := strings.TrimSpace(os.Getenv("HTTP_ADDR"))
	if addr == "" {
		addr = ":8081"
	}
	return Config{
		HTTPAddr:  addr,
		JWTSecret: []byte(strings.TrimSpace(os.Getenv("JWT_SECRET"))),
	}
}
