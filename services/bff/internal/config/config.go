package config

import (
	"os"
	"strings"
)

type Config struct {
	HTTPAddr        string
	JWTSecret       []byte
	CatalogBaseURL  string
	ActivityBaseURL string
	RedisURL        string
	NATSURL         string
}

func Load() Config {
	addr := strings.TrimSpace(os.Getenv("HTTP_ADDR"))
	if addr == "" {
		addr = ":8080"
	}
	catalog := strings.TrimSpace(os.Getenv("CATALOG_BASE_URL"))
	if catalog == "" {
		catalog = "http://catalog:8082"
	}
	activity := strings.TrimSpace(os.Getenv("ACTIVITY_BASE_URL"))
	if activity == "" {
		activity = "http://activity:8081"
	}
	natsURL := strings.TrimSpace(os.Getenv("NATS_URL"))
	if natsURL == "" {
		natsURL = "nats://nats:4222"
	}
	return Config{
		HTTPAddr:        addr,
		JWTSecret:       []byte(strings.TrimSpace(os.Getenv("JWT_SECRET"))),
		CatalogBaseURL:  catalog,
		ActivityBaseURL: activity,
		RedisURL:        strings.TrimSpace(os.Getenv("REDIS_URL")),
		NATSURL:         natsURL,
	}
}
