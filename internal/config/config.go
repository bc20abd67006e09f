package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
)

type Config struct {
	Port                   string
	AllowedOrigin          string
	DatabaseURL            string
	RedisAddr              string
	RedisPassword          string
	RedisDB                int
	AuthSecret             string
	AccessTokenTTLMinutes  int
	CartTTLHours           int
	OriginLat              float64
	OriginLng              float64
	OSRMBaseURL            string
	DistanceTimeoutSeconds int
}

func Load() Config {
	redisDB, _ := strconv.Atoi(getEnv("REDIS_DB", "0"))
	tokenTTL, err := strconv.Atoi(getEnv("ACCESS_TOKEN_TTL_MINUTES", "480"))
	if err != nil || tokenTTL < 1 {
		tokenTTL = 480
	}
	cartTTL, err := strconv.Atoi(getEnv("CART_TTL_HOURS", "72"))
	if err != nil || cartTTL < 1 {
		cartTTL = 72
	}
	distanceTimeout, err := strconv.Atoi(getEnv("DISTANCE_TIMEOUT_SECONDS", "5"))
	if err != nil || distanceTimeout < 1 {
		distanceTimeout = 5
	}
	// Defaults point at the Asunción store.
	originLat := floatEnv("ORIGIN_LAT", -25.2967)
	originLng := floatEnv("ORIGIN_LNG", -57.6359)

	cfg := Config{
		Port:                   getEnv("PORT", "8080"),
		AllowedOrigin:          getEnv("ALLOWED_ORIGIN", "http://127.0.0.1:3000"),
		DatabaseURL:            os.Getenv("DATABASE_URL"),
		RedisAddr:              os.Getenv("REDIS_ADDR"),
		RedisPassword:          os.Getenv("REDIS_PASSWORD"),
		RedisDB:                redisDB,
		AuthSecret:             strings.TrimSpace(os.Getenv("AUTH_SECRET")),
		AccessTokenTTLMinutes:  tokenTTL,
		CartTTLHours:           cartTTL,
		OriginLat:              originLat,
		OriginLng:              originLng,
		OSRMBaseURL:            os.Getenv("OSRM_BASE_URL"),
		DistanceTimeoutSeconds: distanceTimeout,
	}

	return cfg
}

func (c Config) Address() string {
	return fmt.Sprintf(":%s", c.Port)
}

func getEnv(key string, fallback string) string {
	val := os.Getenv(key)
	if val == "" {
		return fallback
	}
	return val
}

func floatEnv(key string, fallback float64) float64 {
	val := os.Getenv(key)
	if val == "" {
		return fallback
	}
	parsed, err := strconv.ParseFloat(val, 64)
	if err != nil {
		return fallback
	}
	return parsed
}
