package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
)

type Config struct {
	Port              string
	AllowedOrigin     string
	DatabaseURL       string
	RedisAddr         string
	RedisPassword     string
	RedisDB           int
	BranchID          string
	BranchCode        string
	DeskCode          string
	TaxRatePercent    float64
	SessionSecret     string
	SessionTTLMinutes int
	ParkedTTLMinutes  int
	ManagerPIN        string
}

func Load() Config {
	redisDB, _ := strconv.Atoi(getEnv("REDIS_DB", "0"))
	taxRate, err := strconv.ParseFloat(getEnv("TAX_RATE_PERCENT", "5"), 64)
	if err != nil || taxRate < 0 || taxRate > 100 {
		taxRate = 5
	}
	sessionTTL, err := strconv.Atoi(getEnv("SESSION_TTL_MINUTES", "480"))
	if err != nil || sessionTTL < 1 {
		sessionTTL = 480
	}
	parkedTTL, err := strconv.Atoi(getEnv("PARKED_TTL_MINUTES", "1440"))
	if err != nil || parkedTTL < 1 {
		parkedTTL = 1440
	}

	cfg := Config{
		Port:              getEnv("PORT", "8080"),
		AllowedOrigin:     getEnv("ALLOWED_ORIGIN", "http://127.0.0.1:3000"),
		DatabaseURL:       os.Getenv("DATABASE_URL"),
		RedisAddr:         os.Getenv("REDIS_ADDR"),
		RedisPassword:     os.Getenv("REDIS_PASSWORD"),
		RedisDB:           redisDB,
		BranchID:          getEnv("BRANCH_ID", "main-branch"),
		BranchCode:        getEnv("BRANCH_CODE", "MAIN"),
		DeskCode:          getEnv("DESK_CODE", "01"),
		TaxRatePercent:    taxRate,
		SessionSecret:     strings.TrimSpace(os.Getenv("SESSION_SECRET")),
		SessionTTLMinutes: sessionTTL,
		ParkedTTLMinutes:  parkedTTL,
		ManagerPIN:        strings.TrimSpace(os.Getenv("MANAGER_PIN")),
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
