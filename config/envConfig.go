package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

var _ = godotenv.Load("dev.env")

// db variables
var (
	DB_USER     = os.Getenv("DB_USER")
	DB_PASSWORD = os.Getenv("DB_PASSWORD")
	DB_HOST     = os.Getenv("DB_HOST")
	DB_NAME     = os.Getenv("DB_NAME")
	DB_PORT     = getEnv("DB_PORT", "5432")
	DB_MAX_CONN = int32(getInt("DB_MAX_CONN", 10))
)

// chain variables
var (
	RPC_URL                = os.Getenv("RPC_URL")
	HORIZON_URL            = getEnv("HORIZON_URL", "https://horizon.stellar.org")
	NETWORK_PASSPHRASE     = getEnv("NETWORK_PASSPHRASE", "Public Global Stellar Network ; September 2015")
	DEPLOYMENT_ENVIRONMENT = os.Getenv("DEPLOYMENT_ENVIRONMENT")
	FACTORY_CONTRACT       = os.Getenv("FACTORY_CONTRACT")
	FLOW_CONTRACT          = os.Getenv("FLOW_CONTRACT")
	START_LEDGER           = uint32(getInt("START_LEDGER", 0))
)

// pipeline variables
var (
	SOURCE = getEnv("SOURCE", "stellar") // stellar | kafka | relay
	STORE  = getEnv("STORE", "postgres") // postgres | memory
)

// redis variables
var (
	REDIS_ADDR     = os.Getenv("REDIS_ADDR")
	REDIS_PASSWORD = os.Getenv("REDIS_PASSWORD")
	REDIS_DB       = getInt("REDIS_DB", 0)
	METADATA_TTL   = getDuration("METADATA_TTL", 0) // 0 keeps entries forever
)

// kafka variables
var (
	KAFKA_BROKERS = splitList(os.Getenv("KAFKA_BROKERS"))
	KAFKA_TOPIC   = getEnv("KAFKA_TOPIC", "streamswap-events")
	KAFKA_GROUP   = getEnv("KAFKA_GROUP", "streamswap-indexer")
)

var (
	HTTP_ADDR          = getEnv("HTTP_ADDR", ":8080")
	LOG_LEVEL          = getEnv("LOG_LEVEL", "info")
	LOG_PRETTY         = getEnv("LOG_PRETTY", "false") == "true"
	RETRY_MAX_ATTEMPTS = getInt("RETRY_MAX_ATTEMPTS", 5)
	RPC_TIMEOUT        = getDuration("RPC_TIMEOUT", 10*time.Second)
)

func DatabaseUrl() string {
	if url := os.Getenv("DATABASE_URL"); url != "" {
		return url
	}
	return "postgres://" + DB_USER + ":" + DB_PASSWORD + "@" + DB_HOST + ":" + DB_PORT + "/" + DB_NAME
}

func getEnv(key, fallback string) string {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		return v
	}
	return fallback
}

func getInt(key string, fallback int) int {
	v, err := strconv.Atoi(os.Getenv(key))
	if err != nil {
		return fallback
	}
	return v
}

func getDuration(key string, fallback time.Duration) time.Duration {
	v, err := time.ParseDuration(os.Getenv(key))
	if err != nil {
		return fallback
	}
	return v
}

func splitList(v string) []string {
	var out []string
	for _, s := range strings.Split(v, ",") {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}
