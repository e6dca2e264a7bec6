package config

import (
	"os"
	"strconv"
)

type EconomyConfig struct {
	Currency            string
	StartingBudget      int64 // cents credited when an account is approved; 0 disables
	MaxDistributionSize int   // max accounts per distribution call
	BlobDir             string
	CatalogCSVPath      string
}

func LoadEconomyConfig() *EconomyConfig {
	return &EconomyConfig{
		Currency:            getEnv("ECONOMY_CURRENCY", "EUR"),
		StartingBudget:      getEnvAsInt64("ECONOMY_STARTING_BUDGET", 0),
		MaxDistributionSize: getEnvAsInt("ECONOMY_MAX_DISTRIBUTION_SIZE", 100),
		BlobDir:             getEnv("BLOB_DIR", "./data/squads"),
		CatalogCSVPath:      getEnv("CATALOG_CSV_PATH", "./player-data-full.csv"),
	}
}

func getEnv(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

func getEnvAsInt(key string, defaultVal int) int {
	if val := os.Getenv(key); val != "" {
		if intVal, err := strconv.Atoi(val); err == nil {
			return intVal
		}
	}
	return defaultVal
}

func getEnvAsInt64(key string, defaultVal int64) int64 {
	if val := os.Getenv(key); val != "" {
		if intVal, err := strconv.ParseInt(val, 10, 64); err == nil {
			return intVal
		}
	}
	return defaultVal
}
