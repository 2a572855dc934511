package config

import (
	"log"
	"os"

	"github.com/joho/godotenv"
)

type AppConfig struct {
	LogLevel         string
	ExchangeRatePath string // Norges Bank EXR.csv with USD/NOK observations
	BalanceDBPath    string // sqlite database holding year-end balances
	OutputDir        string
	OutputPrefix     string
	MarketName       string // value written to the Marked column
}

var Cfg *AppConfig

func LoadConfig() {
	if err := godotenv.Load(); err != nil {
		log.Println("Info: No .env file found. Relying on OS environment variables and defaults.")
	} else {
		log.Println(".env file loaded successfully.")
	}

	Cfg = &AppConfig{
		LogLevel:         getEnv("LOG_LEVEL", "info"),
		ExchangeRatePath: getEnv("EXCHANGE_RATE_PATH", "data/EXR.csv"),
		BalanceDBPath:    getEnv("BALANCE_DB_PATH", "./balance_state.db"),
		OutputDir:        getEnv("OUTPUT_DIR", "./output"),
		OutputPrefix:     getEnv("OUTPUT_PREFIX", "processed"),
		MarketName:       getEnv("MARKET_NAME", "CakeDeFi"),
	}

	log.Printf("Configuration loaded: LogLevel=%s, ExchangeRatePath=%s, BalanceDBPath=%s, OutputDir=%s",
		Cfg.LogLevel, Cfg.ExchangeRatePath, Cfg.BalanceDBPath, Cfg.OutputDir)
}

func getEnv(key, fallback string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return fallback
}
