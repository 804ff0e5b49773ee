package config

import (
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all configuration for the application.
type Config struct {
	Logger   Logger          `mapstructure:"logger"`
	Server   Server          `mapstructure:"server"`
	Database Database        `mapstructure:"database"`
	Market   Market          `mapstructure:"market"`
	Plans    map[string]Plan `mapstructure:"plans"`
}

// Logger holds the configuration for the logger.
type Logger struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
	// File enables a rotated log file next to stdout when set.
	File string `mapstructure:"file"`
}

// Server holds the configuration for the web server.
type Server struct {
	Port int `mapstructure:"port"`
}

// Database holds the configuration for the database.
type Database struct {
	DSN          string `mapstructure:"dsn"`
	MaxOpenConns int    `mapstructure:"max_open_conns"`
}

// Market holds the configuration for price resolution.
type Market struct {
	International      International   `mapstructure:"international"`
	Domestic           Domestic        `mapstructure:"domestic"`
	MinRequestInterval time.Duration   `mapstructure:"min_request_interval"`
	RegistryFile       string          `mapstructure:"registry_file"`
	Symbols            []SymbolListing `mapstructure:"symbols"`
}

// International configures the live quote source for non-domestic symbols.
type International struct {
	BaseURL        string        `mapstructure:"base_url"`
	Timeout        time.Duration `mapstructure:"timeout"`
	RateLimit      float64       `mapstructure:"rate_limit"`
	RateLimitBurst int           `mapstructure:"rate_limit_burst"`
	CacheTTL       time.Duration `mapstructure:"cache_ttl"`
}

// Domestic configures the scrape chain for symbols listed in the registry.
type Domestic struct {
	PrimaryURLs       []string      `mapstructure:"primary_urls"`
	AlternateURLs     []string      `mapstructure:"alternate_urls"`
	Timeout           time.Duration `mapstructure:"timeout"`
	Retries           int           `mapstructure:"retries"`
	BackoffBase       time.Duration `mapstructure:"backoff_base"`
	SyntheticFallback bool          `mapstructure:"synthetic_fallback"`
	CacheTTL          time.Duration `mapstructure:"cache_ttl"`
	Market            string        `mapstructure:"market"`
	Currency          string        `mapstructure:"currency"`
}

// SymbolListing is one domestic registry entry.
type SymbolListing struct {
	Symbol    string  `mapstructure:"symbol" yaml:"symbol"`
	Name      string  `mapstructure:"name" yaml:"name"`
	BasePrice float64 `mapstructure:"base_price" yaml:"base_price"`
}

// Plan holds the rule parameters a challenge is created with.
type Plan struct {
	Price               float64 `mapstructure:"price"`
	Currency            string  `mapstructure:"currency"`
	StartingBalance     float64 `mapstructure:"starting_balance"`
	MaxDailyLossPercent float64 `mapstructure:"max_daily_loss_percent"`
	MaxTotalLossPercent float64 `mapstructure:"max_total_loss_percent"`
	ProfitTargetPercent float64 `mapstructure:"profit_target_percent"`
}

// LoadConfig reads configuration from file or environment variables.
func LoadConfig(path string) (config Config, err error) {
	v := viper.New()
	v.AddConfigPath(path)
	v.SetConfigName("config")
	v.SetConfigType("yml")

	// Allow environment variables to override config file
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	SetDefaults(v)

	err = v.ReadInConfig()
	if err != nil {
		return
	}

	err = v.Unmarshal(&config)
	if err == nil && len(config.Market.Symbols) == 0 && config.Market.RegistryFile == "" {
		config.Market.Symbols = DefaultSymbols()
	}
	return
}

// SetDefaults registers the default values on v.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("logger.level", "info")
	v.SetDefault("logger.format", "console")
	v.SetDefault("server.port", 8080)
	v.SetDefault("database.dsn", "challenges.db")
	v.SetDefault("database.max_open_conns", 1)

	v.SetDefault("market.min_request_interval", 2*time.Second)

	v.SetDefault("market.international.base_url", "https://query2.finance.yahoo.com")
	v.SetDefault("market.international.timeout", 10*time.Second)
	v.SetDefault("market.international.rate_limit", 5) // requests per second
	v.SetDefault("market.international.rate_limit_burst", 2)
	v.SetDefault("market.international.cache_ttl", 120*time.Second)

	v.SetDefault("market.domestic.primary_urls", []string{
		"https://www.casablanca-bourse.com/bourseweb/en/Negociation-History.aspx?CodeValue={symbol}",
		"https://www.casablanca-bourse.com/bourseweb/en/Stock-Prices.aspx?CodeValue={symbol}",
		"https://www.casablanca-bourse.com/bourseweb/Stock.aspx?CodeValue={symbol}",
	})
	v.SetDefault("market.domestic.alternate_urls", []string{
		"https://www.investing.com/equities/{symbol_lower}-morocco",
	})
	v.SetDefault("market.domestic.timeout", 10*time.Second)
	v.SetDefault("market.domestic.retries", 3)
	v.SetDefault("market.domestic.backoff_base", time.Second)
	v.SetDefault("market.domestic.synthetic_fallback", true)
	v.SetDefault("market.domestic.cache_ttl", 60*time.Second)
	v.SetDefault("market.domestic.market", "Casablanca Stock Exchange")
	v.SetDefault("market.domestic.currency", "MAD")

	for name, plan := range DefaultPlans() {
		prefix := "plans." + name + "."
		v.SetDefault(prefix+"price", plan.Price)
		v.SetDefault(prefix+"currency", plan.Currency)
		v.SetDefault(prefix+"starting_balance", plan.StartingBalance)
		v.SetDefault(prefix+"max_daily_loss_percent", plan.MaxDailyLossPercent)
		v.SetDefault(prefix+"max_total_loss_percent", plan.MaxTotalLossPercent)
		v.SetDefault(prefix+"profit_target_percent", plan.ProfitTargetPercent)
	}
}

// DefaultPlans returns the stock plan table.
func DefaultPlans() map[string]Plan {
	return map[string]Plan{
		"starter": {Price: 200, Currency: "DH", StartingBalance: 5000, MaxDailyLossPercent: 5, MaxTotalLossPercent: 10, ProfitTargetPercent: 10},
		"pro":     {Price: 500, Currency: "DH", StartingBalance: 10000, MaxDailyLossPercent: 5, MaxTotalLossPercent: 10, ProfitTargetPercent: 10},
		"elite":   {Price: 1000, Currency: "DH", StartingBalance: 25000, MaxDailyLossPercent: 5, MaxTotalLossPercent: 10, ProfitTargetPercent: 10},
	}
}

// DefaultSymbols returns the domestic listings with their reference prices.
func DefaultSymbols() []SymbolListing {
	return []SymbolListing{
		{Symbol: "IAM", Name: "Itissalat Al-Maghrib (IAM)", BasePrice: 12.21},
		{Symbol: "ATW", Name: "Attijariwafa Bank", BasePrice: 81.35},
		{Symbol: "BCP", Name: "Banque Centrale Populaire", BasePrice: 31.04},
		{Symbol: "BMCE", Name: "Bank of Africa", BasePrice: 23.97},
		{Symbol: "CIH", Name: "Crédit Immobilier et Hôtelier", BasePrice: 43.98},
		{Symbol: "HPS", Name: "HPS", BasePrice: 63.54},
		{Symbol: "LESIEUR", Name: "Lesieur Cristal", BasePrice: 40.06},
		{Symbol: "LBL", Name: "LafargeHolcim Maroc", BasePrice: 200.73},
		{Symbol: "SNEP", Name: "Société Nouvelle d'Électrothermie", BasePrice: 53.38},
		{Symbol: "TOTAL", Name: "Total Maroc", BasePrice: 187.78},
		{Symbol: "TAQA", Name: "TAQA Morocco", BasePrice: 237.57},
	}
}
