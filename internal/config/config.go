package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/BurntSushi/toml"

	"github.com/terminal-bench/flightsurety/internal/funding"
	"github.com/terminal-bench/flightsurety/internal/insurance"
	"github.com/terminal-bench/flightsurety/internal/oracles"
	"github.com/terminal-bench/flightsurety/internal/surety"
	"github.com/terminal-bench/flightsurety/pkg/decimal"
	"github.com/terminal-bench/flightsurety/pkg/models"
)

// Config holds process configuration
type Config struct {
	Owner        string
	FirstAirline string
	AppIdentity  string
	NodeID       string

	Addr      string
	JWTSecret string

	DatabaseURL   string
	NATSURL       string
	NATSJetStream bool
	RedisAddr     string
	InfluxURL     string
	InfluxToken   string
	InfluxOrg     string
	InfluxBucket  string
	EtcdEndpoints []string

	ArchiveEndpoint  string
	ArchiveAccessKey string
	ArchiveSecretKey string
	ArchiveBucket    string
	ArchiveSecure    bool

	LogLevel  string
	LogFormat string

	Policy Policy
}

// Policy holds the ledger parameters
type Policy struct {
	BootstrapThreshold   int
	FundingThreshold     string
	Cap                  string
	PayoutMultiplier     string
	OracleConsensus      int
	OracleAssignment     int
	OracleFee            string
	RequireFundedVoter   bool
	RequireFundedFlights bool
}

// Default returns the built-in configuration
func Default() Config {
	host, _ := os.Hostname()
	return Config{
		AppIdentity:   "0xa990",
		ArchiveBucket: "flightsurety",
		NodeID:        host,
		Addr:          ":8080",
		LogLevel:      "info",
		LogFormat:     "console",
		Policy: Policy{
			BootstrapThreshold:   4,
			FundingThreshold:     "10",
			Cap:                  "1",
			PayoutMultiplier:     "3:2",
			OracleConsensus:      3,
			OracleAssignment:     5,
			OracleFee:            "1",
			RequireFundedFlights: true,
		},
	}
}

type fileConfig struct {
	Owner            string     `toml:"owner"`
	FirstAirline     string     `toml:"first_airline"`
	AppIdentity      string     `toml:"app_identity"`
	NodeID           string     `toml:"node_id"`
	Addr             string     `toml:"addr"`
	JWTSecret        string     `toml:"jwt_secret"`
	DatabaseURL      string     `toml:"database_url"`
	NATSURL          string     `toml:"nats_url"`
	NATSJetStream    bool       `toml:"nats_jetstream"`
	RedisAddr        string     `toml:"redis_addr"`
	InfluxURL        string     `toml:"influx_url"`
	InfluxToken      string     `toml:"influx_token"`
	InfluxOrg        string     `toml:"influx_org"`
	InfluxBucket     string     `toml:"influx_bucket"`
	EtcdEndpoints    []string   `toml:"etcd_endpoints"`
	ArchiveEndpoint  string     `toml:"archive_endpoint"`
	ArchiveAccessKey string     `toml:"archive_access_key"`
	ArchiveSecretKey string     `toml:"archive_secret_key"`
	ArchiveBucket    string     `toml:"archive_bucket"`
	ArchiveSecure    bool       `toml:"archive_secure"`
	LogLevel         string     `toml:"log_level"`
	LogFormat        string     `toml:"log_format"`
	Policy           filePolicy `toml:"policy"`
}

type filePolicy struct {
	BootstrapThreshold   int    `toml:"bootstrap_threshold"`
	FundingThreshold     string `toml:"funding_threshold"`
	Cap                  string `toml:"policy_cap"`
	PayoutMultiplier     string `toml:"payout_multiplier"`
	OracleConsensus      int    `toml:"oracle_consensus"`
	OracleAssignment     int    `toml:"oracle_assignment"`
	OracleFee            string `toml:"oracle_fee"`
	RequireFundedVoter   bool   `toml:"require_funded_voter"`
	RequireFundedFlights bool   `toml:"require_funded_flights"`
}

// Load reads and validates the configuration
func Load(path string) (Config, error) {
	cfg, err := Read(path)
	if err != nil {
		return Config{}, err
	}
	return cfg, cfg.Validate()
}

// Read builds the configuration from defaults, the optional TOML file at
// path and the environment, in that order. It does not validate ledger
// settings, so processes that never build a ledger can use it.
func Read(path string) (Config, error) {
	cfg := Default()
	if path != "" {
		if err := applyFile(path, &cfg); err != nil {
			return Config{}, err
		}
	}
	if err := applyEnv(&cfg, os.LookupEnv); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func applyFile(path string, cfg *Config) error {
	var raw fileConfig
	meta, err := toml.DecodeFile(path, &raw)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		return fmt.Errorf("load config: unknown key %q", undecoded[0].String())
	}

	setString := func(dst *string, val string, key ...string) {
		if meta.IsDefined(key...) {
			*dst = strings.TrimSpace(val)
		}
	}
	setString(&cfg.Owner, raw.Owner, "owner")
	setString(&cfg.FirstAirline, raw.FirstAirline, "first_airline")
	setString(&cfg.AppIdentity, raw.AppIdentity, "app_identity")
	setString(&cfg.NodeID, raw.NodeID, "node_id")
	setString(&cfg.Addr, raw.Addr, "addr")
	setString(&cfg.JWTSecret, raw.JWTSecret, "jwt_secret")
	setString(&cfg.DatabaseURL, raw.DatabaseURL, "database_url")
	setString(&cfg.NATSURL, raw.NATSURL, "nats_url")
	setString(&cfg.RedisAddr, raw.RedisAddr, "redis_addr")
	setString(&cfg.InfluxURL, raw.InfluxURL, "influx_url")
	setString(&cfg.InfluxToken, raw.InfluxToken, "influx_token")
	setString(&cfg.InfluxOrg, raw.InfluxOrg, "influx_org")
	setString(&cfg.InfluxBucket, raw.InfluxBucket, "influx_bucket")
	setString(&cfg.ArchiveEndpoint, raw.ArchiveEndpoint, "archive_endpoint")
	setString(&cfg.ArchiveAccessKey, raw.ArchiveAccessKey, "archive_access_key")
	setString(&cfg.ArchiveSecretKey, raw.ArchiveSecretKey, "archive_secret_key")
	setString(&cfg.ArchiveBucket, raw.ArchiveBucket, "archive_bucket")
	setString(&cfg.LogLevel, raw.LogLevel, "log_level")
	setString(&cfg.LogFormat, raw.LogFormat, "log_format")

	if meta.IsDefined("archive_secure") {
		cfg.ArchiveSecure = raw.ArchiveSecure
	}
	if meta.IsDefined("nats_jetstream") {
		cfg.NATSJetStream = raw.NATSJetStream
	}
	if meta.IsDefined("etcd_endpoints") {
		cfg.EtcdEndpoints = normalizeList(raw.EtcdEndpoints)
	}

	p := &cfg.Policy
	if meta.IsDefined("policy", "bootstrap_threshold") {
		p.BootstrapThreshold = raw.Policy.BootstrapThreshold
	}
	setString(&p.FundingThreshold, raw.Policy.FundingThreshold, "policy", "funding_threshold")
	setString(&p.Cap, raw.Policy.Cap, "policy", "policy_cap")
	setString(&p.PayoutMultiplier, raw.Policy.PayoutMultiplier, "policy", "payout_multiplier")
	setString(&p.OracleFee, raw.Policy.OracleFee, "policy", "oracle_fee")
	if meta.IsDefined("policy", "oracle_consensus") {
		p.OracleConsensus = raw.Policy.OracleConsensus
	}
	if meta.IsDefined("policy", "oracle_assignment") {
		p.OracleAssignment = raw.Policy.OracleAssignment
	}
	if meta.IsDefined("policy", "require_funded_voter") {
		p.RequireFundedVoter = raw.Policy.RequireFundedVoter
	}
	if meta.IsDefined("policy", "require_funded_flights") {
		p.RequireFundedFlights = raw.Policy.RequireFundedFlights
	}
	return nil
}

func applyEnv(cfg *Config, lookup func(string) (string, bool)) error {
	getEnv := func(key string, dst *string) {
		if v, ok := lookup(key); ok && v != "" {
			*dst = v
		}
	}
	getEnvBool := func(key string, dst *bool) error {
		v, ok := lookup(key)
		if !ok || v == "" {
			return nil
		}
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("%s: %w", key, err)
		}
		*dst = b
		return nil
	}
	getEnvInt := func(key string, dst *int) error {
		v, ok := lookup(key)
		if !ok || v == "" {
			return nil
		}
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("%s: %w", key, err)
		}
		*dst = n
		return nil
	}

	getEnv("SURETY_OWNER", &cfg.Owner)
	getEnv("SURETY_FIRST_AIRLINE", &cfg.FirstAirline)
	getEnv("SURETY_APP_IDENTITY", &cfg.AppIdentity)
	getEnv("SURETY_NODE_ID", &cfg.NodeID)
	getEnv("JWT_SECRET", &cfg.JWTSecret)
	getEnv("DATABASE_URL", &cfg.DatabaseURL)
	getEnv("NATS_URL", &cfg.NATSURL)
	getEnv("REDIS_ADDR", &cfg.RedisAddr)
	getEnv("INFLUX_URL", &cfg.InfluxURL)
	getEnv("INFLUX_TOKEN", &cfg.InfluxToken)
	getEnv("INFLUX_ORG", &cfg.InfluxOrg)
	getEnv("INFLUX_BUCKET", &cfg.InfluxBucket)
	getEnv("ARCHIVE_ENDPOINT", &cfg.ArchiveEndpoint)
	getEnv("ARCHIVE_ACCESS_KEY", &cfg.ArchiveAccessKey)
	getEnv("ARCHIVE_SECRET_KEY", &cfg.ArchiveSecretKey)
	getEnv("ARCHIVE_BUCKET", &cfg.ArchiveBucket)
	getEnv("LOG_LEVEL", &cfg.LogLevel)
	getEnv("LOG_FORMAT", &cfg.LogFormat)

	if port, ok := lookup("PORT"); ok && port != "" {
		cfg.Addr = ":" + strings.TrimPrefix(port, ":")
	}
	if v, ok := lookup("ETCD_ENDPOINTS"); ok && v != "" {
		cfg.EtcdEndpoints = normalizeList(strings.Split(v, ","))
	}

	getEnv("SURETY_FUNDING_THRESHOLD", &cfg.Policy.FundingThreshold)
	getEnv("SURETY_POLICY_CAP", &cfg.Policy.Cap)
	getEnv("SURETY_PAYOUT_MULTIPLIER", &cfg.Policy.PayoutMultiplier)
	getEnv("SURETY_ORACLE_FEE", &cfg.Policy.OracleFee)

	for key, dst := range map[string]*bool{
		"NATS_JETSTREAM":                &cfg.NATSJetStream,
		"ARCHIVE_SECURE":                &cfg.ArchiveSecure,
		"SURETY_REQUIRE_FUNDED_VOTER":   &cfg.Policy.RequireFundedVoter,
		"SURETY_REQUIRE_FUNDED_FLIGHTS": &cfg.Policy.RequireFundedFlights,
	} {
		if err := getEnvBool(key, dst); err != nil {
			return err
		}
	}
	for key, dst := range map[string]*int{
		"SURETY_BOOTSTRAP_THRESHOLD": &cfg.Policy.BootstrapThreshold,
		"SURETY_ORACLE_CONSENSUS":    &cfg.Policy.OracleConsensus,
		"SURETY_ORACLE_ASSIGNMENT":   &cfg.Policy.OracleAssignment,
	} {
		if err := getEnvInt(key, dst); err != nil {
			return err
		}
	}
	return nil
}

// Validate checks the configuration can build a ledger
func (c Config) Validate() error {
	if c.Owner == "" {
		return fmt.Errorf("owner is required")
	}
	if c.FirstAirline == "" {
		return fmt.Errorf("first_airline is required")
	}
	if _, _, _, err := c.Ledger(); err != nil {
		return err
	}
	return nil
}

// Ledger converts the configuration into ledger parameters: the Data
// config, the App policy and the App identity.
func (c Config) Ledger() (surety.Config, surety.Policy, models.Address, error) {
	owner, err := models.ParseAddress(c.Owner)
	if err != nil {
		return surety.Config{}, surety.Policy{}, "", fmt.Errorf("owner: %w", err)
	}
	first, err := models.ParseAddress(c.FirstAirline)
	if err != nil {
		return surety.Config{}, surety.Policy{}, "", fmt.Errorf("first_airline: %w", err)
	}
	identity, err := models.ParseAddress(c.AppIdentity)
	if err != nil {
		return surety.Config{}, surety.Policy{}, "", fmt.Errorf("app_identity: %w", err)
	}

	p := c.Policy
	threshold, err := positiveAmount("funding_threshold", p.FundingThreshold)
	if err != nil {
		return surety.Config{}, surety.Policy{}, "", err
	}
	policyCap, err := positiveAmount("policy_cap", p.Cap)
	if err != nil {
		return surety.Config{}, surety.Policy{}, "", err
	}
	fee, err := decimal.NewAmount(p.OracleFee)
	if err != nil {
		return surety.Config{}, surety.Policy{}, "", fmt.Errorf("oracle_fee: %w", err)
	}
	ratio, err := decimal.ParseRatio(p.PayoutMultiplier)
	if err != nil {
		return surety.Config{}, surety.Policy{}, "", fmt.Errorf("payout_multiplier: %w", err)
	}
	if p.BootstrapThreshold < 1 {
		return surety.Config{}, surety.Policy{}, "", fmt.Errorf("bootstrap_threshold must be at least 1")
	}
	if p.OracleConsensus < 1 || p.OracleAssignment < p.OracleConsensus {
		return surety.Config{}, surety.Policy{}, "", fmt.Errorf("oracle_assignment (%d) must be at least oracle_consensus (%d) and consensus positive",
			p.OracleAssignment, p.OracleConsensus)
	}

	ledger := surety.Config{
		Owner:        owner,
		FirstAirline: first,
		Bootstrap:    p.BootstrapThreshold,
		Funding:      funding.NewLedger(threshold),
		Pool: insurance.Config{
			Cap:        policyCap,
			Multiplier: ratio,
		},
		Oracles: oracles.Config{
			Threshold:      p.OracleConsensus,
			AssignmentSize: p.OracleAssignment,
			Fee:            fee,
		},
	}
	policy := surety.Policy{
		RequireFundedVoter:   p.RequireFundedVoter,
		RequireFundedFlights: p.RequireFundedFlights,
	}
	return ledger, policy, identity, nil
}

func positiveAmount(key, s string) (decimal.Amount, error) {
	a, err := decimal.NewAmount(s)
	if err != nil {
		return decimal.Zero, fmt.Errorf("%s: %w", key, err)
	}
	if !a.IsPositive() {
		return decimal.Zero, fmt.Errorf("%s must be positive", key)
	}
	return a, nil
}

func normalizeList(in []string) []string {
	var out []string
	for _, s := range in {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}
