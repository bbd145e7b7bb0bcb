package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// Config holds configuration values loaded from flags, env, or config file.
type Config struct {
	RPCURL       string
	PGDSN        string
	Out          string
	Events       string
	StateFile    string
	LogLevel     string
	MaxRetries   int
	RetryBackoff time.Duration

	// Vault custodies deposited liquidity, Custody holds order inputs
	// awaiting settlement, and PoolAccount is the external pool's
	// settlement account.
	Vault       string
	Custody     string
	PoolAccount string
	Venue       string

	DecayRatePpm uint64
	DecayCapPpm  uint64

	// Pools maps "tokenA:tokenB" to the pool contract custodying both
	// reserves; used with an RPC endpoint.
	Pools map[string]string
	// Reserves maps "tokenA:tokenB" to "reserveA:reserveB" native-unit
	// amounts; used without an RPC endpoint for dry runs.
	Reserves map[string]string
	// Tokens maps token addresses to decimal counts, overriding or
	// replacing on-chain lookups.
	Tokens map[string]string
}

// Load merges config file, environment variables, and flags into Config.
func Load(cfgFile string, flags *pflag.FlagSet) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("CORE")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	v.SetDefault("out", "./data/history.jsonl")
	v.SetDefault("events", "./data/events.jsonl")
	v.SetDefault("state-file", "./data/state.json")
	v.SetDefault("venue", "internal")
	v.SetDefault("max-retries", 5)
	v.SetDefault("retry-backoff", 500*time.Millisecond)
	v.SetDefault("log-level", "info")

	if flags != nil {
		if err := v.BindPFlags(flags); err != nil {
			return Config{}, fmt.Errorf("bind flags: %w", err)
		}
	}

	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	} else {
		v.SetConfigName("config")
		v.AddConfigPath(".")
		if err := v.ReadInConfig(); err != nil {
			if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
				return Config{}, fmt.Errorf("read config: %w", err)
			}
		}
	}

	cfg := Config{
		RPCURL:       v.GetString("rpc"),
		PGDSN:        v.GetString("pg-dsn"),
		Out:          v.GetString("out"),
		Events:       v.GetString("events"),
		StateFile:    v.GetString("state-file"),
		LogLevel:     v.GetString("log-level"),
		MaxRetries:   v.GetInt("max-retries"),
		RetryBackoff: v.GetDuration("retry-backoff"),
		Vault:        v.GetString("vault"),
		Custody:      v.GetString("custody"),
		PoolAccount:  v.GetString("pool-account"),
		Venue:        v.GetString("venue"),
		DecayRatePpm: v.GetUint64("decay-rate-ppm"),
		DecayCapPpm:  v.GetUint64("decay-cap-ppm"),
		Pools:        getStringMap(v, "pools"),
		Reserves:     getStringMap(v, "reserves"),
		Tokens:       getStringMap(v, "tokens"),
	}

	return cfg, nil
}

func getStringMap(v *viper.Viper, key string) map[string]string {
	if !v.IsSet(key) {
		return map[string]string{}
	}

	val := v.Get(key)
	switch typed := val.(type) {
	case map[string]string:
		return typed
	case map[string]interface{}:
		out := make(map[string]string, len(typed))
		for k, v := range typed {
			out[k] = fmt.Sprintf("%v", v)
		}
		return out
	case string:
		return parseStringMap(typed)
	default:
		return map[string]string{}
	}
}

func parseStringMap(input string) map[string]string {
	out := make(map[string]string)
	if strings.TrimSpace(input) == "" {
		return out
	}
	pairs := strings.Split(input, ",")
	for _, pair := range pairs {
		parts := strings.SplitN(pair, "=", 2)
		if len(parts) != 2 {
			continue
		}
		key := strings.TrimSpace(parts[0])
		value := strings.TrimSpace(parts[1])
		if key == "" || value == "" {
			continue
		}
		out[key] = value
	}
	return out
}
