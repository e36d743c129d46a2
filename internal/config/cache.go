package config

import (
    "strings"
    "time"
)

// CacheConfig defines settings for the response cache middleware, which
// fronts the public review endpoints.  When Enabled is false or no Redis
// client is configured, caching is disabled.  KeyStrategy chooses which
// parts of the request feed the key; MaxBodyBytes caps stored bodies.
type CacheConfig struct {
    Enabled      bool
    Methods      map[string]bool
    TTL          time.Duration
    KeyStrategy  string
    Prefix       string
    MaxBodyBytes int
}

// LoadCacheConfig reads the CACHE_* variables.  Methods are upper-cased.
func LoadCacheConfig() CacheConfig {
    v := newEnv()
    v.SetDefault("CACHE_ENABLED", true)
    v.SetDefault("CACHE_METHODS", "GET")
    v.SetDefault("CACHE_TTL", "30s")
    v.SetDefault("CACHE_KEY_STRATEGY", "route_query")
    v.SetDefault("CACHE_PREFIX", "market:cache")
    v.SetDefault("CACHE_MAX_BODY_BYTES", 1<<20)

    ttl := v.GetDuration("CACHE_TTL")
    if ttl <= 0 {
        ttl = time.Second
    }
    return CacheConfig{
        Enabled:      v.GetBool("CACHE_ENABLED"),
        Methods:      parseMethods(v.GetString("CACHE_METHODS")),
        TTL:          ttl,
        KeyStrategy:  v.GetString("CACHE_KEY_STRATEGY"),
        Prefix:       v.GetString("CACHE_PREFIX"),
        MaxBodyBytes: v.GetInt("CACHE_MAX_BODY_BYTES"),
    }
}

func parseMethods(s string) map[string]bool {
    m := map[string]bool{}
    for _, p := range splitList(s) {
        m[strings.ToUpper(p)] = true
    }
    return m
}
