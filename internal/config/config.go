// Package config holds runtime settings shared by the cupledger commands.
package config

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/MarkoPoloResearchLab/cupledger/pkg/deposit"
)

const (
	defaultListenAddr     = ":8080"
	defaultStorageURL     = "sqlite:///tmp/cupledger.db"
	defaultAllowedOrigin  = "http://localhost:8000"
	defaultRequestTimeout = 5 * time.Second
	mapSearchBaseURL      = "https://www.google.com/maps/search/"
)

var (
	errDuplicateStore   = errors.New("duplicate store")
	errDuplicateChannel = errors.New("duplicate redeem method")
	errEmptyCatalogName = errors.New("catalog entry name is required")
)

// RedeemChannel describes where a deposit can be redeemed and the app link
// that opens it.
type RedeemChannel struct {
	Name  string `mapstructure:"name"`
	Link  string `mapstructure:"link"`
	Label string `mapstructure:"label"`
}

// Config aggregates runtime settings for the CLI and HTTP server.
type Config struct {
	ListenAddr     string          `mapstructure:"listen_addr"`
	StorageURL     string          `mapstructure:"storage_url"`
	KeyPrefix      string          `mapstructure:"key_prefix"`
	AllowedOrigins []string        `mapstructure:"allowed_origins"`
	RequestTimeout time.Duration   `mapstructure:"request_timeout"`
	Stores         []string        `mapstructure:"stores"`
	RedeemMethods  []RedeemChannel `mapstructure:"redeem_methods"`
}

// DefaultStores lists the stores offered when none are configured.
func DefaultStores() []string {
	return []string{"7-11", "全家", "星巴克"}
}

// DefaultRedeemMethods lists the redemption channels offered when none are configured.
func DefaultRedeemMethods() []RedeemChannel {
	return []RedeemChannel{
		{Name: "7-11", Link: "openpointapp://gofeature?featureId=HOMACB02", Label: "OPENPOINT"},
		{Name: "全家", Link: "familymart://action.go/preorder/myproduct", Label: "全家便利商店"},
		{Name: "Line禮物", Link: "https://line.me/R/shop/gift/category/coffee", Label: "Line 禮物"},
		{Name: "全家酷碰劵", Link: "familymart://action.go/preorder/coupon", Label: "全家酷碰劵"},
		{Name: "遠傳", Link: "fetnet://", Label: "遠傳心生活"},
		{Name: "星巴克", Link: "starbucks://", Label: "星巴克"},
	}
}

// Validate fills defaults and ensures the configuration contains sane values.
func (cfg *Config) Validate() error {
	cfg.ListenAddr = defaultIfEmpty(cfg.ListenAddr, defaultListenAddr)
	cfg.StorageURL = defaultIfEmpty(cfg.StorageURL, defaultStorageURL)
	cfg.KeyPrefix = defaultIfEmpty(cfg.KeyPrefix, deposit.DefaultKeyPrefix)
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = defaultRequestTimeout
	}
	if len(cfg.AllowedOrigins) == 0 {
		cfg.AllowedOrigins = []string{defaultAllowedOrigin}
	}
	if len(cfg.Stores) == 0 {
		cfg.Stores = DefaultStores()
	}
	if len(cfg.RedeemMethods) == 0 {
		cfg.RedeemMethods = DefaultRedeemMethods()
	}

	seenStores := make(map[string]struct{}, len(cfg.Stores))
	for index, store := range cfg.Stores {
		trimmed := strings.TrimSpace(store)
		if trimmed == "" {
			return fmt.Errorf("stores[%d]: %w", index, errEmptyCatalogName)
		}
		if _, exists := seenStores[trimmed]; exists {
			return fmt.Errorf("%w: %s", errDuplicateStore, trimmed)
		}
		seenStores[trimmed] = struct{}{}
		cfg.Stores[index] = trimmed
	}
	seenChannels := make(map[string]struct{}, len(cfg.RedeemMethods))
	for index, channel := range cfg.RedeemMethods {
		channel.Name = strings.TrimSpace(channel.Name)
		if channel.Name == "" {
			return fmt.Errorf("redeem_methods[%d]: %w", index, errEmptyCatalogName)
		}
		if _, exists := seenChannels[channel.Name]; exists {
			return fmt.Errorf("%w: %s", errDuplicateChannel, channel.Name)
		}
		seenChannels[channel.Name] = struct{}{}
		channel.Link = strings.TrimSpace(channel.Link)
		channel.Label = defaultIfEmpty(strings.TrimSpace(channel.Label), channel.Name)
		cfg.RedeemMethods[index] = channel
	}

	if strings.TrimSpace(cfg.ListenAddr) == "" {
		return fmt.Errorf("listen addr is required")
	}
	if strings.TrimSpace(cfg.StorageURL) == "" {
		return fmt.Errorf("storage url is required")
	}
	return nil
}

// RedeemChannel looks up a configured redemption channel by name.
func (cfg Config) RedeemChannel(name string) (RedeemChannel, bool) {
	trimmed := strings.TrimSpace(name)
	for _, channel := range cfg.RedeemMethods {
		if channel.Name == trimmed {
			return channel, true
		}
	}
	return RedeemChannel{}, false
}

// RedeemLink returns the app link for a redemption channel, or "" when unknown.
func (cfg Config) RedeemLink(name string) string {
	channel, ok := cfg.RedeemChannel(name)
	if !ok {
		return ""
	}
	return channel.Link
}

// MapLink returns a Google Maps search link for store, or "" when store is blank.
func MapLink(store string) string {
	trimmed := strings.TrimSpace(store)
	if trimmed == "" {
		return ""
	}
	return mapSearchBaseURL + url.PathEscape(trimmed)
}

func defaultIfEmpty(value string, fallback string) string {
	if strings.TrimSpace(value) == "" {
		return fallback
	}
	return value
}

// ParseAllowedOrigins splits comma-delimited origins into a slice.
func ParseAllowedOrigins(raw string) []string {
	if strings.TrimSpace(raw) == "" {
		return []string{}
	}
	parts := strings.Split(raw, ",")
	normalized := make([]string, 0, len(parts))
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed != "" {
			normalized = append(normalized, trimmed)
		}
	}
	return normalized
}
