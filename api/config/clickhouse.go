package config

import (
	"os"

	"github.com/malbeclabs/biox/indexer/pkg/clickhouse"
)

// ClickHouseFromEnv reads CLICKHOUSE_* variables. ok is false when no address is
// set, in which case the event analytics endpoints are disabled.
func ClickHouseFromEnv() (cfg clickhouse.Config, ok bool) {
	cfg = clickhouse.Config{
		Addr:     os.Getenv("CLICKHOUSE_ADDR_TCP"),
		Database: os.Getenv("CLICKHOUSE_DATABASE"),
		Username: os.Getenv("CLICKHOUSE_USERNAME"),
		Password: os.Getenv("CLICKHOUSE_PASSWORD"),
		Secure:   os.Getenv("CLICKHOUSE_SECURE") == "true",
	}
	return cfg, cfg.Addr != ""
}
