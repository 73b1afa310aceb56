package config

import (
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newViper(overrides map[string]any) *viper.Viper {
	v := viper.New()
	for key, value := range defaults {
		v.SetDefault(key, value)
	}
	for key, value := range overrides {
		v.Set(key, value)
	}
	return v
}

func TestDecode_Defaults(t *testing.T) {
	cfg, err := decode(newViper(nil))
	require.NoError(t, err)

	assert.Equal(t, "clover", cfg.AppName)
	assert.Equal(t, "postgres", cfg.Store)
	assert.Equal(t, 40, cfg.MatchThreshold)
	assert.Equal(t, 30*time.Second, cfg.SuggestionTimeout)
	assert.Equal(t, 100*time.Millisecond, cfg.KafkaBatchTimeout)
	assert.Empty(t, cfg.KafkaBrokers)
	assert.Empty(t, cfg.KafkaInputTopic)
	assert.Equal(t, "clover", cfg.KafkaConsumerGroup)
	assert.Equal(t, "db/pg", cfg.MigrationFolder())
}

func TestDecode_Overrides(t *testing.T) {
	cfg, err := decode(newViper(map[string]any{
		"STORE":          "sqlite",
		"DB_SQLITE_PATH": "/tmp/clover.db",
		"KAFKA_BROKERS":  "k1:9092, k2:9092",
		"LOCK_BACKEND":   "redis",
	}))
	require.NoError(t, err)

	assert.Equal(t, []string{"k1:9092", "k2:9092"}, cfg.KafkaBrokers)
	assert.Equal(t, "db/sqlite", cfg.MigrationFolder())
	assert.Equal(t, "/tmp/clover.db?_busy_timeout=5000&_foreign_keys=on", cfg.DSN())
}

func TestDecode_Invalid(t *testing.T) {
	tests := map[string]map[string]any{
		"store":     {"STORE": "mongo"},
		"lock":      {"LOCK_BACKEND": "zookeeper"},
		"threshold": {"MATCH_THRESHOLD": 120},
	}
	for name, overrides := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := decode(newViper(overrides))
			assert.Error(t, err)
		})
	}
}
