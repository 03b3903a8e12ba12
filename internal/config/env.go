package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"

	"github.com/subosito/gotenv"
)

// DotEnvFile is read before the configuration file. Variables already present in the
// environment win over the file.
var DotEnvFile = ".env"

// LegacyBrokerEnv names the variable older deployments use to point at Kafka.
const LegacyBrokerEnv = "KAFKA_BROKER"

// DefaultBroker is used when neither the configuration nor LegacyBrokerEnv names a broker.
const DefaultBroker = "localhost:19092"

func loadDotEnv(path string) error {
	if path == "" {
		return nil
	}
	if err := gotenv.Load(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("failed to load %s: %w", path, err)
	}
	return nil
}

// applyLegacyBroker fills sink.options.brokers from LegacyBrokerEnv when the configuration
// names no broker.
func applyLegacyBroker(sink *SinkConfig) {
	if sink.Options == nil {
		sink.Options = make(map[string]any)
	}
	if brokers, ok := sink.Options["brokers"]; ok && brokers != nil && brokers != "" {
		return
	}

	value := os.Getenv(LegacyBrokerEnv)
	if value == "" {
		value = DefaultBroker
	}
	var brokers []string
	for _, b := range strings.Split(value, ",") {
		if b = strings.TrimSpace(b); b != "" {
			brokers = append(brokers, b)
		}
	}
	sink.Options["brokers"] = brokers
}
