package config

import (
	"fmt"

	"github.com/caarlos0/env/v11"
)

// ServiceConfig holds deployment settings read from the environment:
// listen addresses and the optional external collaborators (database,
// broker, object store). Unset collaborator endpoints disable the
// corresponding integration.
type ServiceConfig struct {
	// HTTPAddr is the status/API listen address.
	HTTPAddr string `env:"CURBSIGHT_HTTP_ADDR" envDefault:":8080"`
	// IngestAddr is the UDP listen address for detection frames.
	IngestAddr string `env:"CURBSIGHT_INGEST_ADDR" envDefault:":9911"`

	// DBPath is the sqlite database file; empty disables persistence.
	DBPath string `env:"CURBSIGHT_DB_PATH" envDefault:"curbsight.db"`

	// Kafka violation publishing; empty brokers disable it.
	KafkaBrokers []string `env:"CURBSIGHT_KAFKA_BROKERS" envSeparator:","`
	KafkaTopic   string   `env:"CURBSIGHT_KAFKA_TOPIC" envDefault:"curbsight.violations"`

	// MinIO clip archival; empty endpoint disables it.
	MinioEndpoint  string `env:"CURBSIGHT_MINIO_ENDPOINT"`
	MinioAccessKey string `env:"CURBSIGHT_MINIO_ACCESS_KEY"`
	MinioSecretKey string `env:"CURBSIGHT_MINIO_SECRET_KEY"`
	MinioBucket    string `env:"CURBSIGHT_MINIO_BUCKET" envDefault:"curbsight-clips"`
	MinioUseSSL    bool   `env:"CURBSIGHT_MINIO_SSL" envDefault:"false"`

	// EnableSQLConsole exposes the read-only /debug/sql console.
	EnableSQLConsole bool `env:"CURBSIGHT_SQL_CONSOLE" envDefault:"false"`
}

// LoadService parses the service configuration from the environment.
func LoadService() (*ServiceConfig, error) {
	cfg := &ServiceConfig{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("failed to parse environment: %w", err)
	}
	return cfg, nil
}
