// Package config loads the gateway and tenant-worker binaries'
// configuration: a YAML file for structural settings, overridable by
// CLI flags and (for the worker) environment variables, mirroring the
// flag-first style `cmd/main-worker/main.go` uses but adding the YAML
// layer spec.md's multi-binary deployment needs.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/JoshuaRamirez/acs-gateway/internal/tenancy"
)

// GatewayConfig is cmd/gateway's full configuration, loaded from a
// YAML file (--config <path>) and layered with CLI flag overrides.
type GatewayConfig struct {
	HTTPAddr    string            `yaml:"httpAddr"`
	MetricsAddr string            `yaml:"metricsAddr"`

	JWTSecret string `yaml:"jwtSecret"`
	JWTIssuer string `yaml:"jwtIssuer"`

	MinPort            int           `yaml:"minPort"`
	MaxPort            int           `yaml:"maxPort"`
	HealthPollAttempts int           `yaml:"healthPollAttempts"`
	HealthPollInterval time.Duration `yaml:"healthPollInterval"`
	StopTimeout        time.Duration `yaml:"stopTimeout"`
	WorkerBinary       string        `yaml:"workerBinary"`

	SchemaTemplatesPath string `yaml:"schemaTemplatesPath"`
	DevDefaultTenant    string `yaml:"devDefaultTenant"`

	// MasterKeyHex, when set, is handed to every spawned tenant worker
	// via ACS_MASTER_KEY so its KeyStore can decrypt keys a prior
	// worker instance wrapped and persisted under the same key.
	MasterKeyHex string `yaml:"masterKeyHex"`
	KeyStorePath string `yaml:"keyStorePath"`

	// TenantCatalogPath, when set, backs the tenant registry with
	// persistent storage: tenants added at runtime through the admin
	// endpoints survive a gateway restart, overlaid on top of Tenants.
	TenantCatalogPath string `yaml:"tenantCatalogPath"`

	Tenants []tenancy.Descriptor `yaml:"tenants"`
}

// DefaultGatewayConfig returns the zero-value-free defaults spec.md
// names for the gateway (port range, health poll cadence, stop
// timeout), matching internal/process.Options' own defaults.
func DefaultGatewayConfig() GatewayConfig {
	return GatewayConfig{
		HTTPAddr:           ":8080",
		MetricsAddr:        ":9090",
		JWTIssuer:          "acs-gateway",
		MinPort:            5001,
		MaxPort:            5100,
		HealthPollAttempts: 30,
		HealthPollInterval: time.Second,
		StopTimeout:        5 * time.Second,
		WorkerBinary:       "./tenant-worker",
	}
}

// LoadGatewayConfig reads a YAML file at path into the defaults. An
// empty path returns the defaults unmodified, so a gateway can run
// without a config file for local development.
func LoadGatewayConfig(path string) (GatewayConfig, error) {
	cfg := DefaultGatewayConfig()
	if path == "" {
		return cfg, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("config: reading %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("config: parsing %s: %w", path, err)
	}
	return cfg, nil
}

// TenantWorkerConfig is cmd/tenant-worker's configuration: a tenant id
// and RPC port, resolved from CLI flags with environment variables
// (TENANT_ID, RPC_PORT) as a fallback — the mechanism
// TenantProcessManager relies on when it spawns a worker with only
// environment variables set.
type TenantWorkerConfig struct {
	TenantID     string `yaml:"tenantId"`
	RPCAddr      string `yaml:"rpcAddr"`
	MetricsAddr  string `yaml:"metricsAddr"`
	KeyStorePath string `yaml:"keyStorePath"`
	MasterKeyHex string `yaml:"masterKeyHex"`
}

// ResolveTenantWorkerConfig layers flag values over TENANT_ID/RPC_PORT
// environment variables: an explicit non-empty flag value wins,
// otherwise the environment variable is used.
func ResolveTenantWorkerConfig(flagTenantID, flagPort string) TenantWorkerConfig {
	tenantID := flagTenantID
	if tenantID == "" {
		tenantID = os.Getenv("TENANT_ID")
	}
	port := flagPort
	if port == "" {
		port = os.Getenv("RPC_PORT")
	}
	return TenantWorkerConfig{
		TenantID: tenantID,
		RPCAddr:  ":" + port,
	}
}
