// Package config resolves exporter settings from defaults, an optional YAML
// file, and environment variables injected by the deployment (in that order,
// later sources win). Credentials are resolved once here and never reloaded.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Defaults match the values the bitcoin-stack chart injects.
const (
	DefaultListenAddr         = ":8000"
	DefaultServiceName        = "bitcoin-stack"
	DefaultNamespace          = "bitcoin"
	DefaultClusterDomain      = "svc.cluster.local"
	DefaultRPCPort            = 18332
	DefaultMaxReplicas        = 10
	DefaultRPCTimeout         = 5 * time.Second
	DefaultMinCollectInterval = 5 * time.Second
)

// Credentials is the basic-auth pair for the node RPC endpoints. It is loaded
// once at startup from the injected secret and is immutable afterwards.
type Credentials struct {
	Username string
	Password string
}

// Config holds everything the exporter needs to discover and query node pods.
type Config struct {
	// ListenAddr is the address the scrape server binds to.
	ListenAddr string `yaml:"listen_addr"`

	// ServiceName is the headless service (and StatefulSet) name; pod DNS
	// names are derived from it as <name>-<ordinal>.<name>.<namespace>.
	ServiceName string `yaml:"service_name"`

	// Namespace is the Kubernetes namespace the node pods run in.
	Namespace string `yaml:"namespace"`

	// ClusterDomain is the DNS suffix after the namespace.
	ClusterDomain string `yaml:"cluster_domain"`

	// RPCPort is the JSON-RPC port every node pod listens on.
	RPCPort int `yaml:"rpc_port"`

	// MaxReplicas bounds the ordinal walk during discovery.
	MaxReplicas int `yaml:"max_replicas"`

	// RPCTimeout bounds each per-target RPC call. It must stay well below
	// the Prometheus scrape interval (30s by default) so one hung node
	// cannot stall a whole pass.
	RPCTimeout time.Duration `yaml:"rpc_timeout"`

	// MinCollectInterval is the shortest period between two collection
	// passes; scrapes arriving sooner are served the cached snapshot.
	MinCollectInterval time.Duration `yaml:"min_collect_interval"`

	// Credentials never come from the YAML file, only from the environment
	// or mounted secret files.
	Credentials Credentials `yaml:"-"`
}

// Default returns the configuration used when no file and no environment
// overrides are present.
func Default() Config {
	return Config{
		ListenAddr:         DefaultListenAddr,
		ServiceName:        DefaultServiceName,
		Namespace:          DefaultNamespace,
		ClusterDomain:      DefaultClusterDomain,
		RPCPort:            DefaultRPCPort,
		MaxReplicas:        DefaultMaxReplicas,
		RPCTimeout:         DefaultRPCTimeout,
		MinCollectInterval: DefaultMinCollectInterval,
		Credentials: Credentials{
			Username: "bitcoin",
			Password: "bitcoin",
		},
	}
}

// Load resolves the full configuration. path may be empty, in which case only
// defaults and environment variables apply.
func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		raw, readErr := os.ReadFile(path)
		if readErr != nil {
			return Config{}, fmt.Errorf("read config file: %w", readErr)
		}

		if unmarshalErr := yaml.Unmarshal(raw, &cfg); unmarshalErr != nil {
			return Config{}, fmt.Errorf("parse config file %s: %w", path, unmarshalErr)
		}
	}

	if envErr := cfg.applyEnv(); envErr != nil {
		return Config{}, envErr
	}

	if validateErr := cfg.Validate(); validateErr != nil {
		return Config{}, validateErr
	}

	return cfg, nil
}

// applyEnv overlays the BITCOIN_* environment variables the chart injects.
// *_FILE variants point at secret mounts and win over their plain siblings.
func (cfg *Config) applyEnv() error {
	setString(&cfg.ServiceName, "BITCOIN_SERVICE_NAME")
	setString(&cfg.Namespace, "BITCOIN_NAMESPACE")

	if portErr := setInt(&cfg.RPCPort, "BITCOIN_PORT"); portErr != nil {
		return portErr
	}

	if replicasErr := setInt(&cfg.MaxReplicas, "BITCOIN_MAX_REPLICAS"); replicasErr != nil {
		return replicasErr
	}

	setString(&cfg.Credentials.Username, "BITCOIN_USER")
	setString(&cfg.Credentials.Password, "BITCOIN_PASSWORD")

	if fileErr := setFromFile(&cfg.Credentials.Username, "BITCOIN_USER_FILE"); fileErr != nil {
		return fileErr
	}

	if fileErr := setFromFile(&cfg.Credentials.Password, "BITCOIN_PASSWORD_FILE"); fileErr != nil {
		return fileErr
	}

	return nil
}

// Validate rejects configurations the collector cannot operate with.
func (cfg *Config) Validate() error {
	if cfg.ServiceName == "" {
		return fmt.Errorf("config: service name must not be empty")
	}

	if cfg.Namespace == "" {
		return fmt.Errorf("config: namespace must not be empty")
	}

	if cfg.RPCPort <= 0 || cfg.RPCPort > 65535 {
		return fmt.Errorf("config: rpc port %d out of range", cfg.RPCPort)
	}

	if cfg.MaxReplicas <= 0 {
		return fmt.Errorf("config: max replicas must be positive, got %d", cfg.MaxReplicas)
	}

	if cfg.RPCTimeout <= 0 {
		return fmt.Errorf("config: rpc timeout must be positive, got %s", cfg.RPCTimeout)
	}

	if cfg.MinCollectInterval < 0 {
		return fmt.Errorf("config: min collect interval must not be negative, got %s", cfg.MinCollectInterval)
	}

	return nil
}

// ServiceDomain returns the headless-service DNS zone pod names live under,
// e.g. "bitcoin-stack.bitcoin.svc.cluster.local".
func (cfg *Config) ServiceDomain() string {
	return cfg.ServiceName + "." + cfg.Namespace + "." + cfg.ClusterDomain
}

func setString(dst *string, key string) {
	if value, ok := os.LookupEnv(key); ok && value != "" {
		*dst = value
	}
}

func setInt(dst *int, key string) error {
	value, ok := os.LookupEnv(key)
	if !ok || value == "" {
		return nil
	}

	parsed, parseErr := strconv.Atoi(value)
	if parseErr != nil {
		return fmt.Errorf("config: %s=%q is not an integer: %w", key, value, parseErr)
	}

	*dst = parsed

	return nil
}

func setFromFile(dst *string, key string) error {
	path, ok := os.LookupEnv(key)
	if !ok || path == "" {
		return nil
	}

	raw, readErr := os.ReadFile(path)
	if readErr != nil {
		return fmt.Errorf("config: read %s: %w", key, readErr)
	}

	*dst = strings.TrimSpace(string(raw))

	return nil
}
