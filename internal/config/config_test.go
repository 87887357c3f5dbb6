package config_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/alpeto9/bitcoin-testnet-k8s-node/internal/config"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := config.Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if cfg.ListenAddr != ":8000" {
		t.Errorf("ListenAddr = %q, want %q", cfg.ListenAddr, ":8000")
	}

	if cfg.ServiceName != "bitcoin-stack" {
		t.Errorf("ServiceName = %q, want %q", cfg.ServiceName, "bitcoin-stack")
	}

	if cfg.RPCPort != 18332 {
		t.Errorf("RPCPort = %d, want 18332", cfg.RPCPort)
	}

	if cfg.MaxReplicas != 10 {
		t.Errorf("MaxReplicas = %d, want 10", cfg.MaxReplicas)
	}

	if cfg.RPCTimeout != 5*time.Second {
		t.Errorf("RPCTimeout = %s, want 5s", cfg.RPCTimeout)
	}

	if cfg.Credentials.Username != "bitcoin" || cfg.Credentials.Password != "bitcoin" {
		t.Errorf("Credentials = %+v, want bitcoin/bitcoin", cfg.Credentials)
	}
}

func TestLoad_FileOverridesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "exporter.yaml")

	raw := []byte(`
listen_addr: ":9100"
service_name: btc-nodes
namespace: payments
rpc_port: 8332
max_replicas: 4
rpc_timeout: 2s
min_collect_interval: 0s
`)
	if writeErr := os.WriteFile(path, raw, 0o600); writeErr != nil {
		t.Fatalf("write config file: %v", writeErr)
	}

	cfg, err := config.Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if cfg.ListenAddr != ":9100" {
		t.Errorf("ListenAddr = %q, want %q", cfg.ListenAddr, ":9100")
	}

	if cfg.ServiceName != "btc-nodes" {
		t.Errorf("ServiceName = %q, want %q", cfg.ServiceName, "btc-nodes")
	}

	if cfg.RPCPort != 8332 {
		t.Errorf("RPCPort = %d, want 8332", cfg.RPCPort)
	}

	if cfg.MinCollectInterval != 0 {
		t.Errorf("MinCollectInterval = %s, want 0", cfg.MinCollectInterval)
	}

	// Fields the file does not mention keep their defaults.
	if cfg.ClusterDomain != "svc.cluster.local" {
		t.Errorf("ClusterDomain = %q, want default", cfg.ClusterDomain)
	}
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := config.Load(filepath.Join(t.TempDir(), "nope.yaml"))
	if err == nil {
		t.Fatal("Load succeeded with a missing config file")
	}
}

func TestLoad_EnvOverridesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "exporter.yaml")

	if writeErr := os.WriteFile(path, []byte("service_name: from-file\n"), 0o600); writeErr != nil {
		t.Fatalf("write config file: %v", writeErr)
	}

	t.Setenv("BITCOIN_SERVICE_NAME", "from-env")
	t.Setenv("BITCOIN_NAMESPACE", "testnet")
	t.Setenv("BITCOIN_PORT", "28332")
	t.Setenv("BITCOIN_MAX_REPLICAS", "3")
	t.Setenv("BITCOIN_USER", "alice")
	t.Setenv("BITCOIN_PASSWORD", "hunter2")

	cfg, err := config.Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if cfg.ServiceName != "from-env" {
		t.Errorf("ServiceName = %q, want env value to win over file", cfg.ServiceName)
	}

	if cfg.Namespace != "testnet" {
		t.Errorf("Namespace = %q, want %q", cfg.Namespace, "testnet")
	}

	if cfg.RPCPort != 28332 {
		t.Errorf("RPCPort = %d, want 28332", cfg.RPCPort)
	}

	if cfg.MaxReplicas != 3 {
		t.Errorf("MaxReplicas = %d, want 3", cfg.MaxReplicas)
	}

	if cfg.Credentials.Username != "alice" || cfg.Credentials.Password != "hunter2" {
		t.Errorf("Credentials = %+v, want alice/hunter2", cfg.Credentials)
	}
}

func TestLoad_SecretFilesWinOverPlainEnv(t *testing.T) {
	dir := t.TempDir()

	userPath := filepath.Join(dir, "username")
	passPath := filepath.Join(dir, "password")

	if writeErr := os.WriteFile(userPath, []byte("vault-user\n"), 0o600); writeErr != nil {
		t.Fatalf("write secret: %v", writeErr)
	}

	if writeErr := os.WriteFile(passPath, []byte("vault-pass\n"), 0o600); writeErr != nil {
		t.Fatalf("write secret: %v", writeErr)
	}

	t.Setenv("BITCOIN_USER", "plain-user")
	t.Setenv("BITCOIN_PASSWORD", "plain-pass")
	t.Setenv("BITCOIN_USER_FILE", userPath)
	t.Setenv("BITCOIN_PASSWORD_FILE", passPath)

	cfg, err := config.Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if cfg.Credentials.Username != "vault-user" {
		t.Errorf("Username = %q, want trimmed file content", cfg.Credentials.Username)
	}

	if cfg.Credentials.Password != "vault-pass" {
		t.Errorf("Password = %q, want trimmed file content", cfg.Credentials.Password)
	}
}

func TestLoad_BadEnvInteger(t *testing.T) {
	t.Setenv("BITCOIN_PORT", "not-a-port")

	_, err := config.Load("")
	if err == nil {
		t.Fatal("Load accepted a non-integer BITCOIN_PORT")
	}
}

func TestLoad_MissingSecretFile(t *testing.T) {
	t.Setenv("BITCOIN_PASSWORD_FILE", filepath.Join(t.TempDir(), "absent"))

	_, err := config.Load("")
	if err == nil {
		t.Fatal("Load accepted an unreadable BITCOIN_PASSWORD_FILE")
	}
}

func TestValidate(t *testing.T) {
	t.Parallel()

	mutations := map[string]func(*config.Config){
		"empty service name":    func(c *config.Config) { c.ServiceName = "" },
		"empty namespace":       func(c *config.Config) { c.Namespace = "" },
		"zero rpc port":         func(c *config.Config) { c.RPCPort = 0 },
		"rpc port too large":    func(c *config.Config) { c.RPCPort = 70000 },
		"zero max replicas":     func(c *config.Config) { c.MaxReplicas = 0 },
		"negative rpc timeout":  func(c *config.Config) { c.RPCTimeout = -time.Second },
		"negative min interval": func(c *config.Config) { c.MinCollectInterval = -time.Second },
	}

	for name, mutate := range mutations {
		name, mutate := name, mutate

		t.Run(name, func(t *testing.T) {
			t.Parallel()

			cfg := config.Default()
			mutate(&cfg)

			if err := cfg.Validate(); err == nil {
				t.Errorf("Validate accepted %s", name)
			}
		})
	}

	t.Run("defaults are valid", func(t *testing.T) {
		t.Parallel()

		cfg := config.Default()
		if err := cfg.Validate(); err != nil {
			t.Errorf("Validate rejected defaults: %v", err)
		}
	})
}

func TestServiceDomain(t *testing.T) {
	t.Parallel()

	cfg := config.Default()
	cfg.ServiceName = "btc"
	cfg.Namespace = "prod"

	want := "btc.prod.svc.cluster.local"
	if got := cfg.ServiceDomain(); got != want {
		t.Errorf("ServiceDomain() = %q, want %q", got, want)
	}
}
