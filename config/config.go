package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"jobboard/crypto"
	"jobboard/native/jobs"

	"github.com/BurntSushi/toml"
)

type Config struct {
	RPCAddress           string    `toml:"RPCAddress"`
	DataDir              string    `toml:"DataDir"`
	Backend              string    `toml:"Backend"`
	OperatorKeystorePath string    `toml:"OperatorKeystorePath"`
	MintAuthority        string    `toml:"MintAuthority"`
	JobPolicy            JobPolicy `toml:"JobPolicy"`
}

type JobPolicy struct {
	WorkWindowSeconds   int64 `toml:"WorkWindowSeconds"`
	AllowLateCompletion bool  `toml:"AllowLateCompletion"`
	RefundAnyCaller     bool  `toml:"RefundAnyCaller"`
}

// Policy converts the TOML knobs into the engine policy, falling back to the
// defaults when a field is unset.
func (p JobPolicy) Policy() jobs.Policy {
	policy := jobs.Policy{
		WorkWindow:          time.Duration(p.WorkWindowSeconds) * time.Second,
		AllowLateCompletion: p.AllowLateCompletion,
		RefundAnyCaller:     p.RefundAnyCaller,
	}
	if policy.WorkWindow <= 0 {
		policy.WorkWindow = jobs.DefaultWorkWindow
	}
	return policy
}

// MintAuthorityAddress decodes the configured bech32 mint authority.
func (c *Config) MintAuthorityAddress() ([20]byte, error) {
	var out [20]byte
	addr, err := crypto.DecodeAddress(strings.TrimSpace(c.MintAuthority))
	if err != nil {
		return out, fmt.Errorf("config: invalid MintAuthority: %w", err)
	}
	copy(out[:], addr.Bytes())
	return out, nil
}

// Load loads the configuration from the given path, creating a default file
// (and operator keystore) when none exists yet.
func Load(path string) (*Config, error) {
	cfg := &Config{}
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return createDefault(path)
	}

	if _, err := toml.DecodeFile(path, cfg); err != nil {
		return nil, err
	}

	if err := ensureKeystore(path, cfg); err != nil {
		return nil, err
	}
	if strings.TrimSpace(cfg.RPCAddress) == "" {
		cfg.RPCAddress = ":8080"
	}
	if strings.TrimSpace(cfg.DataDir) == "" {
		cfg.DataDir = "./jobboard-data"
	}
	switch strings.ToLower(strings.TrimSpace(cfg.Backend)) {
	case "":
		cfg.Backend = "leveldb"
	case "leveldb", "bolt", "memory":
		cfg.Backend = strings.ToLower(strings.TrimSpace(cfg.Backend))
	default:
		return nil, fmt.Errorf("config: unknown storage backend %q", cfg.Backend)
	}
	if strings.TrimSpace(cfg.MintAuthority) == "" {
		key, err := crypto.LoadFromKeystore(cfg.OperatorKeystorePath, "")
		if err != nil {
			return nil, fmt.Errorf("config: resolving mint authority: %w", err)
		}
		cfg.MintAuthority = key.PubKey().Address().String()
		if err := persist(path, cfg); err != nil {
			return nil, err
		}
	}

	return cfg, nil
}

func ensureKeystore(configPath string, cfg *Config) error {
	keystorePath := cfg.OperatorKeystorePath
	if keystorePath == "" {
		keystorePath = defaultKeystorePath(configPath)
	}

	if _, err := os.Stat(keystorePath); os.IsNotExist(err) {
		key, genErr := crypto.GeneratePrivateKey()
		if genErr != nil {
			return genErr
		}
		if err := crypto.SaveToKeystore(keystorePath, key, ""); err != nil {
			return err
		}
	} else if err != nil {
		return err
	}

	if cfg.OperatorKeystorePath != keystorePath {
		cfg.OperatorKeystorePath = keystorePath
		return persist(configPath, cfg)
	}

	return nil
}

// createDefault creates and saves a default configuration file. The freshly
// generated operator key doubles as the initial mint authority.
func createDefault(path string) (*Config, error) {
	key, err := crypto.GeneratePrivateKey()
	if err != nil {
		return nil, err
	}

	keystorePath := defaultKeystorePath(path)
	if err := crypto.SaveToKeystore(keystorePath, key, ""); err != nil {
		return nil, err
	}

	cfg := &Config{
		RPCAddress:           ":8080",
		DataDir:              "./jobboard-data",
		Backend:              "leveldb",
		OperatorKeystorePath: keystorePath,
		MintAuthority:        key.PubKey().Address().String(),
		JobPolicy: JobPolicy{
			WorkWindowSeconds:   int64(jobs.DefaultWorkWindow / time.Second),
			AllowLateCompletion: true,
		},
	}

	if err := persist(path, cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}

func persist(path string, cfg *Config) error {
	dir := filepath.Dir(path)
	if dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_TRUNC|os.O_CREATE, 0o644)
	if err != nil {
		return err
	}
	defer f.Close()

	return toml.NewEncoder(f).Encode(cfg)
}

func defaultKeystorePath(configPath string) string {
	dir := filepath.Dir(configPath)
	if dir == "." || dir == "" {
		dir = ""
	}
	return filepath.Join(dir, "operator.keystore")
}
