package config

import (
	"errors"
	"fmt"
	"path/filepath"
	"time"

	"github.com/spf13/viper"
)

// ErrLoadConfig indicates a failure to read or parse the YAML configuration.
var ErrLoadConfig = errors.New("config load failed")

// Config is the top-level YAML configuration. It is constructed once at
// process start and passed by reference to every component that needs it.
type Config struct {
	Product   ProductConfig   `mapstructure:"product"   yaml:"product"`
	Install   InstallConfig   `mapstructure:"install"   yaml:"install"`
	Backup    BackupConfig    `mapstructure:"backup"    yaml:"backup"`
	Index     IndexConfig     `mapstructure:"index"     yaml:"index"`
	Providers ProvidersConfig `mapstructure:"providers" yaml:"providers"`
	Network   NetworkConfig   `mapstructure:"network"   yaml:"network"`
	Vault     VaultConfig     `mapstructure:"vault"     yaml:"vault"`
}

// ProductConfig names the product being distributed; the archive for
// version X is published as <name>-vX.tar.zst.
type ProductConfig struct {
	Name string `mapstructure:"name" yaml:"name"`
}

// InstallConfig locates the managed install on disk.
type InstallConfig struct {
	Dir       string `mapstructure:"dir"        yaml:"dir"`
	BinSubdir string `mapstructure:"bin_subdir" yaml:"bin_subdir,omitempty"`
}

// BackupConfig holds the backup root. Defaults to <install.dir>/backups.
type BackupConfig struct {
	Dir string `mapstructure:"dir" yaml:"dir,omitempty"`
}

// IndexConfig describes the version-controlled index store and the
// public URL the consumer side fetches versions.json from.
type IndexConfig struct {
	URL       string `mapstructure:"url"        yaml:"url"`
	CloneURL  string `mapstructure:"clone_url"  yaml:"clone_url"`
	Branch    string `mapstructure:"branch"     yaml:"branch,omitempty"`
	LocalPath string `mapstructure:"local_path" yaml:"local_path"`
	RawBase   string `mapstructure:"raw_base"   yaml:"raw_base"`
	Token     string `mapstructure:"token"      yaml:"token,omitempty"`
}

// ProvidersConfig selects and configures the asset providers.
type ProvidersConfig struct {
	// Preferred is the provider name tried first when downloading.
	Preferred string         `mapstructure:"preferred" yaml:"preferred,omitempty"`
	FileHost  FileHostConfig `mapstructure:"filehost"  yaml:"filehost"`
}

// FileHostConfig configures the anonymous-capable HTTP file host.
type FileHostConfig struct {
	APIURL   string `mapstructure:"api_url"   yaml:"api_url"`
	UserHash string `mapstructure:"user_hash" yaml:"user_hash,omitempty"`
}

// NetworkConfig bounds every download/fetch attempt. UploadTimeout is
// the total bound on one asset upload, sized for large archives.
type NetworkConfig struct {
	Timeout       time.Duration `mapstructure:"timeout"        yaml:"timeout,omitempty"`
	UploadTimeout time.Duration `mapstructure:"upload_timeout" yaml:"upload_timeout,omitempty"`
	MaxRetries    int           `mapstructure:"max_retries"    yaml:"max_retries,omitempty"`
	RetryDelay    time.Duration `mapstructure:"retry_delay"    yaml:"retry_delay,omitempty"`
}

// VaultConfig holds connection settings for HashiCorp Vault. When Address
// is empty, provider credentials come from this file instead.
type VaultConfig struct {
	Address  string `mapstructure:"address"   yaml:"address,omitempty"`
	Token    string `mapstructure:"token"     yaml:"token,omitempty"`
	RoleID   string `mapstructure:"role_id"   yaml:"role_id,omitempty"`
	RoleName string `mapstructure:"role_name" yaml:"role_name,omitempty"`
	Mount    string `mapstructure:"mount"     yaml:"mount,omitempty"`
	Path     string `mapstructure:"path"      yaml:"path,omitempty"`
}

// Load reads the configuration from the given YAML file using Viper
// and unmarshals into the Config struct, applying defaults for the
// optional fields.
func (c *Config) Load(path string) error {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")
	v.AutomaticEnv()

	v.SetDefault("install.bin_subdir", "bin")
	v.SetDefault("index.branch", "main")
	v.SetDefault("network.timeout", 10*time.Second)
	v.SetDefault("network.upload_timeout", 10*time.Minute)
	v.SetDefault("network.max_retries", 3)
	v.SetDefault("network.retry_delay", 3*time.Second)
	v.SetDefault("vault.mount", "secret")

	if err := v.ReadInConfig(); err != nil {
		return fmt.Errorf("%w: read config %s: %v", ErrLoadConfig, path, err)
	}

	if err := v.UnmarshalExact(c); err != nil {
		return fmt.Errorf("%w: unmarshal config: %v", ErrLoadConfig, err)
	}

	if c.Backup.Dir == "" && c.Install.Dir != "" {
		c.Backup.Dir = filepath.Join(c.Install.Dir, "backups")
	}

	return nil
}

// BinDir is the install's binary subdirectory, the tree that releases
// are extracted into and backups are taken from.
func (c *Config) BinDir() string {
	return filepath.Join(c.Install.Dir, c.Install.BinSubdir)
}
