// internal/config/loader.go
//
// Configuration loader.
//
/*
Context
--------
`Load()` builds one immutable `Config` struct from three layers (highest
precedence last):

  1. Optional `.env` file at `<root>/conf/.env`.
  2. `conf/global.yaml`.
  3. Environment variables prefixed `CANOPY_`, where `__` maps to “.”
     (e.g., `CANOPY_HTTP__LISTEN_ADDR → http.listen_addr`).

After merging, the tree is unmarshalled into strongly-typed structs,
validated, enriched with the runtime root path, and cached in an
`atomic.Pointer` for lock-free reads.  `Reload()` simply calls `Load()`
again and swaps the pointer.

Values of the form `vault:<mount/path>#<key>` are resolved through the
Vault client when one is supplied; without a client such values abort the
load rather than leak a URI into a DSN.

Instrumentation
---------------
  • DEBUG spans — root discovery, YAML read, env overlay.
  • ERROR spans — YAML parse, env overlay, unmarshal, validation failures.
  • INFO  span  — final “config loaded” with key highlights.
  • Logs use the global sugared logger (`zap.S()`) so early boot issues
    surface even before the file logger is installed.

Notes
-----
  • `rootDir()` climbs the cwd tree until it finds `conf/global.yaml`;
    this lets `go run ./cmd/web` work from any sub-directory.
*/
package config

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"time"

	"github.com/joho/godotenv"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	koanf "github.com/knadh/koanf/v2"
	"go.uber.org/zap"

	"github.com/canopycms/canopy/internal/vault"
)

var current atomic.Pointer[Config]

const vaultPrefix = "vault:"

/*──────────────────────────── root discovery ───────────────────────────────*/

// rootDir resolves CANOPY_ROOT or climbs directories until conf/global.yaml
// is found.  Falls back to executable heuristic for production layout.
func rootDir() string {
	if r := os.Getenv("CANOPY_ROOT"); r != "" {
		return r
	}

	wd, _ := os.Getwd()
	dir := wd
	for {
		if _, err := os.Stat(filepath.Join(dir, "conf", "global.yaml")); err == nil {
			return dir
		}
		parent := filepath.Dir(dir)
		if parent == dir { // reached filesystem root
			break
		}
		dir = parent
	}

	exe, _ := os.Executable()
	if filepath.Base(filepath.Dir(exe)) == "bin" {
		return filepath.Dir(filepath.Dir(exe))
	}
	return wd
}

/*─────────────────────────────── loader ───────────────────────────────────*/

// Load reads .env, YAML, env overrides, resolves Vault references,
// validates, and caches Config.  vc may be nil when no value uses the
// `vault:` scheme.
func Load(ctx context.Context, vc *vault.Client) (*Config, error) {
	root := rootDir()
	zap.S().Debugw("config root resolved", "root", root)

	// .env (optional, no error if missing)
	_ = godotenv.Load(filepath.Join(root, "conf", ".env"))

	k := koanf.New(".")

	yamlPath := filepath.Join(root, "conf", "global.yaml")
	if err := k.Load(file.Provider(yamlPath), yaml.Parser()); err != nil {
		zap.S().Errorw("config yaml load failed", "file", yamlPath, "err", err)
		return nil, err
	}
	zap.S().Debugw("config yaml loaded", "file", yamlPath)

	// Env overrides: CANOPY_HTTP__LISTEN_ADDR → http.listen_addr
	if err := k.Load(env.Provider("CANOPY_", ".", func(s string) string {
		return strings.ToLower(strings.ReplaceAll(s, "__", "."))
	}), nil); err != nil {
		zap.S().Errorw("config env overlay failed", "err", err)
		return nil, err
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		zap.S().Errorw("config unmarshal failed", "err", err)
		return nil, err
	}

	if err := resolveSecrets(ctx, vc, &cfg); err != nil {
		zap.S().Errorw("config secret resolution failed", "err", err)
		return nil, err
	}

	cfg.Paths.Root = root
	if err := validateStruct(&cfg); err != nil {
		zap.S().Errorw("config validation failed", "err", err)
		return nil, err
	}

	current.Store(&cfg)
	zap.S().Infow("config loaded",
		"listen_addr", cfg.HTTP.ListenAddr,
		"force_https", cfg.HTTP.ForceHTTPS,
		"strict_subdomains", cfg.Tenancy.StrictSubdomainMatching,
		"root", cfg.Paths.Root,
	)
	return &cfg, nil
}

// resolveSecrets replaces `vault:<path>#<key>` values with the secret they
// point at.  Only the database password uses the scheme today.
func resolveSecrets(ctx context.Context, vc *vault.Client, cfg *Config) error {
	if !strings.HasPrefix(cfg.Database.Password, vaultPrefix) {
		return nil
	}
	if vc == nil {
		return fmt.Errorf("database.password references Vault but no client is configured")
	}
	ref := strings.TrimPrefix(cfg.Database.Password, vaultPrefix)
	path, key, ok := strings.Cut(ref, "#")
	if !ok {
		return fmt.Errorf("malformed vault reference %q (want vault:<path>#<key>)", ref)
	}
	pw, err := vc.GetKV(ctx, path, key, 10*time.Minute)
	if err != nil {
		return err
	}
	cfg.Database.Password = pw
	return nil
}

// BuildDSN fills the one optional %s verb in the DSN template with the
// resolved password.
func (d Database) BuildDSN() string {
	if strings.Contains(d.DSN, "%s") {
		return fmt.Sprintf(d.DSN, d.Password)
	}
	return d.DSN
}

/*──────────────────────────── helpers ─────────────────────────────────────*/

func Get() *Config { return current.Load() }

func Reload(ctx context.Context, vc *vault.Client) error {
	_, err := Load(ctx, vc)
	return err
}
