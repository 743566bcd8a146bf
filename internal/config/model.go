// internal/config/model.go
//
// Typed configuration model for Canopy.
//
// Context
// -------
// These structs define the shape of the configuration tree that
// `internal/config/loader.go` builds from three overlay layers:
//
//   • optional `.env`                          – dotenv values,
//   • `conf/global.yaml`                       – primary static file,
//   • `CANOPY_`-prefixed environment overrides – highest precedence.
//
// Any value whose string begins with the prefix `vault:` is resolved
// through the Vault client after unmarshalling, so consumers never see
// Vault URIs—only plain strings.
//
// Validation happens immediately after unmarshal; the app fails fast if
// required fields are missing.
//
// Notes
// -----
//   • Struct tags use `koanf:"…"`, not `yaml:"…"`—Koanf ignores `yaml`
//     tags unless configured otherwise.
//   • The `Paths` block is filled at runtime; YAML must not try to set it.
package config

//
// HTTP section
//

// HTTP holds web-server tunables.
type HTTP struct {
	ListenAddr string `koanf:"listen_addr" validate:"required,hostname_port"`
	ForceHTTPS bool   `koanf:"force_https"`
}

//
// Database section
//

// Database holds the shared-database DSN template and its secret.  The
// template stays in YAML so operators can tweak host, port, or flags; the
// password is stored in Vault (`vault:<path>#<key>`) and injected at load
// time.  The DSN may carry one %s verb for the password.
type Database struct {
	DSN      string `koanf:"dsn" validate:"required"`
	Password string `koanf:"password"`
}

//
// Tenancy section
//

// Tenancy configures host matching and the host-map artifact.
type Tenancy struct {
	// StrictSubdomainMatching disables www. stripping on both incoming
	// hosts and stored domains.
	StrictSubdomainMatching bool `koanf:"strict_subdomain_matching"`

	// HostMapPath is where the host → canonical-domain artifact is
	// written.  Empty disables the artifact.
	HostMapPath string `koanf:"hostmap_path"`

	// SubsiteLabel replaces a leading "*." when deriving a canonical
	// domain.  Defaults to "subsite." when empty.
	SubsiteLabel string `koanf:"subsite_label"`

	// ServingHost is the public host name substituted for a trailing
	// ".*" in canonical-domain derivation.  When empty, the host part of
	// http.listen_addr is used; bind-all listeners like ":8080" carry no
	// host, so the substitution is skipped.
	ServingHost string `koanf:"serving_host"`

	// MainSiteTitle labels the synthetic main-site entry in
	// accessible-subsites listings.
	MainSiteTitle string `koanf:"main_site_title"`
}

//
// Geo section
//

// Geo points at the optional GeoLite2 database used for request-log
// enrichment.  Empty path disables geo lookup.
type Geo struct {
	DBPath string `koanf:"db_path"`
}

//
// Paths section (runtime only)
//

// Paths is resolved at runtime—never set in YAML or env.  The loader
// discovers `Root` (repo root or CANOPY_ROOT override) so later code can
// build absolute file paths.
type Paths struct {
	Root string // CANOPY_ROOT or discovered parent
}

//
// Root aggregate
//

// Config is the immutable aggregate returned by Load() and cached in an
// atomic.Pointer for lock-free reads throughout the app lifetime.
type Config struct {
	HTTP     HTTP     `koanf:"http"`
	Database Database `koanf:"database"`
	Tenancy  Tenancy  `koanf:"tenancy"`
	Geo      Geo      `koanf:"geo"`
	Paths    Paths    `koanf:"-"` // not loaded from config files
}
