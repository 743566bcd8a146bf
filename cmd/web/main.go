// cmd/web/main.go
//
// Canopy – HTTP entry point.
//
// Request life-cycle
// ------------------
//
//  1. Load env vars (jail-wide file → .env fallback).
//
//  2. Start daily rotating logger (tees to console when running in a TTY).
//
//  3. Build Vault client when VAULT_ADDR is set, then load typed config.
//
//  4. Open the shared database and log configured-subsite count.
//
//  5. Build the tenancy engine and prime the host-map artifact.
//
//  6. Assemble the chi router: request-info enrichment → security headers
//     → HTTPS enforcement → subsite resolution → handlers.
//
//  7. Handlers:
//
//     • /healthz            – liveness probe
//     • /metrics            – Prometheus registry
//     • /admin/subsites     – accessible subsites for a member (JSON)
//     • /admin/duplicate    – instantiate a subsite from a template
//     • /                   – echoes the resolved subsite (placeholder
//       until the content renderer lands)
package main

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"os"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/canopycms/canopy/internal/config"
	"github.com/canopycms/canopy/internal/content"
	"github.com/canopycms/canopy/internal/database"
	"github.com/canopycms/canopy/internal/logger"
	"github.com/canopycms/canopy/internal/middleware"
	"github.com/canopycms/canopy/internal/requestinfo"
	"github.com/canopycms/canopy/internal/server"
	"github.com/canopycms/canopy/internal/subsite"
	"github.com/canopycms/canopy/internal/tenancy"
	"github.com/canopycms/canopy/internal/vault"
)

const serverEnvPath = "/usr/local/etc/canopy/global.env"

// loadEnv prefers the jail-wide env file; on dev it falls back to .env.
func loadEnv() {
	if _, err := os.Stat(serverEnvPath); err == nil {
		_ = godotenv.Load(serverEnvPath)
		return
	}
	_ = godotenv.Load()
}

// runningInTTY returns true when stdout is a character device.
func runningInTTY() bool {
	fi, err := os.Stdout.Stat()
	if err != nil {
		return false
	}
	return fi.Mode()&os.ModeCharDevice != 0
}

func init() { loadEnv() }

func main() {
	ctx := context.Background()

	rootDir, _ := os.Getwd()
	logOut, err := logger.New(rootDir, runningInTTY())
	if err != nil {
		log.Fatalf("start logger: %v", err)
	}

	//
	// ── 1.  Config (with optional Vault secret resolution) ─────────────
	//
	var vc *vault.Client
	if os.Getenv("VAULT_ADDR") != "" {
		vc, err = vault.New(ctx, logOut.Infof)
		if err != nil {
			logOut.Fatalf("vault client: %v", err)
		}
	}
	cfg, err := config.Load(ctx, vc)
	if err != nil {
		logOut.Fatalf("load config: %v", err)
	}

	if cfg.Geo.DBPath != "" {
		if err := requestinfo.InitGeo(cfg.Geo.DBPath); err != nil {
			logOut.Warnw("geo lookup disabled", "path", cfg.Geo.DBPath, "err", err)
		}
	}

	//
	// ── 2.  Shared DB connect ──────────────────────────────────────────
	//
	db, err := database.Open(ctx, cfg.Database.BuildDSN())
	if err != nil {
		logOut.Fatalf("connect database: %v", err)
	}
	defer db.Close()
	logOut.Infow("database online")

	// Log configured-subsite count as an early sanity check.
	if sites, err := subsite.AllConfigured(ctx, db); err == nil {
		logOut.Infof("%d configured subsite(s) found", len(sites))
	}

	//
	// ── 3.  Tenancy engine ─────────────────────────────────────────────
	//
	engine := tenancy.NewEngine(db, tenancy.Options{
		StrictSubdomainMatching: cfg.Tenancy.StrictSubdomainMatching,
		HostMapPath:             cfg.Tenancy.HostMapPath,
		SubsiteLabel:            cfg.Tenancy.SubsiteLabel,
		MainSiteTitle:           cfg.Tenancy.MainSiteTitle,
	})
	engine.HostMap.ServingHost = tenancy.ServingHostFrom(
		cfg.Tenancy.ServingHost, cfg.HTTP.ListenAddr)
	if _, err := engine.HostMap.Rebuild(ctx); err != nil {
		logOut.Warnw("initial hostmap rebuild failed", "err", err)
	}

	duplicator := tenancy.NewDuplicator(&content.Store{DB: db}, engine.NewContext(nil))

	//
	// ── 4.  Router ─────────────────────────────────────────────────────
	//
	r := chi.NewRouter()
	r.Use(requestinfo.Enrich)
	r.Use(middleware.Security)

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())

	r.Get("/admin/subsites", adminSubsites(engine))
	r.Post("/admin/duplicate", adminDuplicate(engine, duplicator))

	r.Get("/", func(w http.ResponseWriter, req *http.Request) {
		id, _ := middleware.SubsiteID(req.Context())
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"host":    req.Host,
			"subsite": id,
		})
	})

	var handler http.Handler = middleware.Resolve(engine, r)
	if cfg.HTTP.ForceHTTPS {
		handler = middleware.ForceHTTPS(knownHosts{engine.Resolver}, handler)
	}

	srv := server.New(cfg.HTTP.ListenAddr, handler)
	logOut.Infof("listening on %s", cfg.HTTP.ListenAddr)
	if err := server.Run(srv); err != nil {
		logOut.Fatalf("http server: %v", err)
	}
	logOut.Infow("server drained, shutting down")
}

//
// ── handlers ───────────────────────────────────────────────────────────
//

// adminSubsites lists the subsites a member can reach with the CMS access
// code.  Member ID arrives as ?member=; production wires this to the
// authenticated principal instead.
func adminSubsites(engine *tenancy.Engine) http.HandlerFunc {
	return func(w http.ResponseWriter, req *http.Request) {
		memberID, err := strconv.ParseUint(req.URL.Query().Get("member"), 10, 64)
		if err != nil {
			http.Error(w, "member parameter required", http.StatusBadRequest)
			return
		}
		sites, err := engine.Access.AccessibleSubsites(req.Context(), memberID,
			[]string{"CMS_ACCESS_CMSMain"}, true, engine.MainSiteTitle())
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(sites)
	}
}

// adminDuplicate instantiates a new subsite from a template:
// POST /admin/duplicate?template=<id>&title=<title>
func adminDuplicate(engine *tenancy.Engine, d *tenancy.Duplicator) http.HandlerFunc {
	return func(w http.ResponseWriter, req *http.Request) {
		templateID, err := strconv.ParseUint(req.URL.Query().Get("template"), 10, 64)
		if err != nil {
			http.Error(w, "template parameter required", http.StatusBadRequest)
			return
		}
		title := req.URL.Query().Get("title")
		if title == "" {
			http.Error(w, "title parameter required", http.StatusBadRequest)
			return
		}

		template, err := subsite.ByID(req.Context(), engine.DB, templateID)
		if err != nil {
			http.Error(w, err.Error(), http.StatusNotFound)
			return
		}

		rec, err := d.Instantiate(req.Context(), engine.Subsites, template, title)
		if err != nil {
			// Partial clones stay persisted; report and let the operator
			// clean up or re-run.
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(rec)
	}
}

//
// ── helpers ────────────────────────────────────────────────────────────
//

// knownHosts adapts the resolver to middleware.HostChecker.
type knownHosts struct {
	res *tenancy.Resolver
}

func (k knownHosts) KnownHost(host string) bool {
	id, err := k.res.Resolve(context.Background(), host)
	return err == nil && id != subsite.MainSiteID
}
