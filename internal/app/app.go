// Package app wires a configuration into a gin engine serving every configured entity.
package app

import (
	"context"
	"net/http"
	"os"
	"sort"

	"github.com/gin-gonic/gin"
	"github.com/jeremywhuff/restify"
	"github.com/jeremywhuff/restify/executor"
	"github.com/jeremywhuff/restify/internal/config"
	"github.com/jeremywhuff/restify/modules/rpfiles"
	"github.com/jeremywhuff/restify/modules/rpmem"
	"github.com/jeremywhuff/restify/modules/rpmetrics"
	"github.com/jeremywhuff/restify/modules/rpmongo"
	"github.com/jeremywhuff/restify/modules/rpsql"
	"github.com/jeremywhuff/restify/schema"
	"github.com/jeremywhuff/restify/store"
	"github.com/jeremywhuff/restify/transform"
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/time/rate"
)

// MetricsPath serves Prometheus metrics when enabled.
const MetricsPath = "/metrics"

// Mounted is one registered entity route.
type Mounted struct {
	Entity     string
	Method     string
	Path       string
	Operations []executor.Operation
}

type App struct {
	Engine *gin.Engine
	Routes []Mounted

	cfg     *config.Config
	modules *executor.Modules
	closers []func(context.Context) error
}

type definer interface {
	Define(entity string, fields ...schema.Field)
}

// New builds the engine for cfg. When repo is nil the store named by cfg.Store is
// opened, and closed again by Close.
func New(ctx context.Context, cfg *config.Config, repo store.Repository) (*App, error) {

	a := &App{cfg: cfg}

	if repo == nil {
		r, module, err := a.openStore(ctx)
		if err != nil {
			return nil, err
		}
		repo = r
		a.modules = executor.NewModules(module)
	} else {
		a.modules = executor.NewModules()
	}
	a.modules.Install(cfg.Modules...)

	files, err := a.files()
	if err != nil {
		_ = a.Close(ctx)
		return nil, err
	}

	loc, err := cfg.Query.Location()
	if err != nil {
		_ = a.Close(ctx)
		return nil, err
	}

	a.Engine = gin.New()
	a.Engine.Use(gin.Recovery(), restify.RequestID(), restify.CORS(cfg.Server.CORSOrigin))

	var lgrs restify.MultiLogger
	if cfg.Log.Stages {
		lgrs = append(lgrs, restify.DefaultLogger{})
	}
	if cfg.Server.Metrics {
		reg := prometheus.NewRegistry()
		reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
		m := rpmetrics.New(reg)
		lgrs = append(lgrs, m)
		a.Engine.Use(m.Middleware())
		a.Engine.GET(MetricsPath, gin.WrapH(promhttp.HandlerFor(reg, promhttp.HandlerOpts{})))
	}
	if cfg.Server.RateLimit > 0 {
		a.Engine.Use(RateLimit(cfg.Server.RateLimit, cfg.Server.Burst))
	}

	var lgr restify.Logger
	if len(lgrs) > 0 {
		lgr = lgrs
	}

	deps := executor.Deps{Modules: a.modules, Files: files, Location: loc}
	for _, ec := range cfg.Entities {
		if err := a.mount(ctx, ec, repo, deps, lgr); err != nil {
			_ = a.Close(ctx)
			return nil, errors.Wrapf(err, "mounting %s", ec.Entity)
		}
	}

	sort.SliceStable(a.Routes, func(i, j int) bool { return a.Routes[i].Path < a.Routes[j].Path })
	return a, nil
}

func (a *App) mount(ctx context.Context, ec config.EntityConfig, repo store.Repository, deps executor.Deps, lgr restify.Logger) error {

	if d, ok := repo.(definer); ok && len(ec.Fields) > 0 {
		fields, err := ec.DeclaredFields()
		if err != nil {
			return err
		}
		d.Define(ec.Entity, fields...)
	}

	v, err := ec.Variant()
	if err != nil {
		return err
	}

	over, err := ec.ExecutorOptions()
	if err != nil {
		return err
	}
	opts := a.cfg.Query.ExecutorOptions(a.cfg.Language).Merge(over)

	proto, err := executor.New(ctx, v, repo, deps, opts)
	if err != nil {
		return err
	}

	ops := v.Operations
	if len(ops) == 0 {
		ops = []executor.Operation{executor.Read}
	}
	group := a.Engine.Group(ec.Path)
	for _, r := range restify.Mount(group, proto, lgr) {
		a.Routes = append(a.Routes, Mounted{
			Entity:     ec.Entity,
			Method:     r.HttpMethod,
			Path:       joinPath(ec.Path, r.RelativePath),
			Operations: ops,
		})
	}
	return nil
}

func (a *App) openStore(ctx context.Context) (store.Repository, string, error) {

	sc := a.cfg.Store
	switch sc.Driver {
	case "", "memory":
		r := rpmem.New()
		if sc.Fixtures != "" {
			f, err := os.Open(sc.Fixtures)
			if err != nil {
				return nil, "", errors.WithStack(err)
			}
			defer f.Close()
			if err := r.LoadJSON(f); err != nil {
				return nil, "", err
			}
		}
		return r, rpmem.Name, nil

	case "mongo", "mongodb":
		r, err := rpmongo.Connect(ctx, sc.DSN, sc.Database)
		if err != nil {
			return nil, "", err
		}
		a.closers = append(a.closers, r.Close)
		return r, rpmongo.Name, nil
	}

	dialect, err := rpsql.ParseDialect(sc.Driver)
	if err != nil {
		return nil, "", err
	}
	r, err := rpsql.Open(dialect, sc.DSN)
	if err != nil {
		return nil, "", err
	}
	a.closers = append(a.closers, func(context.Context) error { return r.Close() })
	return r, rpsql.Name, nil
}

func (a *App) files() (transform.FileResolver, error) {

	fc := a.cfg.Files
	switch {
	case fc.Endpoint != "":
		r, err := rpfiles.NewMinioResolver(rpfiles.Config{
			Endpoint:        fc.Endpoint,
			AccessKeyID:     fc.AccessKeyID,
			SecretAccessKey: fc.SecretAccessKey,
			UseSSL:          fc.UseSSL,
			Region:          fc.Region,
			Bucket:          fc.Bucket,
			Expiry:          fc.Expiry,
		})
		if err != nil {
			return nil, err
		}
		a.modules.Install(rpfiles.Name)
		return r, nil
	case fc.BaseURL != "":
		a.modules.Install(rpfiles.Name)
		return rpfiles.StaticResolver{BaseURL: fc.BaseURL}, nil
	}
	return nil, nil
}

// Modules lists the installed modules.
func (a *App) Modules() []string {
	return a.modules.Names()
}

// Close releases the store opened by New.
func (a *App) Close(ctx context.Context) error {
	var first error
	for _, c := range a.closers {
		if err := c(ctx); err != nil && first == nil {
			first = err
		}
	}
	a.closers = nil
	return first
}

// RateLimit answers 429 once the process-wide limiter runs dry.
func RateLimit(perSecond float64, burst int) gin.HandlerFunc {

	if burst < 1 {
		burst = 1
	}
	lim := rate.NewLimiter(rate.Limit(perSecond), burst)

	return func(c *gin.Context) {
		if !lim.Allow() {
			c.AbortWithStatusJSON(http.StatusTooManyRequests, restify.H{"error": http.StatusText(http.StatusTooManyRequests)})
			return
		}
		c.Next()
	}
}

func joinPath(base, rel string) string {
	if rel == "/" {
		return base + "/"
	}
	return base + rel
}
