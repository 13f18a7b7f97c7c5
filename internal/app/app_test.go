package app

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/jeremywhuff/restify/internal/config"
	"github.com/jeremywhuff/restify/modules/rpmem"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func init() {
	gin.SetMode(gin.TestMode)
}

const fixtures = `{
	"paysystems": [
		{"NAME": "Cash", "ACTIVE": "Y", "SORT": 20, "LOGOTIP": "cash.png"},
		{"NAME": "Card", "ACTIVE": "Y", "SORT": 10, "LOGOTIP": ""},
		{"NAME": "Old", "ACTIVE": "N", "SORT": 5}
	]
}`

func testConfig(t *testing.T) *config.Config {

	dir := t.TempDir()
	seed := filepath.Join(dir, "fixtures.json")
	require.NoError(t, os.WriteFile(seed, []byte(fixtures), 0o600))

	body := `
server:
  metrics: true
store:
  driver: memory
  fixtures: ` + seed + `
files:
  base_url: https://cdn.example.com/upload
log:
  stages: false
modules: [sale]
entities:
  - entity: paysystems
    modules: [rpmem, rpfiles]
    schema: ["LOGOTIP:file"]
  - entity: basket
    operations: [read, create, delete]
    fields: [PRODUCT_ID:number, NAME, ACTIVE, SORT]
`
	path := filepath.Join(dir, "restify.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))

	cfg, err := config.Load(path)
	require.NoError(t, err)
	return cfg
}

func get(h http.Handler, target string) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, target, nil))
	return w
}

func TestServesConfiguredEntities(t *testing.T) {

	ctx := context.Background()
	a, err := New(ctx, testConfig(t), nil)
	require.NoError(t, err)
	defer a.Close(ctx)

	assert.Equal(t, []string{"rpfiles", "rpmem", "sale"}, a.Modules())

	w := get(a.Engine, "/paysystems/")
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var res struct {
		Result  string           `json:"result"`
		Message []map[string]any `json:"message"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &res))
	require.Len(t, res.Message, 2)
	assert.Equal(t, "Card", res.Message[0]["NAME"])
	assert.Equal(t, "", res.Message[0]["LOGOTIP"])
	assert.Equal(t, map[string]any{
		"ID":  "cash.png",
		"SRC": "https://cdn.example.com/upload/cash.png",
	}, res.Message[1]["LOGOTIP"])

	w = get(a.Engine, "/basket/")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"result":"ok","message":[]}`, w.Body.String())
}

func TestMetricsEndpoint(t *testing.T) {

	ctx := context.Background()
	a, err := New(ctx, testConfig(t), nil)
	require.NoError(t, err)

	get(a.Engine, "/paysystems/1")
	w := get(a.Engine, MetricsPath)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `restify_http_requests_total{method="GET",path="/paysystems/:id",status="200"} 1`)
	assert.Contains(t, w.Body.String(), `restify_stages_total{stage="read_one",success="true"} 1`)
}

func TestRoutesListing(t *testing.T) {

	ctx := context.Background()
	a, err := New(ctx, testConfig(t), nil)
	require.NoError(t, err)

	require.Len(t, a.Routes, 14)
	assert.Equal(t, "/basket/", a.Routes[0].Path)
	assert.Equal(t, "basket", a.Routes[0].Entity)
	assert.Len(t, a.Routes[0].Operations, 3)
}

func TestMissingModuleFails(t *testing.T) {

	cfg := testConfig(t)
	cfg.Entities[0].Modules = append(cfg.Entities[0].Modules, "catalog")

	_, err := New(context.Background(), cfg, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "mounting paysystems")
}

func TestUnknownEntityFails(t *testing.T) {

	cfg := testConfig(t)
	cfg.Entities = append(cfg.Entities, config.EntityConfig{Entity: "orders", Path: "/orders"})

	_, err := New(context.Background(), cfg, nil)
	assert.Error(t, err)
}

func TestGivenRepository(t *testing.T) {

	cfg := testConfig(t)
	cfg.Server.Metrics = false
	cfg.Modules = []string{rpmem.Name}
	cfg.Files.BaseURL = ""
	cfg.Entities = cfg.Entities[1:]

	a, err := New(context.Background(), cfg, rpmem.New())
	require.NoError(t, err)
	assert.Equal(t, []string{"rpmem"}, a.Modules())
	assert.Equal(t, http.StatusNotFound, get(a.Engine, MetricsPath).Code)
}

func TestRateLimit(t *testing.T) {

	r := gin.New()
	r.Use(RateLimit(0.001, 1))
	r.GET("/", func(c *gin.Context) { c.Status(http.StatusOK) })

	assert.Equal(t, http.StatusOK, get(r, "/").Code)
	assert.Equal(t, http.StatusTooManyRequests, get(r, "/").Code)
}
