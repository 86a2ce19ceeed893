package routes

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mongoscan/internal/apis/handlers"
	"mongoscan/internal/apis/middlewares"
	"mongoscan/internal/catalog"
	"mongoscan/internal/middleware"
	"mongoscan/internal/services"
	"mongoscan/internal/storetest"
	"mongoscan/internal/utils"
	"mongoscan/pkg/dbmanager"
	"mongoscan/pkg/scan"
	"mongoscan/pkg/schema"
)

type envelope struct {
	Success bool            `json:"success"`
	Error   *string         `json:"error"`
	Data    json.RawMessage `json:"data"`
}

func newRouter(t *testing.T, jwt utils.JWTService) (*gin.Engine, *storetest.Store) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	store := storetest.New()
	store.Insert("shop", "customers",
		storetest.Doc("_id", int32(1), "name", "Ada", "city", "Paris"),
		storetest.Doc("_id", int32(2), "name", "Grace", "city", "Lyon"),
		storetest.Doc("_id", int32(3), "name", "Alan", "city", "Paris"),
	)
	manager := dbmanager.NewManager(store, dbmanager.PoolOptions{MaxConnections: 1})
	t.Cleanup(func() { _ = manager.Stop() })
	engine := scan.NewEngine(manager, schema.NewRegistries(manager, nil, schema.DefaultOptions()), scan.DefaultOptions())

	cat := catalog.New()
	require.NoError(t, cat.Add(catalog.TableDef{Name: "customers", Locator: "mongodb://localhost/shop/customers"}))
	require.NoError(t, cat.Add(catalog.TableDef{Name: "ghosts", Locator: "mongodb://localhost/shop/ghosts"}))

	router := gin.New()
	router.Use(middleware.CustomRecoveryMiddleware())
	group := router.Group("/api")
	if jwt != nil {
		group.Use(middlewares.BearerAuth(jwt))
	}
	RegisterTableRoutes(group, handlers.NewTableHandler(services.NewTableService(engine, cat)))
	router.GET("/panic", func(c *gin.Context) { panic("boom") })
	return router, store
}

func do(t *testing.T, router *gin.Engine, method, path, body string, header map[string]string) (int, envelope) {
	t.Helper()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range header {
		req.Header.Set(k, v)
	}
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	var env envelope
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &env), w.Body.String())
	return w.Code, env
}

func TestScanEndpoint(t *testing.T) {
	router, _ := newRouter(t, nil)

	code, env := do(t, router, http.MethodPost, "/api/tables/customers/scan",
		`{"where":{"op":"eq","field":"city","value":"Paris"},"columns":["name"]}`, nil)
	require.Equal(t, http.StatusOK, code)
	assert.True(t, env.Success)

	var data struct {
		Columns  []string        `json:"columns"`
		Rows     [][]interface{} `json:"rows"`
		Pushdown struct {
			Pushed bool `json:"pushed"`
		} `json:"pushdown"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &data))
	assert.Equal(t, []string{"name"}, data.Columns)
	assert.Equal(t, [][]interface{}{{"Ada"}, {"Alan"}}, data.Rows)
	assert.True(t, data.Pushdown.Pushed)

	code, env = do(t, router, http.MethodPost, "/api/tables/customers/scan", "", nil)
	require.Equal(t, http.StatusOK, code)
	require.NoError(t, json.Unmarshal(env.Data, &data))
	assert.Len(t, data.Rows, 3)
}

func TestCountEndpoint(t *testing.T) {
	router, _ := newRouter(t, nil)

	code, env := do(t, router, http.MethodPost, "/api/tables/customers/count",
		`{"where":{"op":"or","args":[{"op":"eq","field":"city","value":"Lyon"},{"op":"like","field":"name","value":"Al%"}]}}`, nil)
	require.Equal(t, http.StatusOK, code)

	var data struct {
		Count int64  `json:"count"`
		Mode  string `json:"mode"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &data))
	assert.Equal(t, int64(2), data.Count)
	assert.Equal(t, "rows", data.Mode)
}

func TestErrorStatuses(t *testing.T) {
	router, store := newRouter(t, nil)

	code, env := do(t, router, http.MethodPost, "/api/tables/nope/scan", "", nil)
	assert.Equal(t, http.StatusNotFound, code)
	assert.False(t, env.Success)
	require.NotNil(t, env.Error)

	code, _ = do(t, router, http.MethodPost, "/api/tables/customers/scan", `{"limit":"ten"}`, nil)
	assert.Equal(t, http.StatusBadRequest, code)

	store.SetPingErr(assert.AnError)
	code, _ = do(t, router, http.MethodPost, "/api/tables/customers/count", "", nil)
	assert.Equal(t, http.StatusBadGateway, code)

	code, env = do(t, router, http.MethodGet, "/panic", "", nil)
	assert.Equal(t, http.StatusInternalServerError, code)
	assert.False(t, env.Success)
}

func TestSchemaAndPoolEndpoints(t *testing.T) {
	router, store := newRouter(t, nil)

	code, env := do(t, router, http.MethodGet, "/api/tables/customers/schema", "", nil)
	require.Equal(t, http.StatusOK, code)
	var schemaData struct {
		Namespace string `json:"namespace"`
		Fields    []struct {
			Column string `json:"column"`
			Type   string `json:"type"`
		} `json:"fields"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &schemaData))
	assert.Equal(t, "shop.customers", schemaData.Namespace)
	require.Len(t, schemaData.Fields, 2)
	assert.Equal(t, "name", schemaData.Fields[0].Column)
	assert.Equal(t, "VARCHAR", schemaData.Fields[0].Type)

	code, _ = do(t, router, http.MethodDelete, "/api/tables/customers/schema", "", nil)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, 2, store.Counts().Samples)

	code, env = do(t, router, http.MethodGet, "/api/pools", "", nil)
	require.Equal(t, http.StatusOK, code)
	var pools []struct {
		Key  string `json:"key"`
		Idle int    `json:"idle"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &pools))
	require.Len(t, pools, 1)
	assert.Equal(t, 1, pools[0].Idle)

	code, _ = do(t, router, http.MethodPost, "/api/pools/reconnect", "", nil)
	assert.Equal(t, http.StatusOK, code)

	code, env = do(t, router, http.MethodGet, "/api/tables", "", nil)
	require.Equal(t, http.StatusOK, code)
	var tables []struct {
		Name string `json:"name"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &tables))
	assert.Len(t, tables, 2)
}

func TestBearerAuth(t *testing.T) {
	jwt := utils.NewJWTService("s3cret", time.Hour)
	router, _ := newRouter(t, jwt)

	code, _ := do(t, router, http.MethodGet, "/api/tables", "", nil)
	assert.Equal(t, http.StatusUnauthorized, code)

	code, _ = do(t, router, http.MethodGet, "/api/tables", "", map[string]string{"Authorization": "Token abc"})
	assert.Equal(t, http.StatusUnauthorized, code)

	code, _ = do(t, router, http.MethodGet, "/api/tables", "", map[string]string{"Authorization": "Bearer abc"})
	assert.Equal(t, http.StatusUnauthorized, code)

	token, err := jwt.GenerateToken("reporting")
	require.NoError(t, err)
	code, env := do(t, router, http.MethodGet, "/api/tables", "", map[string]string{"Authorization": "Bearer " + *token})
	assert.Equal(t, http.StatusOK, code)
	assert.True(t, env.Success)
}
