package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"

	"github.com/SherClockHolmes/webpush-go"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"production-tracker-backend/config"
	"production-tracker-backend/internal/dbtest"
	"production-tracker-backend/internal/logger"
	"production-tracker-backend/internal/metrics"
	"production-tracker-backend/internal/model"
	"production-tracker-backend/internal/movement"
	"production-tracker-backend/internal/mw"
	"production-tracker-backend/internal/store"
)

type testEnv struct {
	t      *testing.T
	db     *gorm.DB
	store  store.Store
	router *gin.Engine
}

func testServerConfig() config.ServerConfig {
	return config.ServerConfig{
		RateLimitPerSec: 1000,
		RateLimitBurst:  1000,
		CacheTTLSeconds: 60,
		DedupTTLSeconds: 60,
	}
}

func newTestEnv(t *testing.T) *testEnv {
	return newTestEnvWith(t, testServerConfig(), nil)
}

func newTestEnvWith(t *testing.T, server config.ServerConfig, push *webpush.Options) *testEnv {
	t.Helper()
	gin.SetMode(gin.TestMode)

	gdb := dbtest.Open(t)
	s := store.NewGormStore(gdb)
	collector := metrics.NewCollector(nil)
	return &testEnv{
		t:     t,
		db:    gdb,
		store: s,
		router: NewRouter(Deps{
			Store:   s,
			Engine:  movement.NewEngine(s, nil, collector, logger.Nop()),
			WebPush: push,
			Metrics: collector,
			Log:     logger.Nop(),
			Server:  server,
		}),
	}
}

func (e *testEnv) do(method, path, body string, headers map[string]string) *httptest.ResponseRecorder {
	e.t.Helper()
	req := httptest.NewRequest(method, path, bytes.NewReader([]byte(body)))
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)
	return w
}

func (e *testEnv) created(path, body string) map[string]any {
	e.t.Helper()
	w := e.do(http.MethodPost, path, body, nil)
	require.Equal(e.t, http.StatusCreated, w.Code, w.Body.String())
	var out map[string]any
	require.NoError(e.t, json.Unmarshal(w.Body.Bytes(), &out))
	return out
}

func (e *testEnv) createProduct(name string) int64 {
	return int64(e.created("/api/products", `{"name":"`+name+`"}`)["id"].(float64))
}

func (e *testEnv) createProcess(productID int64, fields string) int64 {
	return int64(e.created("/api/processes", `{"product_id":`+itoa(productID)+`,`+fields+`}`)["id"].(float64))
}

func (e *testEnv) createEdge(source, target int64) {
	e.created("/api/edges", `{"source_id":`+itoa(source)+`,"target_id":`+itoa(target)+`}`)
}

func (e *testEnv) createPlace(processID int64, name string) {
	e.created("/api/places", `{"name":"`+name+`","process_id":`+itoa(processID)+`}`)
}

func (e *testEnv) movement(actor, body string) *httptest.ResponseRecorder {
	return e.do(http.MethodPost, "/api/movements", body, map[string]string{mw.ActorHeader: actor})
}

func itoa(v int64) string { return strconv.FormatInt(v, 10) }

func decodeError(t *testing.T, w *httptest.ResponseRecorder) (code, message string) {
	t.Helper()
	var body struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	return body.Code, body.Message
}

// line is a two-step routing: Cutting (start) -> Welding.
type line struct {
	productID, cutting, welding int64
}

func (e *testEnv) line() line {
	l := line{productID: e.createProduct("Frame")}
	l.cutting = e.createProcess(l.productID, `"label":"Cutting","order":1,"kind":"start"`)
	l.welding = e.createProcess(l.productID, `"label":"Welding","order":2,"kind":"default"`)
	e.createEdge(l.cutting, l.welding)
	e.createPlace(l.cutting, "CUT-1")
	e.createPlace(l.welding, "WELD-1")
	return l
}

func TestHealthz(t *testing.T) {
	env := newTestEnv(t)
	w := env.do(http.MethodGet, "/healthz", "", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"status":"ok"}`, w.Body.String())
}

func TestRequestIDHeader(t *testing.T) {
	env := newTestEnv(t)
	w := env.do(http.MethodGet, "/healthz", "", map[string]string{mw.RequestIDHeader: "req-42"})
	assert.Equal(t, "req-42", w.Header().Get(mw.RequestIDHeader))
}

func TestCatalogEndpoints(t *testing.T) {
	env := newTestEnv(t)
	productID := env.createProduct("Frame")

	t.Run("duplicate product", func(t *testing.T) {
		w := env.do(http.MethodPost, "/api/products", `{"name":"Frame"}`, nil)
		assert.Equal(t, http.StatusConflict, w.Code)
	})

	t.Run("missing name", func(t *testing.T) {
		w := env.do(http.MethodPost, "/api/products", `{}`, nil)
		assert.Equal(t, http.StatusBadRequest, w.Code)
		assert.JSONEq(t, `{"error":"invalid request"}`, w.Body.String())
	})

	t.Run("unknown settings kind", func(t *testing.T) {
		w := env.do(http.MethodPost, "/api/processes", `{"product_id":`+itoa(productID)+`,"label":"Paint","kind":"sometimes"}`, nil)
		assert.Equal(t, http.StatusBadRequest, w.Code)
		assert.Contains(t, w.Body.String(), "unknown settings kind")
	})

	t.Run("process of unknown product", func(t *testing.T) {
		w := env.do(http.MethodPost, "/api/processes", `{"product_id":9999,"label":"Paint","kind":"default"}`, nil)
		assert.Equal(t, http.StatusNotFound, w.Code)
	})

	t.Run("process view carries the settings kind", func(t *testing.T) {
		out := env.created("/api/processes", `{"product_id":`+itoa(productID)+`,"label":"Sort","order":3,"kind":"condition"}`)
		assert.Equal(t, "condition", out["kind"])
		assert.Equal(t, "Sort", out["label"])
	})

	t.Run("self loop", func(t *testing.T) {
		id := env.createProcess(productID, `"label":"Loop","kind":"default"`)
		w := env.do(http.MethodPost, "/api/edges", `{"source_id":`+itoa(id)+`,"target_id":`+itoa(id)+`}`, nil)
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("place of unknown process", func(t *testing.T) {
		w := env.do(http.MethodPost, "/api/places", `{"name":"X","process_id":9999}`, nil)
		assert.Equal(t, http.StatusNotFound, w.Code)
	})

	t.Run("register object and mother", func(t *testing.T) {
		out := env.created("/api/objects", `{"product_id":`+itoa(productID)+`,"full_sn":"SN:F-1;LOT:7"}`)
		assert.Equal(t, "F-1", out["serial_number"])
		assert.Equal(t, "SN:F-1;LOT:7", out["full_sn"])

		env.created("/api/objects", `{"product_id":`+itoa(productID)+`,"full_sn":"F-2"}`)
		mother := env.created("/api/objects/mother", `{"product_id":`+itoa(productID)+`,"full_sn":"BOX-1","children":["SN:F-1;LOT:7","F-2"]}`)
		assert.Equal(t, true, mother["is_mother"])
		assert.ElementsMatch(t, []any{"F-1", "F-2"}, mother["children"])

		w := env.do(http.MethodGet, "/api/objects/BOX-1", "", nil)
		require.Equal(t, http.StatusOK, w.Code)
		assert.Contains(t, w.Body.String(), `"children"`)
	})

	t.Run("mother with unknown child", func(t *testing.T) {
		w := env.do(http.MethodPost, "/api/objects/mother", `{"product_id":`+itoa(productID)+`,"full_sn":"BOX-2","children":["NOPE"]}`, nil)
		assert.Equal(t, http.StatusNotFound, w.Code)
	})

	t.Run("mother without children", func(t *testing.T) {
		w := env.do(http.MethodPost, "/api/objects/mother", `{"product_id":`+itoa(productID)+`,"full_sn":"BOX-3","children":[]}`, nil)
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})
}

func TestProductGraphCachedAndInvalidated(t *testing.T) {
	env := newTestEnv(t)
	l := env.line()
	path := "/api/products/" + itoa(l.productID) + "/graph"

	var graph struct {
		Name      string        `json:"name"`
		Processes []processView `json:"processes"`
		Edges     []edgeView    `json:"edges"`
	}
	w := env.do(http.MethodGet, path, "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &graph))
	assert.Equal(t, "Frame", graph.Name)
	assert.Len(t, graph.Processes, 2)
	assert.Len(t, graph.Edges, 1)
	assert.Empty(t, w.Header().Get(mw.ReplayHeader))

	w = env.do(http.MethodGet, path, "", nil)
	assert.Equal(t, "true", w.Header().Get(mw.ReplayHeader))

	// A catalog change drops the cached graph.
	packing := env.createProcess(l.productID, `"label":"Packing","order":3,"kind":"default"`)
	env.createEdge(l.welding, packing)

	w = env.do(http.MethodGet, path, "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Empty(t, w.Header().Get(mw.ReplayHeader))
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &graph))
	assert.Len(t, graph.Processes, 3)
	assert.Len(t, graph.Edges, 2)

	t.Run("unknown product", func(t *testing.T) {
		w := env.do(http.MethodGet, "/api/products/424242/graph", "", nil)
		assert.Equal(t, http.StatusNotFound, w.Code)
	})

	t.Run("bad id", func(t *testing.T) {
		w := env.do(http.MethodGet, "/api/products/abc/graph", "", nil)
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})
}

func TestPostMovementFlow(t *testing.T) {
	env := newTestEnv(t)
	l := env.line()
	env.created("/api/objects", `{"product_id":`+itoa(l.productID)+`,"full_sn":"SN:F-9;REV:B"}`)

	w := env.movement("op-1", `{"movement_type":"receive","process_id":`+itoa(l.cutting)+`,"full_sn":"SN:F-9;REV:B","place_name":"CUT-1"}`)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var res movement.Result
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &res))
	assert.Equal(t, "ok", res.Status)
	assert.Equal(t, "F-9", res.Details.SerialNumber)
	assert.Equal(t, "Cutting", res.Details.ProcessLabel)
	assert.Equal(t, []string{"F-9"}, res.Details.Affected)

	w = env.do(http.MethodGet, "/api/objects/SN:F-9;REV:B", "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var atCutting objectView
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &atCutting))
	assert.Equal(t, []int64{l.welding}, atCutting.NextProcessIDs)

	w = env.movement("op-1", `{"movement_type":"MOVE","process_id":`+itoa(l.cutting)+`,"full_sn":"SN:F-9;REV:B"}`)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	w = env.movement("op-2", `{"movement_type":"receive","process_id":`+itoa(l.welding)+`,"full_sn":"SN:F-9;REV:B","place_name":"WELD-1","printer_name":"ZB-2"}`)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	w = env.do(http.MethodGet, "/api/objects/SN:F-9;REV:B", "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var obj objectView
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &obj))
	require.NotNil(t, obj.CurrentProcessID)
	assert.Equal(t, l.welding, *obj.CurrentProcessID)
	assert.Empty(t, obj.NextProcessIDs, "welding is the last step")

	w = env.do(http.MethodGet, "/api/objects/SN:F-9;REV:B/logs", "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var logs []logView
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &logs))
	require.Len(t, logs, 2)
	assert.Equal(t, l.cutting, logs[0].ProcessID)
	assert.Equal(t, "op-1", logs[0].WhoEntry)
	assert.Equal(t, "op-1", logs[0].WhoExit)
	assert.NotNil(t, logs[0].ExitTime)
	assert.Equal(t, l.welding, logs[1].ProcessID)
	assert.Equal(t, "ZB-2", logs[1].PrinterName)
	assert.Nil(t, logs[1].ExitTime)

	w = env.do(http.MethodGet, "/metrics", "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "movements_total")
}

func TestGetKillFlag(t *testing.T) {
	env := newTestEnv(t)
	l := env.line()
	press := env.createProcess(l.productID, `"label":"Press","order":3,"kind":"default","killing_app":true`)
	pressPlace := int64(env.created("/api/places", `{"name":"PR-1","process_id":`+itoa(press)+`}`)["id"].(float64))
	cutPlace, err := env.store.FindPlace(context.Background(), "CUT-1", l.cutting)
	require.NoError(t, err)
	require.NotNil(t, cutPlace)

	var flag struct {
		PlaceID     int64 `json:"place_id"`
		KillingFlag bool  `json:"killing_flag"`
	}
	w := env.do(http.MethodGet, "/api/places/"+itoa(pressPlace)+"/kill_flag", "", nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &flag))
	assert.Equal(t, pressPlace, flag.PlaceID)
	assert.False(t, flag.KillingFlag)

	_, err = env.store.SetKillFlag(context.Background(), pressPlace, true)
	require.NoError(t, err)
	w = env.do(http.MethodGet, "/api/places/"+itoa(pressPlace)+"/kill_flag", "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &flag))
	assert.True(t, flag.KillingFlag)

	w = env.do(http.MethodGet, "/api/places/"+itoa(cutPlace.ID)+"/kill_flag", "", nil)
	assert.Equal(t, http.StatusNotFound, w.Code, "places of ordinary processes carry no flag")

	w = env.do(http.MethodGet, "/api/places/abc/kill_flag", "", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestPostMovementRejections(t *testing.T) {
	env := newTestEnv(t)
	l := env.line()
	env.created("/api/objects", `{"product_id":`+itoa(l.productID)+`,"full_sn":"F-1"}`)

	cases := []struct {
		name  string
		actor string
		body  string
		code  movement.Code
	}{
		{
			name:  "no actor",
			actor: "",
			body:  `{"movement_type":"receive","process_id":` + itoa(l.cutting) + `,"full_sn":"F-1","place_name":"CUT-1"}`,
			code:  movement.CodeNoUserLogged,
		},
		{
			name:  "unknown object",
			actor: "op-1",
			body:  `{"movement_type":"receive","process_id":` + itoa(l.cutting) + `,"full_sn":"F-404","place_name":"CUT-1"}`,
			code:  movement.CodeObjectDoesNotExist,
		},
		{
			name:  "unknown movement type",
			actor: "op-1",
			body:  `{"movement_type":"teleport","process_id":` + itoa(l.cutting) + `,"full_sn":"F-1"}`,
			code:  movement.CodeMovementTypeDoesNotExist,
		},
		{
			name:  "unknown place",
			actor: "op-1",
			body:  `{"movement_type":"receive","process_id":` + itoa(l.cutting) + `,"full_sn":"F-1","place_name":"NOWHERE"}`,
			code:  movement.CodePlaceNotFound,
		},
		{
			name:  "intake outside a start process",
			actor: "op-1",
			body:  `{"movement_type":"receive","process_id":` + itoa(l.welding) + `,"full_sn":"F-1","place_name":"WELD-1"}`,
			code:  movement.CodeEdgeNotDefined,
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			w := env.movement(tc.actor, tc.body)
			require.Equal(t, http.StatusBadRequest, w.Code)
			code, message := decodeError(t, w)
			assert.Equal(t, string(tc.code), code)
			assert.NotEmpty(t, message)
		})
	}

	t.Run("malformed body", func(t *testing.T) {
		w := env.movement("op-1", `{"movement_type":`)
		assert.Equal(t, http.StatusBadRequest, w.Code)
		assert.JSONEq(t, `{"error":"invalid request"}`, w.Body.String())
	})

	t.Run("unknown object lookup", func(t *testing.T) {
		w := env.do(http.MethodGet, "/api/objects/F-404", "", nil)
		assert.Equal(t, http.StatusNotFound, w.Code)
	})
}

func TestMovementIdempotentReplay(t *testing.T) {
	env := newTestEnv(t)
	l := env.line()
	env.created("/api/objects", `{"product_id":`+itoa(l.productID)+`,"full_sn":"F-1"}`)

	body := `{"movement_type":"receive","process_id":` + itoa(l.cutting) + `,"full_sn":"F-1","place_name":"CUT-1"}`
	headers := map[string]string{mw.ActorHeader: "op-1", "Idempotency-Key": "scan-001"}

	first := env.do(http.MethodPost, "/api/movements", body, headers)
	require.Equal(t, http.StatusOK, first.Code, first.Body.String())

	second := env.do(http.MethodPost, "/api/movements", body, headers)
	require.Equal(t, http.StatusOK, second.Code)
	assert.Equal(t, "true", second.Header().Get(mw.ReplayHeader))
	assert.JSONEq(t, first.Body.String(), second.Body.String())

	var count int64
	require.NoError(t, env.db.Model(&model.ProductObjectProcessLog{}).Count(&count).Error)
	assert.Equal(t, int64(1), count)

	// Without the key the engine sees the repeat and rejects it.
	third := env.movement("op-1", body)
	require.Equal(t, http.StatusBadRequest, third.Code)
	code, _ := decodeError(t, third)
	assert.Equal(t, string(movement.CodeAlreadyInProcess), code)
}

func TestRejectedMovementIsNotReplayed(t *testing.T) {
	env := newTestEnv(t)
	l := env.line()

	body := `{"movement_type":"receive","process_id":` + itoa(l.cutting) + `,"full_sn":"F-7","place_name":"CUT-1"}`
	headers := map[string]string{mw.ActorHeader: "op-1", "Idempotency-Key": "scan-007"}

	w := env.do(http.MethodPost, "/api/movements", body, headers)
	require.Equal(t, http.StatusBadRequest, w.Code)

	env.created("/api/objects", `{"product_id":`+itoa(l.productID)+`,"full_sn":"F-7"}`)

	w = env.do(http.MethodPost, "/api/movements", body, headers)
	assert.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Empty(t, w.Header().Get(mw.ReplayHeader))
}

func TestRateLimitedByActor(t *testing.T) {
	server := testServerConfig()
	server.RateLimitPerSec = 0.001
	server.RateLimitBurst = 1
	env := newTestEnvWith(t, server, nil)

	w := env.movement("op-1", `{"movement_type":"move","process_id":1,"full_sn":"F-1"}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = env.movement("op-1", `{"movement_type":"move","process_id":1,"full_sn":"F-1"}`)
	assert.Equal(t, http.StatusTooManyRequests, w.Code)

	// Another station has its own bucket.
	w = env.movement("op-2", `{"movement_type":"move","process_id":1,"full_sn":"F-1"}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	// Health checks are not rate limited.
	w = env.do(http.MethodGet, "/healthz", "", nil)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestGetVAPIDPublicKey(t *testing.T) {
	t.Run("not configured", func(t *testing.T) {
		env := newTestEnv(t)
		w := env.do(http.MethodGet, "/api/vapid_public_key", "", nil)
		assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	})

	t.Run("configured", func(t *testing.T) {
		env := newTestEnvWith(t, testServerConfig(), &webpush.Options{VAPIDPublicKey: "BPUBLIC"})
		w := env.do(http.MethodGet, "/api/vapid_public_key", "", nil)
		assert.Equal(t, http.StatusOK, w.Code)
		assert.True(t, strings.Contains(w.Body.String(), "BPUBLIC"))
	})
}
