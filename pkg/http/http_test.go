package http

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type pairBody struct {
	Series1 []float64   `json:"series1" validate:"required,min=3"`
	Matrix  [][]float64 `json:"matrix" validate:"omitempty,rectangular"`
	Limit   int         `json:"limit" default:"10" validate:"gte=1,lte=100"`
}

type testHandler struct{}

func (testHandler) RegisterRoutes(e *echo.Echo) {
	e.POST("/pair", func(c echo.Context) error {
		var req pairBody
		if verr := ReadAndValidateRequest(c, &req); verr != nil {
			return BadRequestResponse(c, verr)
		}
		return SuccessResponse(c, req)
	})
	e.GET("/busy", func(c echo.Context) error {
		return AppErrorResponse(c, TooManyRequestsError("slow down"))
	})
	e.GET("/boom", func(c echo.Context) error {
		panic("boom")
	})
	e.GET("/opaque", func(c echo.Context) error {
		return AppErrorResponse(c, errors.New("hidden"))
	})
}

func newTestServer() *Server {
	return NewServer(nil, []Handler{testHandler{}}, WithMetricsRegistry(prometheus.NewRegistry()))
}

func do(s *Server, method, path, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if body != "" {
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	}
	rec := httptest.NewRecorder()
	s.Echo().ServeHTTP(rec, req)
	return rec
}

func TestValidationAndDefaults(t *testing.T) {
	s := newTestServer()

	rec := do(s, http.MethodPost, "/pair", `{"series1":[1,2,3]}`)
	require.Equal(t, http.StatusOK, rec.Code)
	var ok struct {
		Status int      `json:"status"`
		Data   pairBody `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &ok))
	assert.Equal(t, 200, ok.Status)
	assert.Equal(t, 10, ok.Data.Limit)

	tests := []struct {
		name, body, code string
	}{
		{"too short", `{"series1":[1,2]}`, "ERR_MIN"},
		{"missing", `{}`, "ERR_REQUIRED"},
		{"ragged", `{"series1":[1,2,3],"matrix":[[1,2],[3]]}`, "ERR_RECTANGULAR"},
		{"limit", `{"series1":[1,2,3],"limit":500}`, "ERR_LTE"},
		{"not json", `{"series1":`, "ERR_BIND"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := do(s, http.MethodPost, "/pair", tt.body)
			assert.Equal(t, http.StatusBadRequest, rec.Code)
			var bad struct {
				Data []ValidationError `json:"data"`
			}
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &bad))
			require.NotEmpty(t, bad.Data)
			assert.Equal(t, tt.code, bad.Data[0].Code)
		})
	}
}

func TestErrorResponses(t *testing.T) {
	s := newTestServer()

	rec := do(s, http.MethodGet, "/busy", "")
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Contains(t, rec.Body.String(), "ERR_RATE_LIMITED")

	rec = do(s, http.MethodGet, "/opaque", "")
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.NotContains(t, rec.Body.String(), "hidden")

	rec = do(s, http.MethodGet, "/boom", "")
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestMetricsEndpoint(t *testing.T) {
	s := newTestServer()
	do(s, http.MethodGet, "/busy", "")

	rec := do(s, http.MethodGet, "/metrics", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `quantbridge_http_requests_total{method="GET",route="/busy",status="429"} 1`)
}

func TestClientStatusError(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Content-Type") != "application/json" {
			w.WriteHeader(http.StatusUnsupportedMediaType)
			return
		}
		var in map[string]int
		_ = json.NewDecoder(r.Body).Decode(&in)
		if in["n"] < 0 {
			w.WriteHeader(http.StatusBadGateway)
			_, _ = w.Write([]byte("upstream"))
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]int{"twice": in["n"] * 2})
	}))
	defer ts.Close()

	c := NewClient()
	var out map[string]int
	require.NoError(t, c.SendAndParse(context.Background(), &RequestOptions{Method: MethodPost, URL: ts.URL, Body: map[string]int{"n": 4}}, &out))
	assert.Equal(t, 8, out["twice"])

	err := c.SendAndParse(context.Background(), &RequestOptions{Method: MethodPost, URL: ts.URL, Body: map[string]int{"n": -1}}, &out)
	var se *StatusError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, http.StatusBadGateway, se.Code)
	assert.Equal(t, "upstream", se.Body)
}
