package middleware

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/preenroll-api/internal/models"
	"github.com/noah-isme/preenroll-api/internal/service"
	appErrors "github.com/noah-isme/preenroll-api/pkg/errors"
)

type staticValidator map[string]*models.JWTClaims

func (v staticValidator) ValidateToken(token string) (*models.JWTClaims, error) {
	if claims, ok := v[token]; ok {
		return claims, nil
	}
	return nil, appErrors.Clone(appErrors.ErrUnauthorized, "invalid token")
}

type staticChecker string

func (s staticChecker) ValidToken(token string) bool { return token != "" && token == string(s) }

var (
	adminClaims   = &models.JWTClaims{Role: models.RoleAdmin, Username: "root"}
	studentClaims = &models.JWTClaims{Role: models.RoleStudent, StudentID: 2021001}
)

func newRouter() *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(WithResponseMeta())
	validator := staticValidator{"admin-token": adminClaims, "student-token": studentClaims}

	ok := func(c *gin.Context) {
		SetMeta(c, "route", c.FullPath())
		c.JSON(http.StatusOK, gin.H{"role": Claims(c).Role, "meta": ExtractMeta(c)})
	}
	authed := r.Group("/", JWT(validator, "preenroll_token"))
	authed.GET("/admin", RequireRoles(models.RoleAdmin), ok)
	authed.GET("/students/:id", RBAC(string(models.RoleAdmin), Self), ok)
	authed.GET("/status", RBAC(string(models.RoleAdmin), Self), ok)

	r.GET("/dba/ping", DBAToken(staticChecker("s3cret")), func(c *gin.Context) { c.Status(http.StatusNoContent) })
	return r
}

func serve(r http.Handler, req *http.Request) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestJWTReadsHeaderOrCookie(t *testing.T) {
	r := newRouter()

	req := httptest.NewRequest(http.MethodGet, "/admin", nil)
	req.Header.Set("Authorization", "Bearer admin-token")
	w := serve(r, req)
	require.Equal(t, http.StatusOK, w.Code)
	var body struct {
		Role string                 `json:"role"`
		Meta map[string]interface{} `json:"meta"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "ADMIN", body.Role)
	assert.Equal(t, "/admin", body.Meta["route"])
	assert.Contains(t, body.Meta, "processing_time_ms")

	req = httptest.NewRequest(http.MethodGet, "/admin", nil)
	req.AddCookie(&http.Cookie{Name: "preenroll_token", Value: "admin-token"})
	assert.Equal(t, http.StatusOK, serve(r, req).Code)

	req = httptest.NewRequest(http.MethodGet, "/admin", nil)
	assert.Equal(t, http.StatusUnauthorized, serve(r, req).Code)

	req = httptest.NewRequest(http.MethodGet, "/admin", nil)
	req.Header.Set("Authorization", "Token admin-token")
	assert.Equal(t, http.StatusUnauthorized, serve(r, req).Code)

	req = httptest.NewRequest(http.MethodGet, "/admin", nil)
	req.Header.Set("Authorization", "Bearer forged")
	assert.Equal(t, http.StatusUnauthorized, serve(r, req).Code)
}

func TestRBACRolesAndSelf(t *testing.T) {
	r := newRouter()
	cases := []struct {
		path  string
		token string
		want  int
	}{
		{"/admin", "student-token", http.StatusForbidden},
		{"/students/2021001", "student-token", http.StatusOK},
		{"/students/2021002", "student-token", http.StatusForbidden},
		{"/students/2021002", "admin-token", http.StatusOK},
		{"/status?studentId=2021001", "student-token", http.StatusOK},
		{"/status?studentId=7", "student-token", http.StatusForbidden},
		{"/status", "student-token", http.StatusOK},
	}
	for _, tc := range cases {
		req := httptest.NewRequest(http.MethodGet, tc.path, nil)
		req.Header.Set("Authorization", "Bearer "+tc.token)
		assert.Equal(t, tc.want, serve(r, req).Code, tc.path)
	}
}

func TestDBAToken(t *testing.T) {
	r := newRouter()

	assert.Equal(t, http.StatusNoContent, serve(r, httptest.NewRequest(http.MethodGet, "/dba/ping?token=s3cret", nil)).Code)

	req := httptest.NewRequest(http.MethodGet, "/dba/ping", nil)
	req.Header.Set(DBATokenHeader, "s3cret")
	assert.Equal(t, http.StatusNoContent, serve(r, req).Code)

	assert.Equal(t, http.StatusUnauthorized, serve(r, httptest.NewRequest(http.MethodGet, "/dba/ping?token=nope", nil)).Code)
	assert.Equal(t, http.StatusUnauthorized, serve(r, httptest.NewRequest(http.MethodGet, "/dba/ping", nil)).Code)
}

func requestCounts(t *testing.T, metrics *service.MetricsService) map[string]float64 {
	t.Helper()
	families, err := metrics.Registry().Gather()
	require.NoError(t, err)
	counts := map[string]float64{}
	for _, family := range families {
		if family.GetName() != "http_requests_total" {
			continue
		}
		for _, m := range family.GetMetric() {
			counts[labelValue(m, "path")+" "+labelValue(m, "status")] += m.GetCounter().GetValue()
		}
	}
	return counts
}

func labelValue(m *dto.Metric, name string) string {
	for _, pair := range m.GetLabel() {
		if pair.GetName() == name {
			return pair.GetValue()
		}
	}
	return ""
}

func TestMetricsLabelsByRouteTemplate(t *testing.T) {
	gin.SetMode(gin.TestMode)
	metrics := service.NewMetricsService()
	r := gin.New()
	r.Use(Metrics(metrics, "/metrics"))
	r.GET("/students/:id", func(c *gin.Context) { c.Status(http.StatusOK) })
	r.GET("/metrics", func(c *gin.Context) { c.Status(http.StatusOK) })

	serve(r, httptest.NewRequest(http.MethodGet, "/students/2021001", nil))
	serve(r, httptest.NewRequest(http.MethodGet, "/students/2021002", nil))
	serve(r, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	serve(r, httptest.NewRequest(http.MethodGet, "/wp-admin/1", nil))
	serve(r, httptest.NewRequest(http.MethodGet, "/wp-admin/2", nil))

	assert.Equal(t, map[string]float64{
		"/students/:id 200": 2,
		UnmatchedRoute + " 404": 2,
	}, requestCounts(t, metrics))
}
