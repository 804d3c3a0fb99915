package observability

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/danmuck/pomelogate/internal/testutil/testlog"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/rs/zerolog/log"
)

func TestAdminRequestsRecordsMatchedAndUnmatched(t *testing.T) {
	testlog.Start(t)
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(AdminRequests(log.Logger, "mw-test"))
	r.GET("/sessions/:id", func(c *gin.Context) { c.Status(http.StatusOK) })

	matched := httpRequests.WithLabelValues("mw-test", "GET", "/sessions/:id", "200")
	unmatched := httpRequests.WithLabelValues("mw-test", "GET", "unmatched", "404")
	beforeMatched := testutil.ToFloat64(matched)
	beforeUnmatched := testutil.ToFloat64(unmatched)

	for _, path := range []string{"/sessions/a", "/sessions/b", "/nope"} {
		r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, path, nil))
	}

	if got := testutil.ToFloat64(matched) - beforeMatched; got != 2 {
		t.Fatalf("matched requests=%v want 2", got)
	}
	if got := testutil.ToFloat64(unmatched) - beforeUnmatched; got != 1 {
		t.Fatalf("unmatched requests=%v want 1", got)
	}
}

func TestIsProbe(t *testing.T) {
	for _, p := range []string{"/health", "/ready", "/metrics"} {
		if !isProbe(p) {
			t.Fatalf("%s should be a probe", p)
		}
	}
	if isProbe("/sessions") {
		t.Fatalf("/sessions is not a probe")
	}
}
