package routes

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"discount-service/controllers"
	"discount-service/middleware"
	"discount-service/notifications"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
)

func TestRegisterDiscountRoutes_Guards(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	// A nil service is never reached: every request below is stopped by middleware.
	dc := controllers.NewDiscountController(nil)
	sc := controllers.NewSocketController(nil, notifications.NewHub(zap.NewNop()), nil, zap.NewNop())
	RegisterDiscountRoutes(r, dc, sc, middleware.NewRateLimiter(60, 5, time.Minute), time.Second)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/stores/s/discounts", nil))
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	req := httptest.NewRequest(http.MethodDelete, "/stores/s/discounts/d1", nil)
	req.Header.Set("X-User-ID", "u-1")
	req.Header.Set("X-User-Role", "customer")
	w = httptest.NewRecorder()
	r.ServeHTTP(w, req)
	assert.Equal(t, http.StatusForbidden, w.Code)

	routes := map[string]bool{}
	for _, ri := range r.Routes() {
		routes[ri.Method+" "+ri.Path] = true
	}
	for _, want := range []string{
		"GET /stores/:store_id/discounts",
		"GET /stores/:store_id/discounts/view",
		"GET /stores/:store_id/discounts/ws",
		"POST /stores/:store_id/discounts/calculate",
		"POST /stores/:store_id/discounts",
		"DELETE /stores/:store_id/discounts/:discount_id",
		"POST /stores/:store_id/discounts/:discount_id/move",
		"PATCH /stores/:store_id/discounts/:discount_id/simple",
		"PATCH /stores/:store_id/discounts/:discount_id/complex",
		"PUT /stores/:store_id/discounts/:discount_id/condition",
		"POST /stores/:store_id/discounts/:discount_id/condition/rules",
		"DELETE /stores/:store_id/discounts/:discount_id/condition/rules/:rule_id",
	} {
		assert.True(t, routes[want], want)
	}
}
