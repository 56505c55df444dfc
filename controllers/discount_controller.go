package controllers

import (
	"bytes"
	"net/http"
	"strings"

	"discount-service/middleware"
	"discount-service/models"
	"discount-service/services"
	"discount-service/views"

	"github.com/gin-gonic/gin"
)

// DiscountController handles HTTP requests for a store's discount tree.
type DiscountController struct {
	discountService services.DiscountService
}

// NewDiscountController creates a new DiscountController.
func NewDiscountController(discountService services.DiscountService) *DiscountController {
	return &DiscountController{discountService: discountService}
}

func policyResponse(p *models.DiscountPolicy) gin.H {
	return gin.H{"store_id": p.StoreID, "version": p.Version, "discounts": p.Root}
}

// GetDiscounts handles GET /stores/:store_id/discounts.
func (dc *DiscountController) GetDiscounts(ctx *gin.Context) {
	policy, svcErr := dc.discountService.GetDiscounts(ctx.Request.Context(), ctx.Param("store_id"))
	if svcErr != nil {
		ctx.JSON(svcErr.StatusCode, gin.H{"error": svcErr.Message})
		return
	}
	ctx.JSON(http.StatusOK, policyResponse(policy))
}

// ViewDiscounts handles GET /stores/:store_id/discounts/view. The tree
// starts collapsed and each id in ?expand= is toggled in order, as if
// clicked; ?format=text renders the indented text form.
func (dc *DiscountController) ViewDiscounts(ctx *gin.Context) {
	format := ctx.DefaultQuery("format", "json")
	if format != "json" && format != "text" {
		ctx.JSON(http.StatusBadRequest, gin.H{"error": "format must be json or text"})
		return
	}

	policy, svcErr := dc.discountService.GetDiscounts(ctx.Request.Context(), ctx.Param("store_id"))
	if svcErr != nil {
		ctx.JSON(svcErr.StatusCode, gin.H{"error": svcErr.Message})
		return
	}

	handlers := views.Handlers{
		OnCreate:          func(string) {},
		ProductIDToString: dc.discountService.ProductNameResolver(ctx.Request.Context(), policy.Root.Root),
	}
	if middleware.IsManager(ctx) {
		handlers.OnDelete = func(string) {}
	}
	tree, err := views.NewTree(policy.Root.Root, handlers)
	if err != nil {
		ctx.JSON(http.StatusInternalServerError, gin.H{"error": "Stored discount tree is malformed"})
		return
	}

	for _, id := range splitIDs(ctx.Query("expand")) {
		if err := tree.Click(views.ActionToggle, id); err != nil {
			ctx.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
	}

	if format == "text" {
		var buf bytes.Buffer
		if err := tree.Render(&buf); err != nil {
			ctx.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to render discounts"})
			return
		}
		ctx.String(http.StatusOK, buf.String())
		return
	}
	rows, err := tree.Rows()
	if err != nil {
		ctx.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to render discounts"})
		return
	}
	ctx.JSON(http.StatusOK, gin.H{"version": policy.Version, "rows": rows})
}

// CalculateDiscount handles POST /stores/:store_id/discounts/calculate.
func (dc *DiscountController) CalculateDiscount(ctx *gin.Context) {
	var req models.CalculateDiscountRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		ctx.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request", "details": err.Error()})
		return
	}

	resp, svcErr := dc.discountService.CalculateDiscount(ctx.Request.Context(), ctx.Param("store_id"), &req)
	if svcErr != nil {
		ctx.JSON(svcErr.StatusCode, gin.H{"error": svcErr.Message})
		return
	}
	ctx.JSON(http.StatusOK, resp)
}

// AddDiscount handles POST /stores/:store_id/discounts (managers only).
func (dc *DiscountController) AddDiscount(ctx *gin.Context) {
	var req models.CreateDiscountRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		ctx.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request", "details": err.Error()})
		return
	}

	policy, created, svcErr := dc.discountService.AddDiscount(ctx.Request.Context(), ctx.Param("store_id"), &req)
	if svcErr != nil {
		ctx.JSON(svcErr.StatusCode, gin.H{"error": svcErr.Message})
		return
	}
	resp := policyResponse(policy)
	resp["discount"] = created
	ctx.JSON(http.StatusCreated, resp)
}

// RemoveDiscount handles DELETE /stores/:store_id/discounts/:discount_id.
func (dc *DiscountController) RemoveDiscount(ctx *gin.Context) {
	policy, svcErr := dc.discountService.RemoveDiscount(ctx.Request.Context(), ctx.Param("store_id"), ctx.Param("discount_id"))
	if svcErr != nil {
		ctx.JSON(svcErr.StatusCode, gin.H{"error": svcErr.Message})
		return
	}
	ctx.JSON(http.StatusOK, policyResponse(policy))
}

// MoveDiscount handles POST /stores/:store_id/discounts/:discount_id/move.
func (dc *DiscountController) MoveDiscount(ctx *gin.Context) {
	var req models.MoveDiscountRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		ctx.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request", "details": err.Error()})
		return
	}

	policy, svcErr := dc.discountService.MoveDiscount(ctx.Request.Context(), ctx.Param("store_id"), ctx.Param("discount_id"), req.DestID)
	if svcErr != nil {
		ctx.JSON(svcErr.StatusCode, gin.H{"error": svcErr.Message})
		return
	}
	ctx.JSON(http.StatusOK, policyResponse(policy))
}

// EditSimpleDiscount handles PATCH /stores/:store_id/discounts/:discount_id/simple.
func (dc *DiscountController) EditSimpleDiscount(ctx *gin.Context) {
	var req models.EditSimpleDiscountRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		ctx.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request", "details": err.Error()})
		return
	}

	policy, svcErr := dc.discountService.EditSimpleDiscount(ctx.Request.Context(), ctx.Param("store_id"), ctx.Param("discount_id"), &req)
	if svcErr != nil {
		ctx.JSON(svcErr.StatusCode, gin.H{"error": svcErr.Message})
		return
	}
	ctx.JSON(http.StatusOK, policyResponse(policy))
}

// EditComplexDiscount handles PATCH /stores/:store_id/discounts/:discount_id/complex.
func (dc *DiscountController) EditComplexDiscount(ctx *gin.Context) {
	var req models.EditComplexDiscountRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		ctx.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request", "details": err.Error()})
		return
	}

	policy, svcErr := dc.discountService.EditComplexDiscount(ctx.Request.Context(), ctx.Param("store_id"), ctx.Param("discount_id"), &req)
	if svcErr != nil {
		ctx.JSON(svcErr.StatusCode, gin.H{"error": svcErr.Message})
		return
	}
	ctx.JSON(http.StatusOK, policyResponse(policy))
}

// SetCondition handles PUT /stores/:store_id/discounts/:discount_id/condition.
func (dc *DiscountController) SetCondition(ctx *gin.Context) {
	var req models.SetConditionRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		ctx.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request", "details": err.Error()})
		return
	}

	policy, svcErr := dc.discountService.SetDiscountCondition(ctx.Request.Context(), ctx.Param("store_id"), ctx.Param("discount_id"), req.Condition)
	if svcErr != nil {
		ctx.JSON(svcErr.StatusCode, gin.H{"error": svcErr.Message})
		return
	}
	ctx.JSON(http.StatusOK, policyResponse(policy))
}

func (dc *DiscountController) AddConditionRule(ctx *gin.Context) {
	var req models.AddConditionRuleRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		ctx.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request", "details": err.Error()})
		return
	}

	policy, svcErr := dc.discountService.AddConditionRule(ctx.Request.Context(), ctx.Param("store_id"), ctx.Param("discount_id"), &req)
	if svcErr != nil {
		ctx.JSON(svcErr.StatusCode, gin.H{"error": svcErr.Message})
		return
	}
	ctx.JSON(http.StatusCreated, policyResponse(policy))
}

func (dc *DiscountController) RemoveConditionRule(ctx *gin.Context) {
	policy, svcErr := dc.discountService.RemoveConditionRule(ctx.Request.Context(), ctx.Param("store_id"), ctx.Param("discount_id"), ctx.Param("rule_id"))
	if svcErr != nil {
		ctx.JSON(svcErr.StatusCode, gin.H{"error": svcErr.Message})
		return
	}
	ctx.JSON(http.StatusOK, policyResponse(policy))
}

func splitIDs(s string) []string {
	var ids []string
	for _, id := range strings.Split(s, ",") {
		if id = strings.TrimSpace(id); id != "" {
			ids = append(ids, id)
		}
	}
	return ids
}

