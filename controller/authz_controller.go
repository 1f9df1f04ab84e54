// controller/authz_controller.go
package controller

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/fortress-iam/gateway/authz"
	gw_errors "github.com/fortress-iam/gateway/errors"
	"github.com/fortress-iam/gateway/model"
	"github.com/fortress-iam/gateway/util"
)

type AuthzController struct {
	authzSvc       *authz.Service
	eventBus       *util.EventBus
	validationUtil *util.ValidationUtil
}

func NewAuthzController(authzSvc *authz.Service, eventBus *util.EventBus) *AuthzController {
	return &AuthzController{
		authzSvc:       authzSvc,
		eventBus:       eventBus,
		validationUtil: util.NewValidationUtil(),
	}
}

// RegisterRoutes registers the API routes
func (azc *AuthzController) RegisterRoutes(r gin.IRouter) {
	az := r.Group("/v1/authz")
	{
		az.POST("/check", azc.Check)
		az.POST("/check-batch", azc.CheckBatch)
		az.POST("/policy-update", azc.PolicyUpdate)
	}
}

type checkRequest struct {
	Action   string `json:"action" binding:"required"`
	Resource struct {
		Type string `json:"type" binding:"required"`
		ID   string `json:"id" binding:"required"`
	} `json:"resource" binding:"required"`
	Context map[string]interface{} `json:"context,omitempty"`
}

type batchCheckRequest struct {
	Items []checkRequest `json:"items" binding:"required"`
}

type decisionResponse struct {
	Decision string `json:"decision"`
}

// Check endpoint. The principal is always the authenticated caller; the
// decision comes back bare, without determining-policy detail.
func (azc *AuthzController) Check(c *gin.Context) {
	principal, ok := azc.callerPrincipal(c)
	if !ok {
		return
	}

	var req checkRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		util.RespondWithError(c, http.StatusBadRequest, "INVALID_REQUEST", "Invalid authorization request", err)
		return
	}

	check := model.CheckRequest{
		Principal: principal,
		Action:    req.Action,
		Resource:  model.Resource{Type: req.Resource.Type, ID: req.Resource.ID},
		Context:   req.Context,
	}
	if err := azc.validationUtil.ValidateCheckRequest(check); err != nil {
		util.RespondWithError(c, http.StatusBadRequest, "INVALID_REQUEST", err.Error(), gw_errors.ErrInvalidAuthzRequest)
		return
	}

	decision := azc.authzSvc.Check(c, check)
	c.JSON(http.StatusOK, decisionResponse{Decision: decision.Decision})
}

// CheckBatch endpoint. At most MaxBatchSize items per call; results come
// back in the order the items were submitted.
func (azc *AuthzController) CheckBatch(c *gin.Context) {
	principal, ok := azc.callerPrincipal(c)
	if !ok {
		return
	}

	var req batchCheckRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		util.RespondWithError(c, http.StatusBadRequest, "INVALID_REQUEST", "Invalid batch authorization request", err)
		return
	}
	if len(req.Items) == 0 {
		util.RespondWithError(c, http.StatusBadRequest, "INVALID_REQUEST", "Batch must contain at least one item", gw_errors.ErrInvalidAuthzRequest)
		return
	}
	if len(req.Items) > authz.MaxBatchSize {
		util.RespondWithError(c, http.StatusBadRequest, "BATCH_TOO_LARGE", "Batch exceeds the maximum item count", gw_errors.ErrBatchTooLarge)
		return
	}

	checks := make([]model.CheckRequest, len(req.Items))
	for i, item := range req.Items {
		checks[i] = model.CheckRequest{
			Principal: principal,
			Action:    item.Action,
			Resource:  model.Resource{Type: item.Resource.Type, ID: item.Resource.ID},
			Context:   item.Context,
		}
		if err := azc.validationUtil.ValidateCheckRequest(checks[i]); err != nil {
			util.RespondWithError(c, http.StatusBadRequest, "INVALID_REQUEST", err.Error(), gw_errors.ErrInvalidAuthzRequest)
			return
		}
	}

	decisions := azc.authzSvc.CheckBatch(c, checks)
	results := make([]decisionResponse, len(decisions))
	for i, d := range decisions {
		results[i] = decisionResponse{Decision: d.Decision}
	}
	c.JSON(http.StatusOK, gin.H{"results": results})
}

// PolicyUpdate endpoint. Operators call this after a policy-store change;
// the flush happens synchronously before the response is written.
func (azc *AuthzController) PolicyUpdate(c *gin.Context) {
	azc.eventBus.Publish(c, util.EventPolicyUpdated, nil)
	c.JSON(http.StatusOK, gin.H{"status": "flushed"})
}

func (azc *AuthzController) callerPrincipal(c *gin.Context) (model.Principal, bool) {
	raw, ok := util.GetPrincipalFromContext(c)
	if !ok {
		util.RespondWithError(c, http.StatusUnauthorized, "TOKEN_MISSING", "Authentication is required", gw_errors.ErrUnauthorized)
		return model.Principal{}, false
	}
	principal, ok := raw.(model.Principal)
	if !ok {
		util.RespondWithError(c, http.StatusInternalServerError, "INTERNAL_ERROR", "Invalid principal in request context", gw_errors.ErrInternalServer)
		return model.Principal{}, false
	}
	return principal, true
}
