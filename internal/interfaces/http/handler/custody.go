package handler

import (
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	appcustody "github.com/vaultbridge/backend/internal/application/custody"
	"github.com/vaultbridge/backend/internal/domain/custody"
	"github.com/vaultbridge/backend/internal/domain/shared/valueobject"
)

// CustodyHandler serves the custody flows and their audit trail
type CustodyHandler struct {
	BaseHandler
	service *appcustody.Service
}

// NewCustodyHandler creates a new CustodyHandler
func NewCustodyHandler(service *appcustody.Service) *CustodyHandler {
	return &CustodyHandler{service: service}
}

// Invest handles POST /custody/investments. The caller's allowance to the
// custodian must cover amount.
func (h *CustodyHandler) Invest(c *gin.Context) {
	var req InvestRequest
	if !h.BindJSON(c, &req) {
		return
	}

	vault, err := custody.ParseVaultHandle(req.Vault)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	asset, err := custody.ParseAssetHandle(req.Asset)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	minShares := decimal.Zero
	if req.MinShares != nil {
		if err := custody.ValidateMinShares(*req.MinShares); err != nil {
			h.HandleError(c, err)
			return
		}
		minShares = *req.MinShares
	}

	receipt, err := h.service.InvestInEnzymeVault(c.Request.Context(), vault, asset, req.Amount, minShares)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Created(c, ToInvestmentResponse(receipt))
}

// Redeem handles POST /custody/redemptions
func (h *CustodyHandler) Redeem(c *gin.Context) {
	var req RedeemRequest
	if !h.BindJSON(c, &req) {
		return
	}

	vault, err := custody.ParseVaultHandle(req.Vault)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	shareAsset, err := custody.ParseAssetHandle(req.ShareAsset)
	if err != nil {
		h.HandleError(c, err)
		return
	}

	receipt, err := h.service.RedeemFromEnzymeFundInKind(c.Request.Context(), vault, shareAsset, req.ShareQuantity)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Created(c, ToRedemptionResponse(receipt))
}

// GetSettings handles GET /custody/settings
func (h *CustodyHandler) GetSettings(c *gin.Context) {
	h.Success(c, h.settings())
}

// UpdateSettings handles PUT /custody/settings. Only the custodian owner may
// change the default slippage floor.
func (h *CustodyHandler) UpdateSettings(c *gin.Context) {
	var req UpdateSettingsRequest
	if !h.BindJSON(c, &req) {
		return
	}
	if err := h.service.SetDefaultMinShares(c.Request.Context(), req.DefaultMinShares); err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, h.settings())
}

// TransferOwnership handles PUT /custody/settings/owner. Only the current
// owner may hand over control.
func (h *CustodyHandler) TransferOwnership(c *gin.Context) {
	var req TransferOwnershipRequest
	if !h.BindJSON(c, &req) {
		return
	}
	next, err := valueobject.ParseAddress(req.Owner)
	if err != nil {
		h.BadRequest(c, "Invalid owner address")
		return
	}
	if err := h.service.TransferOwnership(c.Request.Context(), next); err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, h.settings())
}

func (h *CustodyHandler) settings() SettingsResponse {
	return SettingsResponse{
		DefaultMinShares: h.service.DefaultMinShares(),
		Owner:            h.service.Owner().String(),
	}
}

// ListOperations handles GET /custody/operations
func (h *CustodyHandler) ListOperations(c *gin.Context) {
	var query ListOperationsQuery
	if err := c.ShouldBindQuery(&query); err != nil {
		h.BadRequest(c, "Invalid limit: "+err.Error())
		return
	}

	entries, err := h.service.ListOperations(c.Request.Context(), query.Limit)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, ToOperationResponses(entries))
}

// GetOperation handles GET /custody/operations/:id
func (h *CustodyHandler) GetOperation(c *gin.Context) {
	var req OperationIDRequest
	if err := c.ShouldBindUri(&req); err != nil {
		h.BadRequest(c, "Invalid operation ID")
		return
	}
	id, err := uuid.Parse(req.ID)
	if err != nil {
		h.BadRequest(c, "Invalid operation ID")
		return
	}

	entry, err := h.service.GetOperation(c.Request.Context(), id)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, ToOperationResponse(entry))
}
