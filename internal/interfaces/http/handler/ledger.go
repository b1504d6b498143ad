package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	"github.com/vaultbridge/backend/internal/domain/custody"
	"github.com/vaultbridge/backend/internal/domain/shared/valueobject"
	"github.com/vaultbridge/backend/internal/interfaces/http/dto"
	"github.com/vaultbridge/backend/internal/interfaces/http/middleware"
)

// BalanceRequest binds GET /ledger/assets/:asset/balances/:owner
type BalanceRequest struct {
	Asset string `uri:"asset" binding:"required,address"`
	Owner string `uri:"owner" binding:"required,address"`
}

// AllowanceRequest binds GET /ledger/assets/:asset/allowances/:owner/:spender
type AllowanceRequest struct {
	Asset   string `uri:"asset" binding:"required,address"`
	Owner   string `uri:"owner" binding:"required,address"`
	Spender string `uri:"spender" binding:"required,address"`
}

// BalanceResponse reports a holder's balance
type BalanceResponse struct {
	Asset   string          `json:"asset"`
	Owner   string          `json:"owner"`
	Balance decimal.Decimal `json:"balance"`
}

// AllowanceResponse reports how much spender may move on owner's behalf
type AllowanceResponse struct {
	Asset     string          `json:"asset"`
	Owner     string          `json:"owner"`
	Spender   string          `json:"spender"`
	Allowance decimal.Decimal `json:"allowance"`
}

// AssetResolver looks up assets by handle
type AssetResolver interface {
	Asset(ctx context.Context, h custody.AssetHandle) (custody.FungibleAsset, error)
}

// LedgerHandler serves read-only token queries so clients can check
// balances and allowances before and after a flow
type LedgerHandler struct {
	BaseHandler
	assets AssetResolver
}

// NewLedgerHandler creates a new LedgerHandler
func NewLedgerHandler(assets AssetResolver) *LedgerHandler {
	return &LedgerHandler{assets: assets}
}

// GetBalance handles GET /ledger/assets/:asset/balances/:owner
func (h *LedgerHandler) GetBalance(c *gin.Context) {
	var req BalanceRequest
	if err := c.ShouldBindUri(&req); err != nil {
		h.uriError(c, err)
		return
	}
	handle, asset, ok := h.resolve(c, req.Asset)
	if !ok {
		return
	}
	reader, ok := asset.(custody.BalanceReader)
	if !ok {
		h.Error(c, http.StatusUnprocessableEntity, dto.ErrCodeBadRequest, "Asset does not report balances")
		return
	}

	owner := valueobject.MustParseAddress(req.Owner)
	balance, err := reader.BalanceOf(c.Request.Context(), owner)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, BalanceResponse{Asset: handle.String(), Owner: owner.String(), Balance: balance})
}

// GetAllowance handles GET /ledger/assets/:asset/allowances/:owner/:spender
func (h *LedgerHandler) GetAllowance(c *gin.Context) {
	var req AllowanceRequest
	if err := c.ShouldBindUri(&req); err != nil {
		h.uriError(c, err)
		return
	}
	handle, asset, ok := h.resolve(c, req.Asset)
	if !ok {
		return
	}

	owner := valueobject.MustParseAddress(req.Owner)
	spender := valueobject.MustParseAddress(req.Spender)
	allowance, err := asset.Allowance(c.Request.Context(), owner, spender)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, AllowanceResponse{
		Asset:     handle.String(),
		Owner:     owner.String(),
		Spender:   spender.String(),
		Allowance: allowance,
	})
}

func (h *LedgerHandler) resolve(c *gin.Context, raw string) (custody.AssetHandle, custody.FungibleAsset, bool) {
	handle, err := custody.ParseAssetHandle(raw)
	if err != nil {
		h.HandleError(c, err)
		return custody.AssetHandle{}, nil, false
	}
	asset, err := h.assets.Asset(c.Request.Context(), handle)
	if err != nil {
		h.NotFound(c, "Unknown asset "+handle.String())
		return custody.AssetHandle{}, nil, false
	}
	return handle, asset, true
}

func (h *LedgerHandler) uriError(c *gin.Context, err error) {
	c.JSON(http.StatusBadRequest, middleware.FormatValidationErrors(err, middleware.GetRequestID(c)))
}
