package handler

import (
	"time"

	"github.com/shopspring/decimal"
	"github.com/vaultbridge/backend/internal/domain/custody"
)

// InvestRequest is the body of POST /custody/investments
type InvestRequest struct {
	Vault  string          `json:"vault" binding:"required,address"`
	Asset  string          `json:"asset" binding:"required,address"`
	Amount decimal.Decimal `json:"amount"`
	// MinShares overrides the configured slippage floor when present
	MinShares *decimal.Decimal `json:"min_shares,omitempty"`
}

// RedeemRequest is the body of POST /custody/redemptions
type RedeemRequest struct {
	Vault         string          `json:"vault" binding:"required,address"`
	ShareAsset    string          `json:"share_asset" binding:"required,address"`
	ShareQuantity decimal.Decimal `json:"share_quantity"`
}

// UpdateSettingsRequest is the body of PUT /custody/settings
type UpdateSettingsRequest struct {
	DefaultMinShares decimal.Decimal `json:"default_min_shares"`
}

// TransferOwnershipRequest is the body of PUT /custody/settings/owner
type TransferOwnershipRequest struct {
	Owner string `json:"owner" binding:"required,address"`
}

// ListOperationsQuery holds the query string of GET /custody/operations
type ListOperationsQuery struct {
	Limit int `form:"limit" binding:"omitempty,min=1,max=200"`
}

// OperationIDRequest binds the :id path parameter
type OperationIDRequest struct {
	ID string `uri:"id" binding:"required,uuid"`
}

// InvestmentResponse reports a completed deposit
type InvestmentResponse struct {
	OperationID  string          `json:"operation_id"`
	Caller       string          `json:"caller"`
	Vault        string          `json:"vault"`
	Asset        string          `json:"asset"`
	Amount       decimal.Decimal `json:"amount"`
	MinShares    decimal.Decimal `json:"min_shares"`
	SharesIssued decimal.Decimal `json:"shares_issued"`
}

// ReleasedAssetResponse is one asset paid out by a redemption
type ReleasedAssetResponse struct {
	Asset  string          `json:"asset"`
	Amount decimal.Decimal `json:"amount"`
}

// RedemptionResponse reports a completed in-kind redemption
type RedemptionResponse struct {
	OperationID   string                  `json:"operation_id"`
	Caller        string                  `json:"caller"`
	Vault         string                  `json:"vault"`
	ShareAsset    string                  `json:"share_asset"`
	ShareQuantity decimal.Decimal         `json:"share_quantity"`
	Released      []ReleasedAssetResponse `json:"released"`
}

// SettingsResponse reports the custodian settings
type SettingsResponse struct {
	DefaultMinShares decimal.Decimal `json:"default_min_shares"`
	Owner            string          `json:"owner"`
}

// OperationResponse is one journaled flow
type OperationResponse struct {
	OperationID  string                  `json:"operation_id"`
	Kind         string                  `json:"kind"`
	Caller       string                  `json:"caller"`
	Vault        string                  `json:"vault"`
	Asset        string                  `json:"asset"`
	Quantity     decimal.Decimal         `json:"quantity"`
	MinShares    *decimal.Decimal        `json:"min_shares,omitempty"`
	SharesIssued *decimal.Decimal        `json:"shares_issued,omitempty"`
	Released     []ReleasedAssetResponse `json:"released,omitempty"`
	OccurredAt   time.Time               `json:"occurred_at"`
}

// ToInvestmentResponse converts a receipt to its response
func ToInvestmentResponse(r *custody.InvestmentReceipt) InvestmentResponse {
	return InvestmentResponse{
		OperationID:  r.OperationID.String(),
		Caller:       r.Caller.String(),
		Vault:        r.Vault.String(),
		Asset:        r.Asset.String(),
		Amount:       r.Amount,
		MinShares:    r.MinShares,
		SharesIssued: r.SharesIssued,
	}
}

// ToRedemptionResponse converts a receipt to its response
func ToRedemptionResponse(r *custody.RedemptionReceipt) RedemptionResponse {
	return RedemptionResponse{
		OperationID:   r.OperationID.String(),
		Caller:        r.Caller.String(),
		Vault:         r.Vault.String(),
		ShareAsset:    r.ShareAsset.String(),
		ShareQuantity: r.ShareQuantity,
		Released:      toReleasedResponses(r.Released()),
	}
}

// ToOperationResponse converts a journal entry to its response
func ToOperationResponse(e *custody.JournalEntry) OperationResponse {
	resp := OperationResponse{
		OperationID: e.OperationID.String(),
		Kind:        string(e.Kind),
		Caller:      e.Caller.String(),
		Vault:       e.Vault.String(),
		Asset:       e.Asset.String(),
		Quantity:    e.Quantity,
		OccurredAt:  e.OccurredAt,
	}
	switch e.Kind {
	case custody.InstructionInvest:
		minShares, shares := e.MinShares, e.SharesIssued
		resp.MinShares = &minShares
		resp.SharesIssued = &shares
	case custody.InstructionRedeem:
		resp.Released = toReleasedResponses(e.Released)
	}
	return resp
}

// ToOperationResponses converts a list of journal entries
func ToOperationResponses(entries []custody.JournalEntry) []OperationResponse {
	out := make([]OperationResponse, 0, len(entries))
	for i := range entries {
		out = append(out, ToOperationResponse(&entries[i]))
	}
	return out
}

func toReleasedResponses(released []custody.ReleasedAsset) []ReleasedAssetResponse {
	out := make([]ReleasedAssetResponse, 0, len(released))
	for _, r := range released {
		out = append(out, ReleasedAssetResponse{Asset: r.Asset.String(), Amount: r.Amount})
	}
	return out
}
