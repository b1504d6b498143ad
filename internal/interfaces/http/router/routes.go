package router

import (
	"github.com/vaultbridge/backend/internal/interfaces/http/handler"
	"github.com/vaultbridge/backend/internal/interfaces/http/middleware"
)

// SystemRoutes registers /system
func SystemRoutes(h *handler.SystemHandler) *DomainGroup {
	return NewDomainGroup("system", "/system").
		GET("/info", h.GetSystemInfo).
		GET("/ping", h.Ping)
}

// CustodyRoutes registers /custody. Every route that acts for an account
// requires a bound caller.
func CustodyRoutes(h *handler.CustodyHandler) *DomainGroup {
	requireCaller := middleware.RequireCaller()
	return NewDomainGroup("custody", "/custody").
		POST("/investments", requireCaller, h.Invest).
		POST("/redemptions", requireCaller, h.Redeem).
		GET("/settings", h.GetSettings).
		PUT("/settings", requireCaller, h.UpdateSettings).
		PUT("/settings/owner", requireCaller, h.TransferOwnership).
		GET("/operations", requireCaller, h.ListOperations).
		GET("/operations/:id", requireCaller, h.GetOperation)
}

// LedgerRoutes registers the read-only /ledger queries
func LedgerRoutes(h *handler.LedgerHandler) *DomainGroup {
	return NewDomainGroup("ledger", "/ledger").
		GET("/assets/:asset/balances/:owner", h.GetBalance).
		GET("/assets/:asset/allowances/:owner/:spender", h.GetAllowance)
}
