// Package custody exposes the delegated-custody operations to transports.
package custody

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/vaultbridge/backend/internal/domain/custody"
	"github.com/vaultbridge/backend/internal/domain/shared"
	"github.com/vaultbridge/backend/internal/domain/shared/valueobject"
	"github.com/vaultbridge/backend/internal/infrastructure/logger"
	"github.com/vaultbridge/backend/internal/infrastructure/telemetry"
	"go.uber.org/zap"
)

// Service runs custody flows on behalf of the caller bound to the context
type Service struct {
	custodian *custody.Custodian
	publisher shared.EventPublisher
	journal   custody.Journal
	metrics   *telemetry.CustodyMetrics
}

// NewService creates the service. journal and metrics may be nil.
func NewService(custodian *custody.Custodian, publisher shared.EventPublisher, journal custody.Journal, metrics *telemetry.CustodyMetrics) *Service {
	return &Service{
		custodian: custodian,
		publisher: publisher,
		journal:   journal,
		metrics:   metrics,
	}
}

// InvestInEnzymeVault deposits amount of asset into vault on behalf of the
// caller, who must have approved the custodian for at least amount. A zero
// minShares selects the configured default floor.
func (s *Service) InvestInEnzymeVault(ctx context.Context, vault custody.VaultHandle, asset custody.AssetHandle, amount, minShares decimal.Decimal) (*custody.InvestmentReceipt, error) {
	caller := CallerFromContext(ctx)
	ctx, span := telemetry.StartSpan(ctx, "custody.invest",
		telemetry.AttrCaller, caller,
		telemetry.AttrVault, vault,
		telemetry.AttrAsset, asset,
		telemetry.AttrQuantity, amount,
	)
	defer span.End()
	start := time.Now()

	var (
		receipt *custody.InvestmentReceipt
		err     error
	)
	telemetry.WithOperationLabel(ctx, string(custody.InstructionInvest), func(ctx context.Context) {
		receipt, err = s.custodian.Invest(ctx, custody.InvestRequest{
			Caller:    caller,
			Vault:     vault,
			Asset:     asset,
			Amount:    amount,
			MinShares: minShares,
		})
	})
	s.record(ctx, string(custody.InstructionInvest), err, start)
	if err != nil {
		telemetry.SetAttributes(span, telemetry.AttrErrorCode, shared.ErrorCode(err))
		telemetry.RecordError(span, err)
		s.logRejection(ctx, "investment rejected", err,
			zap.Stringer("vault", vault),
			zap.Stringer("asset", asset),
			zap.Stringer("amount", amount),
		)
		return nil, err
	}

	telemetry.SetAttributes(span,
		telemetry.AttrMinShares, receipt.MinShares,
		"custody.shares_issued", receipt.SharesIssued,
	)
	telemetry.SetOK(span)
	logger.L(ctx).Info("investment completed",
		zap.String("operation_id", receipt.OperationID.String()),
		zap.Stringer("vault", vault),
		zap.Stringer("asset", asset),
		zap.Stringer("amount", amount),
		zap.Stringer("min_shares", receipt.MinShares),
		zap.Stringer("shares_issued", receipt.SharesIssued),
	)

	s.publish(ctx, custody.NewInvestmentCompletedEvent(receipt))
	return receipt, nil
}

// RedeemFromEnzymeFundInKind redeems shareQuantity shares of vault in kind on
// behalf of the caller, who must have approved the custodian for at least
// shareQuantity of shareAsset. Zero quantities are forwarded to the vault.
func (s *Service) RedeemFromEnzymeFundInKind(ctx context.Context, vault custody.VaultHandle, shareAsset custody.AssetHandle, shareQuantity decimal.Decimal) (*custody.RedemptionReceipt, error) {
	caller := CallerFromContext(ctx)
	ctx, span := telemetry.StartSpan(ctx, "custody.redeem",
		telemetry.AttrCaller, caller,
		telemetry.AttrVault, vault,
		telemetry.AttrAsset, shareAsset,
		telemetry.AttrQuantity, shareQuantity,
	)
	defer span.End()
	start := time.Now()

	var (
		receipt *custody.RedemptionReceipt
		err     error
	)
	telemetry.WithOperationLabel(ctx, string(custody.InstructionRedeem), func(ctx context.Context) {
		receipt, err = s.custodian.RedeemInKind(ctx, custody.RedeemRequest{
			Caller:        caller,
			Vault:         vault,
			ShareAsset:    shareAsset,
			ShareQuantity: shareQuantity,
		})
	})
	s.record(ctx, string(custody.InstructionRedeem), err, start)
	if err != nil {
		telemetry.SetAttributes(span, telemetry.AttrErrorCode, shared.ErrorCode(err))
		telemetry.RecordError(span, err)
		s.logRejection(ctx, "redemption rejected", err,
			zap.Stringer("vault", vault),
			zap.Stringer("share_asset", shareAsset),
			zap.Stringer("share_quantity", shareQuantity),
		)
		return nil, err
	}

	released := receipt.Released()
	telemetry.SetAttributes(span, "custody.released_assets", len(released))
	telemetry.SetOK(span)
	if s.metrics != nil {
		s.metrics.RecordReleased(ctx, len(released))
	}
	logger.L(ctx).Info("redemption completed",
		zap.String("operation_id", receipt.OperationID.String()),
		zap.Stringer("vault", vault),
		zap.Stringer("share_asset", shareAsset),
		zap.Stringer("share_quantity", shareQuantity),
		zap.Int("released_assets", len(released)),
	)

	s.publish(ctx, custody.NewRedemptionCompletedEvent(receipt))
	return receipt, nil
}

// DefaultMinShares returns the floor applied when an investment names none
func (s *Service) DefaultMinShares() decimal.Decimal {
	return s.custodian.Policy().DefaultMinShares()
}

// SetDefaultMinShares changes the default floor. Only the custodian owner
// may call it.
func (s *Service) SetDefaultMinShares(ctx context.Context, v decimal.Decimal) error {
	caller := CallerFromContext(ctx)
	if err := s.custodian.Policy().SetDefaultMinShares(caller, v); err != nil {
		logger.L(ctx).Warn("settings change rejected",
			zap.String("code", shared.ErrorCode(err)),
			zap.Error(err),
		)
		return err
	}
	logger.L(ctx).Info("default min shares changed", zap.Stringer("min_shares", v))
	return nil
}

// Owner returns the account allowed to change custodian settings
func (s *Service) Owner() valueobject.Address {
	return s.custodian.Policy().Owner()
}

// TransferOwnership hands administrative control to next. Only the current
// owner may call it.
func (s *Service) TransferOwnership(ctx context.Context, next valueobject.Address) error {
	caller := CallerFromContext(ctx)
	if err := s.custodian.Policy().TransferOwnership(caller, next); err != nil {
		logger.L(ctx).Warn("ownership transfer rejected",
			zap.String("code", shared.ErrorCode(err)),
			zap.Error(err),
		)
		return err
	}
	logger.L(ctx).Info("custodian ownership transferred",
		zap.Stringer("previous_owner", caller),
		zap.Stringer("owner", next),
	)
	return nil
}

// ListOperations returns the caller's journaled flows, newest first
func (s *Service) ListOperations(ctx context.Context, limit int) ([]custody.JournalEntry, error) {
	if s.journal == nil {
		return nil, errJournalDisabled
	}
	caller := CallerFromContext(ctx)
	if caller.IsZero() {
		return nil, shared.ErrUnauthorized
	}
	return s.journal.ListByCaller(ctx, caller, limit)
}

// GetOperation returns one journaled flow of the caller
func (s *Service) GetOperation(ctx context.Context, id uuid.UUID) (*custody.JournalEntry, error) {
	if s.journal == nil {
		return nil, errJournalDisabled
	}
	entry, err := s.journal.FindByOperationID(ctx, id)
	if err != nil {
		return nil, err
	}
	if !entry.Caller.Equals(CallerFromContext(ctx)) {
		return nil, shared.ErrNotFound
	}
	return entry, nil
}

var errJournalDisabled = shared.NewDomainError("JOURNAL_DISABLED", "Operation journal is not configured")

func (s *Service) record(ctx context.Context, kind string, err error, start time.Time) {
	if s.metrics == nil {
		return
	}
	s.metrics.RecordFlow(ctx, kind, shared.ErrorCode(err), time.Since(start))
}

// publish runs after the flow committed, so a delivery failure is logged
// and the receipt still stands
func (s *Service) publish(ctx context.Context, event shared.DomainEvent) {
	if s.publisher == nil {
		return
	}
	if err := s.publisher.Publish(ctx, event); err != nil {
		logger.L(ctx).Warn("event delivery failed",
			zap.String("event_type", event.EventType()),
			zap.String("event_id", event.EventID().String()),
			zap.Error(err),
		)
	}
}

func (s *Service) logRejection(ctx context.Context, msg string, err error, fields ...zap.Field) {
	fields = append(fields, zap.String("code", shared.ErrorCode(err)), zap.Error(err))
	var shortfall *custody.InsufficientAllowanceError
	if errors.As(err, &shortfall) {
		fields = append(fields,
			zap.Stringer("observed", shortfall.Observed),
			zap.Stringer("required", shortfall.Required),
		)
	}
	logger.L(ctx).Warn(msg, fields...)
}
