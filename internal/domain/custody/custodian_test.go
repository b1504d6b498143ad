package custody

import (
	"context"
	"errors"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"github.com/vaultbridge/backend/internal/domain/shared"
	"github.com/vaultbridge/backend/internal/domain/shared/valueobject"
)

// =============================================================================
// Mocks
// =============================================================================

type MockAsset struct {
	mock.Mock
}

func (m *MockAsset) Allowance(ctx context.Context, owner, spender valueobject.Address) (decimal.Decimal, error) {
	args := m.Called(ctx, owner, spender)
	return args.Get(0).(decimal.Decimal), args.Error(1)
}

func (m *MockAsset) TransferFrom(ctx context.Context, spender, owner, to valueobject.Address, amount decimal.Decimal) (bool, error) {
	args := m.Called(ctx, spender, owner, to, amount)
	return args.Bool(0), args.Error(1)
}

func (m *MockAsset) Approve(ctx context.Context, owner, spender valueobject.Address, amount decimal.Decimal) (bool, error) {
	args := m.Called(ctx, owner, spender, amount)
	return args.Bool(0), args.Error(1)
}

// MockTrackedAsset additionally exposes balances
type MockTrackedAsset struct {
	MockAsset
}

func (m *MockTrackedAsset) BalanceOf(ctx context.Context, holder valueobject.Address) (decimal.Decimal, error) {
	args := m.Called(ctx, holder)
	return args.Get(0).(decimal.Decimal), args.Error(1)
}

type MockVault struct {
	mock.Mock
}

func (m *MockVault) BuySharesOnBehalf(ctx context.Context, caller, investor valueobject.Address, investmentAmount, minSharesQuantity decimal.Decimal) (decimal.Decimal, error) {
	args := m.Called(ctx, caller, investor, investmentAmount, minSharesQuantity)
	return args.Get(0).(decimal.Decimal), args.Error(1)
}

func (m *MockVault) RedeemSharesInKind(ctx context.Context, caller, recipient valueobject.Address, sharesQuantity decimal.Decimal, additionalAssets, assetsToSkip []valueobject.Address) ([]valueobject.Address, []decimal.Decimal, error) {
	args := m.Called(ctx, caller, recipient, sharesQuantity, additionalAssets, assetsToSkip)
	var assets []valueobject.Address
	if v := args.Get(0); v != nil {
		assets = v.([]valueobject.Address)
	}
	var amounts []decimal.Decimal
	if v := args.Get(1); v != nil {
		amounts = v.([]decimal.Decimal)
	}
	return assets, amounts, args.Error(2)
}

type stubResolver struct {
	assets map[valueobject.Address]FungibleAsset
	vaults map[valueobject.Address]Vault
}

func (r *stubResolver) Asset(_ context.Context, h AssetHandle) (FungibleAsset, error) {
	if a, ok := r.assets[h.Address()]; ok {
		return a, nil
	}
	return nil, errors.New("unknown asset")
}

func (r *stubResolver) Vault(_ context.Context, h VaultHandle) (Vault, error) {
	if v, ok := r.vaults[h.Address()]; ok {
		return v, nil
	}
	return nil, errors.New("unknown vault")
}

type inlineExecutor struct {
	calls int
}

func (e *inlineExecutor) Atomically(ctx context.Context, fn func(ctx context.Context) error) error {
	e.calls++
	return fn(ctx)
}

// =============================================================================
// Fixtures
// =============================================================================

var (
	custodianAddr = valueobject.MustParseAddress("0x00000000000000000000000000000000000000c0")
	callerAddr    = valueobject.MustParseAddress("0x00000000000000000000000000000000000000a1")
	ownerAddr     = valueobject.MustParseAddress("0x00000000000000000000000000000000000000ff")
	assetAddr     = valueobject.MustParseAddress("0x0000000000000000000000000000000000000a55")
	sharesAddr    = valueobject.MustParseAddress("0x0000000000000000000000000000000000005a7e")
	vaultAddr     = valueobject.MustParseAddress("0x000000000000000000000000000000000000fa17")
	otherAddr     = valueobject.MustParseAddress("0x000000000000000000000000000000000000beef")
)

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func decEq(s string) any {
	want := dec(s)
	return mock.MatchedBy(func(d decimal.Decimal) bool { return d.Equal(want) })
}

type fixture struct {
	asset     *MockAsset
	shares    *MockAsset
	vault     *MockVault
	env       *inlineExecutor
	custodian *Custodian
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		asset:  new(MockAsset),
		shares: new(MockAsset),
		vault:  new(MockVault),
		env:    &inlineExecutor{},
	}
	resolver := &stubResolver{
		assets: map[valueobject.Address]FungibleAsset{assetAddr: f.asset, sharesAddr: f.shares},
		vaults: map[valueobject.Address]Vault{vaultAddr: f.vault},
	}
	c, err := NewCustodian(custodianAddr, resolver, f.env, NewPolicy(ownerAddr, DefaultMinShares))
	require.NoError(t, err)
	f.custodian = c
	return f
}

func investReq(amount string) InvestRequest {
	return InvestRequest{
		Caller: callerAddr,
		Vault:  NewVaultHandle(vaultAddr),
		Asset:  NewAssetHandle(assetAddr),
		Amount: dec(amount),
	}
}

func redeemReq(quantity string) RedeemRequest {
	return RedeemRequest{
		Caller:        callerAddr,
		Vault:         NewVaultHandle(vaultAddr),
		ShareAsset:    NewAssetHandle(sharesAddr),
		ShareQuantity: dec(quantity),
	}
}

// =============================================================================
// Construction
// =============================================================================

func TestNewCustodian(t *testing.T) {
	resolver := &stubResolver{}
	env := &inlineExecutor{}

	t.Run("rejects null self", func(t *testing.T) {
		_, err := NewCustodian(valueobject.ZeroAddress, resolver, env, nil)
		assert.ErrorIs(t, err, ErrInvalidArgument)
	})

	t.Run("requires resolver and executor", func(t *testing.T) {
		_, err := NewCustodian(custodianAddr, nil, env, nil)
		assert.Error(t, err)
		_, err = NewCustodian(custodianAddr, resolver, nil, nil)
		assert.Error(t, err)
	})

	t.Run("defaults policy", func(t *testing.T) {
		c, err := NewCustodian(custodianAddr, resolver, env, nil)
		require.NoError(t, err)
		assert.True(t, c.Policy().DefaultMinShares().Equal(DefaultMinShares))
		assert.Equal(t, custodianAddr, c.Address())
	})
}

// =============================================================================
// Deposit flow
// =============================================================================

func TestCustodian_Invest_InvalidArguments(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(r *InvestRequest)
		wantMsg string
	}{
		{name: "zero amount", mutate: func(r *InvestRequest) { r.Amount = decimal.Zero }, wantMsg: "amount"},
		{name: "negative amount", mutate: func(r *InvestRequest) { r.Amount = dec("-5") }, wantMsg: "amount"},
		{name: "null vault", mutate: func(r *InvestRequest) { r.Vault = VaultHandle{} }, wantMsg: "vault"},
		{name: "null asset", mutate: func(r *InvestRequest) { r.Asset = AssetHandle{} }, wantMsg: "asset"},
		{
			name: "amount is checked before vault",
			mutate: func(r *InvestRequest) {
				r.Amount = decimal.Zero
				r.Vault = VaultHandle{}
				r.Asset = AssetHandle{}
			},
			wantMsg: "amount",
		},
		{
			name: "vault is checked before asset",
			mutate: func(r *InvestRequest) {
				r.Vault = VaultHandle{}
				r.Asset = AssetHandle{}
			},
			wantMsg: "vault",
		},
		{name: "unknown vault", mutate: func(r *InvestRequest) { r.Vault = NewVaultHandle(otherAddr) }, wantMsg: "unknown vault"},
		{name: "unknown asset", mutate: func(r *InvestRequest) { r.Asset = NewAssetHandle(otherAddr) }, wantMsg: "unknown asset"},
		{name: "negative min shares", mutate: func(r *InvestRequest) { r.MinShares = dec("-1") }, wantMsg: "min_shares"},
		{name: "null caller", mutate: func(r *InvestRequest) { r.Caller = valueobject.ZeroAddress }, wantMsg: "caller"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			req := investReq("100")
			tt.mutate(&req)

			receipt, err := f.custodian.Invest(context.Background(), req)

			require.Error(t, err)
			assert.Nil(t, receipt)
			assert.ErrorIs(t, err, ErrInvalidArgument)
			assert.Contains(t, err.Error(), tt.wantMsg)
			f.asset.AssertNotCalled(t, "TransferFrom", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything)
			f.vault.AssertNotCalled(t, "BuySharesOnBehalf", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything)
		})
	}
}

func TestCustodian_Invest_InsufficientAllowance(t *testing.T) {
	tests := []struct {
		name     string
		observed string
		amount   string
	}{
		{name: "no allowance", observed: "0", amount: "100"},
		{name: "one short", observed: "99", amount: "100"},
		{name: "fractional short", observed: "99.999", amount: "100"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			f.asset.On("Allowance", mock.Anything, callerAddr, custodianAddr).Return(dec(tt.observed), nil)

			_, err := f.custodian.Invest(context.Background(), investReq(tt.amount))

			require.Error(t, err)
			assert.ErrorIs(t, err, ErrInsufficientAllowance)

			var allowanceErr *InsufficientAllowanceError
			require.ErrorAs(t, err, &allowanceErr)
			assert.True(t, allowanceErr.Observed.Equal(dec(tt.observed)))
			assert.True(t, allowanceErr.Required.Equal(dec(tt.amount)))
			assert.Equal(t, callerAddr, allowanceErr.Owner)
			assert.Equal(t, custodianAddr, allowanceErr.Spender)

			var domainErr *shared.DomainError
			require.ErrorAs(t, err, &domainErr)
			assert.Equal(t, CodeInsufficientAllowance, domainErr.Code)

			f.asset.AssertNotCalled(t, "TransferFrom", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything)
			f.asset.AssertNotCalled(t, "Approve", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
		})
	}
}

func TestCustodian_Invest_AllowanceReadError(t *testing.T) {
	f := newFixture(t)
	boom := errors.New("call reverted")
	f.asset.On("Allowance", mock.Anything, callerAddr, custodianAddr).Return(decimal.Zero, boom)

	_, err := f.custodian.Invest(context.Background(), investReq("100"))

	require.Error(t, err)
	assert.ErrorIs(t, err, boom)
	for _, sentinel := range []error{
		ErrInvalidArgument, ErrInsufficientAllowance, ErrTransferFailed,
		ErrApprovalFailed, ErrVaultCallFailed, ErrReentrantCall, ErrCustodyInvariant,
	} {
		assert.NotErrorIs(t, err, sentinel)
	}
	f.asset.AssertNotCalled(t, "TransferFrom", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestCustodian_Invest_TransferFailure(t *testing.T) {
	reverted := errors.New("ERC20: transfer amount exceeds balance")

	tests := []struct {
		name  string
		ok    bool
		cause error
	}{
		{name: "returns false", ok: false, cause: nil},
		{name: "reverts", ok: false, cause: reverted},
		{name: "returns true with error", ok: true, cause: reverted},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			f.asset.On("Allowance", mock.Anything, callerAddr, custodianAddr).Return(dec("100"), nil)
			f.asset.On("TransferFrom", mock.Anything, custodianAddr, callerAddr, custodianAddr, decEq("100")).Return(tt.ok, tt.cause)

			_, err := f.custodian.Invest(context.Background(), investReq("100"))

			require.Error(t, err)
			assert.ErrorIs(t, err, ErrTransferFailed)
			if tt.cause != nil {
				assert.ErrorIs(t, err, tt.cause)
			}
			f.asset.AssertNotCalled(t, "Approve", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
			f.vault.AssertNotCalled(t, "BuySharesOnBehalf", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything)
		})
	}
}

func TestCustodian_Invest_ApprovalFailure(t *testing.T) {
	for _, cause := range []error{nil, errors.New("approve reverted")} {
		f := newFixture(t)
		f.asset.On("Allowance", mock.Anything, callerAddr, custodianAddr).Return(dec("100"), nil)
		f.asset.On("TransferFrom", mock.Anything, custodianAddr, callerAddr, custodianAddr, decEq("100")).Return(true, nil)
		f.asset.On("Approve", mock.Anything, custodianAddr, vaultAddr, decEq("100")).Return(false, cause)

		_, err := f.custodian.Invest(context.Background(), investReq("100"))

		require.Error(t, err)
		assert.ErrorIs(t, err, ErrApprovalFailed)
		f.vault.AssertNotCalled(t, "BuySharesOnBehalf", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything)
	}
}

func TestCustodian_Invest_VaultFailure(t *testing.T) {
	f := newFixture(t)
	boom := errors.New("vault: paused")
	f.asset.On("Allowance", mock.Anything, callerAddr, custodianAddr).Return(dec("100"), nil)
	f.asset.On("TransferFrom", mock.Anything, custodianAddr, callerAddr, custodianAddr, decEq("100")).Return(true, nil)
	f.asset.On("Approve", mock.Anything, custodianAddr, vaultAddr, decEq("100")).Return(true, nil)
	f.vault.On("BuySharesOnBehalf", mock.Anything, custodianAddr, callerAddr, decEq("100"), decEq("1")).Return(decimal.Zero, boom)

	_, err := f.custodian.Invest(context.Background(), investReq("100"))

	require.Error(t, err)
	assert.ErrorIs(t, err, ErrVaultCallFailed)
	assert.ErrorIs(t, err, boom)
}

func TestCustodian_Invest_Success(t *testing.T) {
	f := newFixture(t)
	f.asset.On("Allowance", mock.Anything, callerAddr, custodianAddr).Return(dec("250"), nil).Once()
	f.asset.On("TransferFrom", mock.Anything, custodianAddr, callerAddr, custodianAddr, decEq("100")).Return(true, nil).Once()
	f.asset.On("Approve", mock.Anything, custodianAddr, vaultAddr, decEq("100")).Return(true, nil).Once()
	f.vault.On("BuySharesOnBehalf", mock.Anything, custodianAddr, callerAddr, decEq("100"), decEq("1")).Return(dec("42"), nil).Once()

	receipt, err := f.custodian.Invest(context.Background(), investReq("100"))

	require.NoError(t, err)
	require.NotNil(t, receipt)
	assert.True(t, receipt.SharesIssued.Equal(dec("42")))
	assert.True(t, receipt.MinShares.Equal(DefaultMinShares))
	assert.Equal(t, callerAddr, receipt.Caller)
	assert.NotEqual(t, receipt.OperationID.String(), "00000000-0000-0000-0000-000000000000")
	assert.Equal(t, 1, f.env.calls)
	assert.False(t, f.custodian.guard.Held())
	f.asset.AssertExpectations(t)
	f.vault.AssertExpectations(t)
}

func TestCustodian_Invest_MinShares(t *testing.T) {
	t.Run("explicit floor is passed through", func(t *testing.T) {
		f := newFixture(t)
		f.asset.On("Allowance", mock.Anything, callerAddr, custodianAddr).Return(dec("100"), nil)
		f.asset.On("TransferFrom", mock.Anything, custodianAddr, callerAddr, custodianAddr, decEq("100")).Return(true, nil)
		f.asset.On("Approve", mock.Anything, custodianAddr, vaultAddr, decEq("100")).Return(true, nil)
		f.vault.On("BuySharesOnBehalf", mock.Anything, custodianAddr, callerAddr, decEq("100"), decEq("95")).Return(dec("97"), nil)

		req := investReq("100")
		req.MinShares = dec("95")
		receipt, err := f.custodian.Invest(context.Background(), req)

		require.NoError(t, err)
		assert.True(t, receipt.MinShares.Equal(dec("95")))
	})

	t.Run("owner configured default applies", func(t *testing.T) {
		f := newFixture(t)
		require.NoError(t, f.custodian.Policy().SetDefaultMinShares(ownerAddr, dec("10")))
		f.asset.On("Allowance", mock.Anything, callerAddr, custodianAddr).Return(dec("100"), nil)
		f.asset.On("TransferFrom", mock.Anything, custodianAddr, callerAddr, custodianAddr, decEq("100")).Return(true, nil)
		f.asset.On("Approve", mock.Anything, custodianAddr, vaultAddr, decEq("100")).Return(true, nil)
		f.vault.On("BuySharesOnBehalf", mock.Anything, custodianAddr, callerAddr, decEq("100"), decEq("10")).Return(dec("12"), nil)

		_, err := f.custodian.Invest(context.Background(), investReq("100"))
		require.NoError(t, err)
		f.vault.AssertExpectations(t)
	})
}

func TestCustodian_Invest_NotIdempotent(t *testing.T) {
	f := newFixture(t)
	f.asset.On("Allowance", mock.Anything, callerAddr, custodianAddr).Return(dec("100"), nil)
	f.asset.On("TransferFrom", mock.Anything, custodianAddr, callerAddr, custodianAddr, decEq("100")).Return(true, nil)
	f.asset.On("Approve", mock.Anything, custodianAddr, vaultAddr, decEq("100")).Return(true, nil)
	f.vault.On("BuySharesOnBehalf", mock.Anything, custodianAddr, callerAddr, decEq("100"), decEq("1")).Return(dec("100"), nil)

	first, err := f.custodian.Invest(context.Background(), investReq("100"))
	require.NoError(t, err)
	second, err := f.custodian.Invest(context.Background(), investReq("100"))
	require.NoError(t, err)

	assert.NotEqual(t, first.OperationID, second.OperationID)
	f.asset.AssertNumberOfCalls(t, "TransferFrom", 2)
	f.vault.AssertNumberOfCalls(t, "BuySharesOnBehalf", 2)
}

// =============================================================================
// Redemption flow
// =============================================================================

func TestCustodian_RedeemInKind_InsufficientAllowance(t *testing.T) {
	f := newFixture(t)
	f.shares.On("Allowance", mock.Anything, callerAddr, custodianAddr).Return(dec("3"), nil)

	_, err := f.custodian.RedeemInKind(context.Background(), redeemReq("5"))

	require.Error(t, err)
	var allowanceErr *InsufficientAllowanceError
	require.ErrorAs(t, err, &allowanceErr)
	assert.True(t, allowanceErr.Observed.Equal(dec("3")))
	f.shares.AssertNotCalled(t, "TransferFrom", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestCustodian_RedeemInKind_Success(t *testing.T) {
	f := newFixture(t)
	released := []valueobject.Address{assetAddr, otherAddr}
	amounts := []decimal.Decimal{dec("50"), dec("7.5")}

	f.shares.On("Allowance", mock.Anything, callerAddr, custodianAddr).Return(dec("5"), nil)
	f.shares.On("TransferFrom", mock.Anything, custodianAddr, callerAddr, custodianAddr, decEq("5")).Return(true, nil)
	f.shares.On("Approve", mock.Anything, custodianAddr, vaultAddr, decEq("5")).Return(true, nil)
	f.vault.On("RedeemSharesInKind", mock.Anything, custodianAddr, callerAddr, decEq("5"),
		mock.MatchedBy(func(a []valueobject.Address) bool { return a != nil && len(a) == 0 }),
		mock.MatchedBy(func(a []valueobject.Address) bool { return a != nil && len(a) == 0 }),
	).Return(released, amounts, nil)

	receipt, err := f.custodian.RedeemInKind(context.Background(), redeemReq("5"))

	require.NoError(t, err)
	require.Len(t, receipt.Released(), 2)
	assert.Equal(t, assetAddr, receipt.Released()[0].Asset)
	assert.True(t, receipt.Released()[1].Amount.Equal(dec("7.5")))
	f.vault.AssertExpectations(t)
}

func TestCustodian_RedeemInKind_ZeroQuantityIsForwarded(t *testing.T) {
	f := newFixture(t)
	f.shares.On("Allowance", mock.Anything, callerAddr, custodianAddr).Return(decimal.Zero, nil)
	f.shares.On("TransferFrom", mock.Anything, custodianAddr, callerAddr, custodianAddr, decEq("0")).Return(true, nil)
	f.shares.On("Approve", mock.Anything, custodianAddr, vaultAddr, decEq("0")).Return(true, nil)
	f.vault.On("RedeemSharesInKind", mock.Anything, custodianAddr, callerAddr, decEq("0"), mock.Anything, mock.Anything).
		Return(nil, nil, errors.New("vault: zero shares"))

	_, err := f.custodian.RedeemInKind(context.Background(), redeemReq("0"))

	assert.ErrorIs(t, err, ErrVaultCallFailed)
	f.vault.AssertCalled(t, "RedeemSharesInKind", mock.Anything, custodianAddr, callerAddr, decEq("0"), mock.Anything, mock.Anything)
}

func TestCustodian_RedeemInKind_Rejections(t *testing.T) {
	t.Run("negative quantity", func(t *testing.T) {
		f := newFixture(t)
		_, err := f.custodian.RedeemInKind(context.Background(), redeemReq("-1"))
		assert.ErrorIs(t, err, ErrInvalidArgument)
	})

	t.Run("unknown share asset", func(t *testing.T) {
		f := newFixture(t)
		req := redeemReq("1")
		req.ShareAsset = NewAssetHandle(otherAddr)
		_, err := f.custodian.RedeemInKind(context.Background(), req)
		assert.ErrorIs(t, err, ErrInvalidArgument)
	})

	t.Run("transfer fails", func(t *testing.T) {
		f := newFixture(t)
		f.shares.On("Allowance", mock.Anything, callerAddr, custodianAddr).Return(dec("1"), nil)
		f.shares.On("TransferFrom", mock.Anything, custodianAddr, callerAddr, custodianAddr, decEq("1")).Return(false, nil)
		_, err := f.custodian.RedeemInKind(context.Background(), redeemReq("1"))
		assert.ErrorIs(t, err, ErrTransferFailed)
		f.shares.AssertNotCalled(t, "Approve", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
	})

	t.Run("approve fails", func(t *testing.T) {
		f := newFixture(t)
		f.shares.On("Allowance", mock.Anything, callerAddr, custodianAddr).Return(dec("1"), nil)
		f.shares.On("TransferFrom", mock.Anything, custodianAddr, callerAddr, custodianAddr, decEq("1")).Return(true, nil)
		f.shares.On("Approve", mock.Anything, custodianAddr, vaultAddr, decEq("1")).Return(false, nil)
		_, err := f.custodian.RedeemInKind(context.Background(), redeemReq("1"))
		assert.ErrorIs(t, err, ErrApprovalFailed)
		f.vault.AssertNotCalled(t, "RedeemSharesInKind", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything)
	})
}

// =============================================================================
// Reentrancy
// =============================================================================

func TestCustodian_ReentrantCallsAreRejected(t *testing.T) {
	f := newFixture(t)
	var nestedInvestErr, nestedRedeemErr error

	f.asset.On("Allowance", mock.Anything, callerAddr, custodianAddr).Return(dec("100"), nil)
	f.asset.On("TransferFrom", mock.Anything, custodianAddr, callerAddr, custodianAddr, decEq("100")).Return(true, nil)
	f.asset.On("Approve", mock.Anything, custodianAddr, vaultAddr, decEq("100")).Return(true, nil)
	f.vault.On("BuySharesOnBehalf", mock.Anything, custodianAddr, callerAddr, decEq("100"), decEq("1")).
		Run(func(args mock.Arguments) {
			ctx := args.Get(0).(context.Context)
			_, nestedInvestErr = f.custodian.Invest(ctx, investReq("100"))
			_, nestedRedeemErr = f.custodian.RedeemInKind(ctx, redeemReq("1"))
		}).
		Return(dec("100"), nil)

	_, err := f.custodian.Invest(context.Background(), investReq("100"))

	require.NoError(t, err)
	assert.ErrorIs(t, nestedInvestErr, ErrReentrantCall)
	assert.ErrorIs(t, nestedRedeemErr, ErrReentrantCall)
	f.asset.AssertNumberOfCalls(t, "TransferFrom", 1)
	assert.False(t, f.custodian.guard.Held())
}

func TestCustodian_ReentrantCallWithFreshContextIsRejected(t *testing.T) {
	f := newFixture(t)
	var nestedErr error

	f.asset.On("Allowance", mock.Anything, callerAddr, custodianAddr).Return(dec("100"), nil)
	f.asset.On("TransferFrom", mock.Anything, custodianAddr, callerAddr, custodianAddr, decEq("100")).Return(true, nil)
	f.asset.On("Approve", mock.Anything, custodianAddr, vaultAddr, decEq("100")).Return(true, nil)
	f.vault.On("BuySharesOnBehalf", mock.Anything, custodianAddr, callerAddr, decEq("100"), decEq("1")).
		Run(func(mock.Arguments) {
			_, nestedErr = f.custodian.RedeemInKind(context.Background(), redeemReq("1"))
		}).
		Return(dec("100"), nil)

	_, err := f.custodian.Invest(context.Background(), investReq("100"))

	require.NoError(t, err)
	assert.ErrorIs(t, nestedErr, ErrReentrantCall)
	f.shares.AssertNotCalled(t, "Allowance", mock.Anything, mock.Anything, mock.Anything)
	assert.False(t, f.custodian.guard.Held())
}

func TestCustodian_GuardReleasedOnFailureAndPanic(t *testing.T) {
	f := newFixture(t)

	_, err := f.custodian.Invest(context.Background(), investReq("0"))
	require.Error(t, err)
	assert.False(t, f.custodian.guard.Held())

	f.asset.On("Allowance", mock.Anything, callerAddr, custodianAddr).Return(dec("100"), nil)
	f.asset.On("TransferFrom", mock.Anything, custodianAddr, callerAddr, custodianAddr, decEq("100")).Return(true, nil)
	f.asset.On("Approve", mock.Anything, custodianAddr, vaultAddr, decEq("100")).Return(true, nil)
	f.vault.On("BuySharesOnBehalf", mock.Anything, custodianAddr, callerAddr, decEq("100"), decEq("1")).
		Run(func(mock.Arguments) { panic("vault exploded") }).
		Return(decimal.Zero, nil)

	assert.Panics(t, func() {
		_, _ = f.custodian.Invest(context.Background(), investReq("100"))
	})
	assert.False(t, f.custodian.guard.Held())
}

// =============================================================================
// Custody invariant
// =============================================================================

func TestCustodian_CustodyInvariant(t *testing.T) {
	setup := func(t *testing.T, balances ...string) (*Custodian, *MockTrackedAsset, *MockVault) {
		asset := new(MockTrackedAsset)
		vault := new(MockVault)
		resolver := &stubResolver{
			assets: map[valueobject.Address]FungibleAsset{assetAddr: asset},
			vaults: map[valueobject.Address]Vault{vaultAddr: vault},
		}
		c, err := NewCustodian(custodianAddr, resolver, &inlineExecutor{}, nil)
		require.NoError(t, err)

		asset.On("Allowance", mock.Anything, callerAddr, custodianAddr).Return(dec("100"), nil)
		asset.On("TransferFrom", mock.Anything, custodianAddr, callerAddr, custodianAddr, decEq("100")).Return(true, nil)
		asset.On("Approve", mock.Anything, custodianAddr, vaultAddr, decEq("100")).Return(true, nil)
		for _, b := range balances {
			asset.On("BalanceOf", mock.Anything, custodianAddr).Return(dec(b), nil).Once()
		}
		vault.On("BuySharesOnBehalf", mock.Anything, custodianAddr, callerAddr, decEq("100"), decEq("1")).Return(dec("100"), nil)
		return c, asset, vault
	}

	t.Run("holds nothing after a clean flow", func(t *testing.T) {
		c, asset, _ := setup(t, "0", "100", "0")
		_, err := c.Invest(context.Background(), investReq("100"))
		require.NoError(t, err)
		asset.AssertNumberOfCalls(t, "BalanceOf", 3)
	})

	t.Run("short pull is fatal", func(t *testing.T) {
		c, _, vault := setup(t, "0", "98")
		_, err := c.Invest(context.Background(), investReq("100"))
		assert.ErrorIs(t, err, ErrCustodyInvariant)
		vault.AssertNotCalled(t, "BuySharesOnBehalf", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything)
	})

	t.Run("residual custody is fatal", func(t *testing.T) {
		c, _, _ := setup(t, "0", "100", "40")
		_, err := c.Invest(context.Background(), investReq("100"))
		assert.ErrorIs(t, err, ErrCustodyInvariant)
	})
}

func TestVaultInstruction_IssuedOnce(t *testing.T) {
	vault := new(MockVault)
	vault.On("BuySharesOnBehalf", mock.Anything, custodianAddr, callerAddr, decEq("1"), decEq("1")).Return(dec("1"), nil)

	inst := &VaultInstruction{Kind: InstructionInvest, Beneficiary: callerAddr, Quantity: dec("1"), MinShares: dec("1")}
	_, err := inst.issue(context.Background(), custodianAddr, vault)
	require.NoError(t, err)
	assert.True(t, inst.Issued())

	_, err = inst.issue(context.Background(), custodianAddr, vault)
	assert.ErrorIs(t, err, shared.ErrInvalidState)
	vault.AssertNumberOfCalls(t, "BuySharesOnBehalf", 1)
}
