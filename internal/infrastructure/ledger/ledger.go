// Package ledger provides an in-memory execution environment for the custody
// protocol: ERC20-equivalent tokens, a simulated pooled vault, and an
// all-or-nothing call boundary with nested savepoints.
package ledger

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"sync"

	"github.com/shopspring/decimal"
	"github.com/vaultbridge/backend/internal/domain/custody"
	"github.com/vaultbridge/backend/internal/domain/shared/valueobject"
	"go.uber.org/zap"
)

// Ledger errors. These play the role of reverts.
var (
	ErrInsufficientBalance   = errors.New("ledger: insufficient balance")
	ErrInsufficientAllowance = errors.New("ledger: insufficient allowance")
	ErrNullAddress           = errors.New("ledger: null address")
	ErrNegativeAmount        = errors.New("ledger: negative amount")
	ErrNotDeployed           = errors.New("ledger: no contract at address")
	ErrAlreadyDeployed       = errors.New("ledger: address already in use")
)

type allowanceKey struct {
	owner   valueobject.Address
	spender valueobject.Address
}

// state is everything that an atomic call may roll back
type state struct {
	balances   map[valueobject.Address]map[valueobject.Address]decimal.Decimal
	allowances map[valueobject.Address]map[allowanceKey]decimal.Decimal
	supply     map[valueobject.Address]decimal.Decimal
}

func newState() *state {
	return &state{
		balances:   make(map[valueobject.Address]map[valueobject.Address]decimal.Decimal),
		allowances: make(map[valueobject.Address]map[allowanceKey]decimal.Decimal),
		supply:     make(map[valueobject.Address]decimal.Decimal),
	}
}

func (s *state) clone() *state {
	c := newState()
	for token, holders := range s.balances {
		c.balances[token] = maps.Clone(holders)
	}
	for token, grants := range s.allowances {
		c.allowances[token] = maps.Clone(grants)
	}
	c.supply = maps.Clone(s.supply)
	return c
}

func (s *state) balance(token, holder valueobject.Address) decimal.Decimal {
	return s.balances[token][holder]
}

func (s *state) setBalance(token, holder valueobject.Address, v decimal.Decimal) {
	if s.balances[token] == nil {
		s.balances[token] = make(map[valueobject.Address]decimal.Decimal)
	}
	s.balances[token][holder] = v
}

func (s *state) allowance(token, owner, spender valueobject.Address) decimal.Decimal {
	return s.allowances[token][allowanceKey{owner, spender}]
}

func (s *state) setAllowance(token, owner, spender valueobject.Address, v decimal.Decimal) {
	if s.allowances[token] == nil {
		s.allowances[token] = make(map[allowanceKey]decimal.Decimal)
	}
	s.allowances[token][allowanceKey{owner, spender}] = v
}

type txKey struct{}

// Ledger is a serialized, in-memory ledger. Calls from different goroutines
// run one at a time; calls nested inside an Atomically share its state.
type Ledger struct {
	mu     sync.Mutex
	state  *state
	tokens map[valueobject.Address]*Token
	vaults map[valueobject.Address]*PooledVault
	logger *zap.Logger
}

// New creates an empty ledger
func New(logger *zap.Logger) *Ledger {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Ledger{
		state:  newState(),
		tokens: make(map[valueobject.Address]*Token),
		vaults: make(map[valueobject.Address]*PooledVault),
		logger: logger,
	}
}

func (l *Ledger) inTx(ctx context.Context) bool {
	owner, _ := ctx.Value(txKey{}).(*Ledger)
	return owner == l
}

// Atomically runs fn so that all of its state changes are discarded if it
// returns an error or panics. The outermost call holds the ledger lock for its
// whole duration; nested calls act as savepoints.
func (l *Ledger) Atomically(ctx context.Context, fn func(ctx context.Context) error) (err error) {
	if !l.inTx(ctx) {
		l.mu.Lock()
		defer l.mu.Unlock()
		ctx = context.WithValue(ctx, txKey{}, l)
	}

	snapshot := l.state.clone()
	defer func() {
		if r := recover(); r != nil {
			l.state = snapshot
			panic(r)
		}
		if err != nil {
			l.state = snapshot
			l.logger.Debug("atomic call reverted", zap.Error(err))
		}
	}()

	return fn(ctx)
}

// exec runs a single ledger operation, inside the caller's transaction when
// there is one
func (l *Ledger) exec(ctx context.Context, fn func(s *state) error) error {
	return l.Atomically(ctx, func(context.Context) error {
		return fn(l.state)
	})
}

// read runs fn against the current state without a snapshot
func (l *Ledger) read(ctx context.Context, fn func(s *state)) {
	if l.inTx(ctx) {
		fn(l.state)
		return
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	fn(l.state)
}

func (l *Ledger) reserve(addr valueobject.Address) error {
	if addr.IsZero() {
		return ErrNullAddress
	}
	if _, ok := l.tokens[addr]; ok {
		return fmt.Errorf("%w: %s", ErrAlreadyDeployed, addr)
	}
	if _, ok := l.vaults[addr]; ok {
		return fmt.Errorf("%w: %s", ErrAlreadyDeployed, addr)
	}
	return nil
}

// Token returns the token deployed at addr
func (l *Ledger) Token(addr valueobject.Address) (*Token, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	t, ok := l.tokens[addr]
	if !ok {
		return nil, fmt.Errorf("%w: token %s", ErrNotDeployed, addr)
	}
	return t, nil
}

// PooledVault returns the vault deployed at addr
func (l *Ledger) PooledVault(addr valueobject.Address) (*PooledVault, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	v, ok := l.vaults[addr]
	if !ok {
		return nil, fmt.Errorf("%w: vault %s", ErrNotDeployed, addr)
	}
	return v, nil
}

// Asset implements custody.Resolver
func (l *Ledger) Asset(ctx context.Context, h custody.AssetHandle) (custody.FungibleAsset, error) {
	if l.inTx(ctx) {
		t, ok := l.tokens[h.Address()]
		if !ok {
			return nil, fmt.Errorf("%w: token %s", ErrNotDeployed, h)
		}
		return t, nil
	}
	return l.Token(h.Address())
}

// Vault implements custody.Resolver
func (l *Ledger) Vault(ctx context.Context, h custody.VaultHandle) (custody.Vault, error) {
	if l.inTx(ctx) {
		v, ok := l.vaults[h.Address()]
		if !ok {
			return nil, fmt.Errorf("%w: vault %s", ErrNotDeployed, h)
		}
		return v, nil
	}
	return l.PooledVault(h.Address())
}

var (
	_ custody.Resolver       = (*Ledger)(nil)
	_ custody.AtomicExecutor = (*Ledger)(nil)
)
