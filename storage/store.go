package storage

import (
	"encoding/json"
	"errors"
	"fmt"
	"math/big"
	"strings"

	"lendfi/core/types"
	"lendfi/crypto"
	"lendfi/native/lending"
)

// ErrInsufficientFunds is returned by ledger operations that would drive a
// balance negative.
var ErrInsufficientFunds = errors.New("storage: insufficient funds")

// Key layout. Records are JSON-encoded; the active-slot pointer holds the
// slot ID so lender lookups stay O(1) without iterating a prefix.
const (
	poolKeyPrefix       = "lending/pool/"
	depositSlotPrefix   = "lending/dslot/"
	activeDepositPrefix = "lending/dslot-active/"
	loanSlotPrefix      = "lending/lslot/"
	accountPrefix       = "accounts/"
)

// Store persists lending records and account balances over a key-value
// Database. It satisfies both the engine's state and ledger collaborator
// interfaces.
type Store struct {
	db Database
}

// NewStore wraps an existing database.
func NewStore(db Database) *Store { return &Store{db: db} }

// OpenStore opens a persistent store at the given path.
func OpenStore(path string) (*Store, error) {
	db, err := NewLevelDB(path)
	if err != nil {
		return nil, fmt.Errorf("storage: open %s: %w", path, err)
	}
	return &Store{db: db}, nil
}

// NewMemStore creates an ephemeral store for tests and local mode.
func NewMemStore() *Store { return &Store{db: NewMemDB()} }

// Close releases the underlying database.
func (s *Store) Close() {
	if s != nil && s.db != nil {
		s.db.Close()
	}
}

func (s *Store) getJSON(key string, out interface{}) (bool, error) {
	raw, err := s.db.Get([]byte(key))
	if errors.Is(err, ErrKeyNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return false, fmt.Errorf("storage: decode %s: %w", key, err)
	}
	return true, nil
}

func (s *Store) putJSON(key string, record interface{}) error {
	raw, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("storage: encode %s: %w", key, err)
	}
	return s.db.Put([]byte(key), raw)
}

// GetPool loads a pool record; a missing pool returns nil without error.
func (s *Store) GetPool(id string) (*lending.LoanPosition, error) {
	pool := new(lending.LoanPosition)
	ok, err := s.getJSON(poolKeyPrefix+strings.TrimSpace(id), pool)
	if err != nil || !ok {
		return nil, err
	}
	pool.EnsureDefaults()
	return pool, nil
}

// PutPool persists a pool record.
func (s *Store) PutPool(pool *lending.LoanPosition) error {
	if pool == nil || strings.TrimSpace(pool.ID) == "" {
		return fmt.Errorf("storage: pool record missing id")
	}
	return s.putJSON(poolKeyPrefix+pool.ID, pool)
}

// GetDepositSlot loads a deposit slot by ID.
func (s *Store) GetDepositSlot(id string) (*lending.DepositSlot, error) {
	slot := new(lending.DepositSlot)
	ok, err := s.getJSON(depositSlotPrefix+strings.TrimSpace(id), slot)
	if err != nil || !ok {
		return nil, err
	}
	slot.EnsureDefaults()
	return slot, nil
}

// PutDepositSlot persists a deposit slot and maintains the active-slot
// pointer for its lender. A slot that went terminal clears the pointer so the
// next deposit opens a fresh slot.
func (s *Store) PutDepositSlot(slot *lending.DepositSlot) error {
	if slot == nil || strings.TrimSpace(slot.ID) == "" {
		return fmt.Errorf("storage: deposit slot record missing id")
	}
	if err := s.putJSON(depositSlotPrefix+slot.ID, slot); err != nil {
		return err
	}
	pointer := activeDepositKey(slot.PoolID, slot.Lender)
	if slot.Active {
		return s.db.Put([]byte(pointer), []byte(slot.ID))
	}
	return s.db.Delete([]byte(pointer))
}

// ActiveDepositSlot resolves the lender's open slot in a pool, nil when none.
func (s *Store) ActiveDepositSlot(poolID string, lender crypto.Address) (*lending.DepositSlot, error) {
	raw, err := s.db.Get([]byte(activeDepositKey(poolID, lender)))
	if errors.Is(err, ErrKeyNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	slot, err := s.GetDepositSlot(string(raw))
	if err != nil {
		return nil, err
	}
	if slot == nil || !slot.Active {
		return nil, nil
	}
	return slot, nil
}

// GetLoanSlot loads a loan slot by ID.
func (s *Store) GetLoanSlot(id string) (*lending.LoanSlot, error) {
	slot := new(lending.LoanSlot)
	ok, err := s.getJSON(loanSlotPrefix+strings.TrimSpace(id), slot)
	if err != nil || !ok {
		return nil, err
	}
	slot.EnsureDefaults()
	return slot, nil
}

// PutLoanSlot persists a loan slot record.
func (s *Store) PutLoanSlot(slot *lending.LoanSlot) error {
	if slot == nil || strings.TrimSpace(slot.ID) == "" {
		return fmt.Errorf("storage: loan slot record missing id")
	}
	return s.putJSON(loanSlotPrefix+slot.ID, slot)
}

func activeDepositKey(poolID string, lender crypto.Address) string {
	return activeDepositPrefix + strings.TrimSpace(poolID) + "/" + lender.String()
}

func (s *Store) getAccount(addr crypto.Address) (*types.Account, error) {
	account := new(types.Account)
	ok, err := s.getJSON(accountPrefix+addr.String(), account)
	if err != nil {
		return nil, err
	}
	if !ok {
		account = &types.Account{}
	}
	if account.Balances == nil {
		account.Balances = make(map[string]*big.Int)
	}
	return account, nil
}

func (s *Store) putAccount(addr crypto.Address, account *types.Account) error {
	return s.putJSON(accountPrefix+addr.String(), account)
}

// Mint credits freshly issued tokens to an account.
func (s *Store) Mint(to crypto.Address, token string, amount *big.Int) error {
	if amount == nil || amount.Sign() <= 0 {
		return nil
	}
	account, err := s.getAccount(to)
	if err != nil {
		return err
	}
	account.SetBalance(token, new(big.Int).Add(account.Balance(token), amount))
	return s.putAccount(to, account)
}

// Burn debits tokens from an account, failing rather than going negative.
func (s *Store) Burn(from crypto.Address, token string, amount *big.Int) error {
	if amount == nil || amount.Sign() <= 0 {
		return nil
	}
	account, err := s.getAccount(from)
	if err != nil {
		return err
	}
	balance := account.Balance(token)
	if balance.Cmp(amount) < 0 {
		return ErrInsufficientFunds
	}
	account.SetBalance(token, new(big.Int).Sub(balance, amount))
	return s.putAccount(from, account)
}

// Transfer moves tokens between accounts.
func (s *Store) Transfer(from, to crypto.Address, token string, amount *big.Int) error {
	if amount == nil || amount.Sign() == 0 {
		return nil
	}
	if amount.Sign() < 0 {
		return fmt.Errorf("storage: negative transfer amount")
	}
	if err := s.Burn(from, token, amount); err != nil {
		return err
	}
	return s.Mint(to, token, amount)
}

// Balance reports an account's token balance; unknown accounts hold zero.
func (s *Store) Balance(addr crypto.Address, token string) (*big.Int, error) {
	account, err := s.getAccount(addr)
	if err != nil {
		return nil, err
	}
	return new(big.Int).Set(account.Balance(token)), nil
}
