package bank

import (
	"errors"
	"fmt"
	"math/big"

	"jobboard/core/types"
)

// State is the subset of ledger functionality the bank operations need.
type State interface {
	GetAccount(addr []byte) (*types.Account, error)
	PutAccount(addr []byte, account *types.Account) error
}

var (
	// ErrInvalidAmount marks zero or negative transfer amounts.
	ErrInvalidAmount = errors.New("bank: amount must be positive")
	// ErrInsufficientBalance marks transfers exceeding the sender's funds.
	ErrInsufficientBalance = errors.New("bank: insufficient balance")
)

// Transfer moves base units between two accounts. The whole operation applies
// or none of it does; the sender's balance can never go negative.
func Transfer(st State, from, to [20]byte, amount *big.Int) error {
	if st == nil {
		return fmt.Errorf("bank: state required")
	}
	if amount == nil || amount.Sign() <= 0 {
		return ErrInvalidAmount
	}
	if from == to {
		return nil
	}
	fromAcc, err := st.GetAccount(from[:])
	if err != nil {
		return err
	}
	toAcc, err := st.GetAccount(to[:])
	if err != nil {
		return err
	}
	fromAcc = types.EnsureAccount(fromAcc)
	toAcc = types.EnsureAccount(toAcc)
	if fromAcc.Balance.Cmp(amount) < 0 {
		return ErrInsufficientBalance
	}
	fromAcc.Balance = new(big.Int).Sub(fromAcc.Balance, amount)
	fromAcc.Nonce++
	toAcc.Balance = new(big.Int).Add(toAcc.Balance, amount)
	if err := st.PutAccount(from[:], fromAcc); err != nil {
		return err
	}
	return st.PutAccount(to[:], toAcc)
}

// Mint credits freshly issued base units to an account. Authorisation is the
// caller's responsibility; the node restricts it to the configured authority.
func Mint(st State, to [20]byte, amount *big.Int) error {
	if st == nil {
		return fmt.Errorf("bank: state required")
	}
	if amount == nil || amount.Sign() <= 0 {
		return ErrInvalidAmount
	}
	acc, err := st.GetAccount(to[:])
	if err != nil {
		return err
	}
	acc = types.EnsureAccount(acc)
	acc.Balance = new(big.Int).Add(acc.Balance, amount)
	return st.PutAccount(to[:], acc)
}
