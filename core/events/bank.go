package events

import (
	"math/big"

	"jobboard/core/types"
	"jobboard/crypto"
)

const (
	TypeBankTransfer = "bank.transfer"
	TypeBankMint     = "bank.mint"
)

// BankTransfer is emitted after a successful account-to-account transfer.
type BankTransfer struct {
	From   [20]byte
	To     [20]byte
	Amount *big.Int
}

func (BankTransfer) EventType() string { return TypeBankTransfer }

func (e BankTransfer) Event() *types.Event {
	return &types.Event{
		Type: TypeBankTransfer,
		Attributes: map[string]string{
			"from":   crypto.NewAddress(crypto.JobPrefix, e.From[:]).String(),
			"to":     crypto.NewAddress(crypto.JobPrefix, e.To[:]).String(),
			"amount": formatAmount(e.Amount),
		},
	}
}

// BankMint is emitted after the mint authority credits new base units.
type BankMint struct {
	To     [20]byte
	Amount *big.Int
}

func (BankMint) EventType() string { return TypeBankMint }

func (e BankMint) Event() *types.Event {
	return &types.Event{
		Type: TypeBankMint,
		Attributes: map[string]string{
			"to":     crypto.NewAddress(crypto.JobPrefix, e.To[:]).String(),
			"amount": formatAmount(e.Amount),
		},
	}
}

func formatAmount(amount *big.Int) string {
	if amount == nil {
		return "0"
	}
	return amount.String()
}
