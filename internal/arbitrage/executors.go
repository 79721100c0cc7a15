package arbitrage

import (
	"fmt"

	"github.com/ethereum/go-ethereum/common"

	"github.com/alanyoungcy/ammarb/internal/domain"
)

// ExecutorMissingError is returned by ExecutorFor when no executor contract
// is configured for a token. It matches domain.ErrNoExecutor.
type ExecutorMissingError struct {
	Token common.Address
}

func (e *ExecutorMissingError) Error() string {
	return fmt.Sprintf("arbitrage: %s: %s", domain.ErrNoExecutor, e.Token.Hex())
}

func (e *ExecutorMissingError) Unwrap() error { return domain.ErrNoExecutor }

// ExecutorBook maps tokens to the executor contract that trades them.
// It is read-only after construction.
type ExecutorBook struct {
	byToken map[common.Address]common.Address
}

// NewExecutorBook copies the given mapping.
func NewExecutorBook(byToken map[common.Address]common.Address) *ExecutorBook {
	m := make(map[common.Address]common.Address, len(byToken))
	for token, exec := range byToken {
		m[token] = exec
	}
	return &ExecutorBook{byToken: m}
}

// ExecutorFor returns the executor for token.
func (b *ExecutorBook) ExecutorFor(token common.Address) (common.Address, error) {
	exec, ok := b.byToken[token]
	if !ok || exec == (common.Address{}) {
		return common.Address{}, &ExecutorMissingError{Token: token}
	}
	return exec, nil
}

// Len returns the number of configured executors.
func (b *ExecutorBook) Len() int { return len(b.byToken) }
