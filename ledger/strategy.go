package ledger

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/mmdatafocus/ledger_backend/models"
)

var ErrUnsupportedStrategy = errors.New("unsupported balance strategy")

// Strategy selects how balances are derived.
type Strategy string

const (
	StrategyForward Strategy = "forward"
	// StrategyReverse is recognized but has no calculator yet.
	StrategyReverse Strategy = "reverse"
)

// ParseStrategy maps a stored or requested strategy name; empty means forward.
func ParseStrategy(s string) (Strategy, error) {
	switch Strategy(strings.ToLower(strings.TrimSpace(s))) {
	case "", StrategyForward:
		return StrategyForward, nil
	case StrategyReverse:
		return StrategyReverse, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnsupportedStrategy, s)
}

// Calculator produces the ordered daily balances of one account.
type Calculator interface {
	Calculate(ctx context.Context) ([]models.Balance, error)
}

// NewCalculator returns the calculator registered for strategy.
func NewCalculator(strategy Strategy, account *models.Account, cache *EntryCache) (Calculator, error) {
	switch strategy {
	case StrategyForward:
		return NewForwardCalculator(account, cache), nil
	}
	return nil, fmt.Errorf("%w: %q", ErrUnsupportedStrategy, strategy)
}
