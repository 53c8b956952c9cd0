package venue

import (
	"errors"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"go.uber.org/zap"

	"github.com/michaelpento.lv/flasharb/chain"
)

var (
	ErrInvalidPath = errors.New("invalid swap path")
	ErrExpired     = errors.New("swap deadline expired")
	ErrSlippage    = errors.New("insufficient output amount")
	ErrNoPool      = errors.New("no pool for pair")
	ErrNoLiquidity = errors.New("insufficient liquidity")
)

// 0.30% swap fee, uniswap v2 style.
var (
	feeNumerator   = big.NewInt(997)
	feeDenominator = big.NewInt(1000)
)

type pairKey struct {
	token0 common.Address
	token1 common.Address
}

func sortedPair(a, b common.Address) pairKey {
	if a.Hex() > b.Hex() {
		a, b = b, a
	}
	return pairKey{a, b}
}

// AMM is a constant-product exchange holding a set of pools on the shared
// state. Each pool's reserves are the balances of a derived pool account,
// so a rolled-back operation reverts reserves along with everything else.
// The AMM enforces its own deadline and minimum-output checks; the engine
// deliberately does not second-guess the slippage check.
type AMM struct {
	state  *chain.State
	addr   common.Address
	name   string
	pools  map[pairKey]common.Address
	logger *zap.Logger
}

// NewAMM creates an empty exchange identified by addr.
func NewAMM(state *chain.State, addr common.Address, name string, logger *zap.Logger) *AMM {
	return &AMM{
		state:  state,
		addr:   addr,
		name:   name,
		pools:  make(map[pairKey]common.Address),
		logger: logger,
	}
}

func (a *AMM) Address() common.Address { return a.addr }

func (a *AMM) Name() string { return a.name }

// poolFor derives the pool account for a pair, salted by the venue address.
func (a *AMM) poolFor(key pairKey) common.Address {
	salt := crypto.Keccak256(key.token0.Bytes(), key.token1.Bytes())
	return common.BytesToAddress(crypto.Keccak256(a.addr.Bytes(), salt))
}

// AddPool seeds a pool with the given reserves, minted to the pool account.
func (a *AMM) AddPool(tokenA, tokenB common.Address, reserveA, reserveB *big.Int) {
	key := sortedPair(tokenA, tokenB)
	poolAddr := a.poolFor(key)
	a.pools[key] = poolAddr
	a.state.Mint(tokenA, poolAddr, reserveA)
	a.state.Mint(tokenB, poolAddr, reserveB)
}

// getAmountOut applies the constant-product formula with the swap fee.
func getAmountOut(amountIn, reserveIn, reserveOut *big.Int) *big.Int {
	amountInWithFee := new(big.Int).Mul(amountIn, feeNumerator)
	numerator := new(big.Int).Mul(amountInWithFee, reserveOut)
	denominator := new(big.Int).Add(
		new(big.Int).Mul(reserveIn, feeDenominator),
		amountInWithFee,
	)
	return new(big.Int).Div(numerator, denominator)
}

// quote computes per-hop amounts and pool accounts without settling.
func (a *AMM) quote(amountIn *big.Int, path []common.Address) ([]*big.Int, []common.Address, error) {
	if len(path) < 2 {
		return nil, nil, ErrInvalidPath
	}
	amounts := make([]*big.Int, len(path))
	pools := make([]common.Address, len(path)-1)
	amounts[0] = new(big.Int).Set(amountIn)
	for i := 0; i < len(path)-1; i++ {
		poolAddr, ok := a.pools[sortedPair(path[i], path[i+1])]
		if !ok {
			return nil, nil, fmt.Errorf("%w: %s/%s", ErrNoPool, path[i].Hex(), path[i+1].Hex())
		}
		pools[i] = poolAddr
		reserveIn := a.state.BalanceOf(path[i], poolAddr)
		reserveOut := a.state.BalanceOf(path[i+1], poolAddr)
		out := getAmountOut(amounts[i], reserveIn, reserveOut)
		if out.Sign() <= 0 || out.Cmp(reserveOut) >= 0 {
			return nil, nil, fmt.Errorf("%w: %s/%s", ErrNoLiquidity, path[i].Hex(), path[i+1].Hex())
		}
		amounts[i+1] = out
	}
	return amounts, pools, nil
}

// Quote estimates the output of swapping amountIn along path.
func (a *AMM) Quote(amountIn *big.Int, path []common.Address) (*big.Int, error) {
	amounts, _, err := a.quote(amountIn, path)
	if err != nil {
		return nil, err
	}
	return amounts[len(amounts)-1], nil
}

// Exchange swaps amountIn of path[0] for path[last], paying the recipient.
// The caller must have approved this venue for amountIn beforehand.
func (a *AMM) Exchange(caller common.Address, amountIn, minAmountOut *big.Int, path []common.Address, recipient common.Address, deadline *big.Int) ([]*big.Int, error) {
	if deadline.Cmp(new(big.Int).SetUint64(a.state.Now())) < 0 {
		return nil, ErrExpired
	}

	amounts, pools, err := a.quote(amountIn, path)
	if err != nil {
		return nil, err
	}
	amountOut := amounts[len(amounts)-1]
	if amountOut.Cmp(minAmountOut) < 0 {
		return nil, fmt.Errorf("%w: got %s want >= %s", ErrSlippage, amountOut, minAmountOut)
	}

	// Settle: pull input into the first pool, roll intermediates forward,
	// pay the final output to the recipient.
	if err := a.state.TransferFrom(path[0], a.addr, caller, pools[0], amountIn); err != nil {
		return nil, fmt.Errorf("failed to pull input: %w", err)
	}
	for i := 1; i < len(pools); i++ {
		if err := a.state.Transfer(path[i], pools[i-1], pools[i], amounts[i]); err != nil {
			return nil, fmt.Errorf("failed to roll hop %d: %w", i, err)
		}
	}
	if err := a.state.Transfer(path[len(path)-1], pools[len(pools)-1], recipient, amountOut); err != nil {
		return nil, fmt.Errorf("failed to pay output: %w", err)
	}

	a.logger.Debug("swap settled",
		zap.String("venue", a.name),
		zap.String("token_in", path[0].Hex()),
		zap.String("token_out", path[len(path)-1].Hex()),
		zap.String("amount_in", amountIn.String()),
		zap.String("amount_out", amountOut.String()),
	)
	return amounts, nil
}
