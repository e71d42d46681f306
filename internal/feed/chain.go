package feed

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/holiman/uint256"
	"github.com/rs/zerolog"

	"quote-oracle/internal/oracle"
)

const (
	getQuotesMethod = "getQuotes"
	feedABIJSON     = `[{"inputs":[],"name":"getQuotes","outputs":[{"components":[{"internalType":"uint256","name":"price","type":"uint256"},{"internalType":"uint256","name":"blockNumber","type":"uint256"}],"internalType":"struct Quote[]","name":"","type":"tuple[]"}],"stateMutability":"view","type":"function"}]`
)

var feedABI abi.ABI

func init() {
	parsed, err := abi.JSON(strings.NewReader(feedABIJSON))
	if err != nil {
		panic("failed to parse quote feed ABI: " + err.Error())
	}
	feedABI = parsed
}

type quoteTuple struct {
	Price       *big.Int `json:"price"`
	BlockNumber *big.Int `json:"blockNumber"`
}

// ChainOptions parameterise the on-chain feed reader.
type ChainOptions struct {
	RPCURL      string
	FeedAddress string
	Timeout     time.Duration
}

// Chain reads quotes from a feed contract over Ethereum JSON-RPC.
type Chain struct {
	opts      ChainOptions
	logger    zerolog.Logger
	client    *ethclient.Client
	clientMux sync.Mutex
}

// NewChain builds a new on-chain feed reader.
func NewChain(opts ChainOptions, logger zerolog.Logger) *Chain {
	return &Chain{opts: opts, logger: logger.With().Str("component", "chain_feed").Logger()}
}

// CurrentBlock returns the latest block number known to the RPC node.
func (c *Chain) CurrentBlock(ctx context.Context) (uint64, error) {
	ctx, cancel := c.withTimeout(ctx)
	defer cancel()

	client, err := c.getClient(ctx)
	if err != nil {
		return 0, err
	}

	block, err := client.BlockNumber(ctx)
	if err != nil {
		return 0, fmt.Errorf("block number: %w", err)
	}
	return block, nil
}

// Quotes calls getQuotes() on the feed contract with state pinned at atBlock.
func (c *Chain) Quotes(ctx context.Context, atBlock uint64) ([]oracle.Quote, error) {
	ctx, cancel := c.withTimeout(ctx)
	defer cancel()

	client, err := c.getClient(ctx)
	if err != nil {
		return nil, err
	}

	addr := common.HexToAddress(c.opts.FeedAddress)
	payload, err := feedABI.Pack(getQuotesMethod)
	if err != nil {
		return nil, err
	}

	res, err := client.CallContract(ctx, ethereum.CallMsg{To: &addr, Data: payload}, new(big.Int).SetUint64(atBlock))
	if err != nil {
		return nil, fmt.Errorf("call %s: %w", getQuotesMethod, err)
	}

	quotes, err := decodeQuotes(res)
	if err != nil {
		return nil, err
	}

	c.logger.Debug().Uint64("block", atBlock).Int("quotes", len(quotes)).Msg("feed read")
	return quotes, nil
}

func decodeQuotes(res []byte) ([]oracle.Quote, error) {
	outputs, err := feedABI.Unpack(getQuotesMethod, res)
	if err != nil {
		return nil, fmt.Errorf("unpack %s: %w", getQuotesMethod, err)
	}
	if len(outputs) != 1 {
		return nil, errors.New("unexpected getQuotes response")
	}

	tuples := *abi.ConvertType(outputs[0], new([]quoteTuple)).(*[]quoteTuple)

	quotes := make([]oracle.Quote, 0, len(tuples))
	for i, t := range tuples {
		price, overflow := uint256.FromBig(t.Price)
		if overflow {
			return nil, fmt.Errorf("quote %d: price exceeds 256 bits", i)
		}
		if !t.BlockNumber.IsUint64() {
			return nil, fmt.Errorf("quote %d: block number exceeds 64 bits", i)
		}
		quotes = append(quotes, oracle.Quote{Price: *price, BlockHeight: t.BlockNumber.Uint64()})
	}

	if err := oracle.CheckOrdered(quotes); err != nil {
		return nil, err
	}
	return quotes, nil
}

func (c *Chain) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	timeout := c.opts.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return context.WithTimeout(ctx, timeout)
}

func (c *Chain) getClient(ctx context.Context) (*ethclient.Client, error) {
	if c.opts.RPCURL == "" {
		return nil, fmt.Errorf("%w: ethereum rpc url", ErrNotConfigured)
	}
	if c.opts.FeedAddress == "" || !common.IsHexAddress(c.opts.FeedAddress) {
		return nil, fmt.Errorf("%w: feed contract address", ErrNotConfigured)
	}

	c.clientMux.Lock()
	defer c.clientMux.Unlock()

	if c.client != nil {
		return c.client, nil
	}

	client, err := ethclient.DialContext(ctx, c.opts.RPCURL)
	if err != nil {
		return nil, fmt.Errorf("dial rpc: %w", err)
	}
	c.client = client
	return client, nil
}

// Close releases the RPC connection.
func (c *Chain) Close() {
	c.clientMux.Lock()
	defer c.clientMux.Unlock()
	if c.client != nil {
		c.client.Close()
		c.client = nil
	}
}

var _ Source = (*Chain)(nil)
