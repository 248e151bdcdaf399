// Package evm provides the EVM chain module for Ethereum and compatible chains.
package evm

import (
	"context"
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/ethclient"

	"github.com/pendergraft/verifactory/internal/chains"
)

var _ chains.Chain = (*Chain)(nil)

// Chain reads contract code from an EVM JSON-RPC endpoint.
type Chain struct {
	rpcURL  string
	timeout time.Duration
}

// Option configures a Chain.
type Option func(*Chain)

// WithTimeout bounds each RPC call.
func WithTimeout(d time.Duration) Option {
	return func(c *Chain) {
		c.timeout = d
	}
}

// NewChain creates an EVM chain module backed by the node at rpcURL.
func NewChain(rpcURL string, opts ...Option) *Chain {
	c := &Chain{
		rpcURL:  rpcURL,
		timeout: 30 * time.Second,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Name returns the chain identifier
func (c *Chain) Name() string {
	return "evm"
}

// GetDeployedBytecode calls eth_getCode at the latest block.
func (c *Chain) GetDeployedBytecode(ctx context.Context, address string) ([]byte, error) {
	if !common.IsHexAddress(address) {
		return nil, fmt.Errorf("invalid address %q", address)
	}
	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	client, err := ethclient.DialContext(ctx, c.rpcURL)
	if err != nil {
		return nil, fmt.Errorf("connecting to rpc: %w", err)
	}
	defer client.Close()

	code, err := client.CodeAt(ctx, common.HexToAddress(address), nil)
	if err != nil {
		return nil, fmt.Errorf("eth_getCode: %w", err)
	}
	return code, nil
}
