package source

import (
	"context"
	"errors"
	"math/big"
	"sync"

	"firstbuyers/internal/connection"
	"firstbuyers/pkg/models"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
)

var errFakeRPC = errors.New("connection refused")

// fakeChain 直接把调用交给内存客户端
type fakeChain struct {
	client *fakeClient
}

func (f *fakeChain) Do(ctx context.Context, operation string, fn func(context.Context, connection.ChainClient) error) error {
	return fn(ctx, f.client)
}

type fakeClient struct {
	mu       sync.Mutex
	calls    map[string][]byte // 方法选择器 -> 返回数据
	txs      map[common.Hash]*types.Transaction
	receipts map[common.Hash]*types.Receipt
	headers  map[uint64]*types.Header
	stall    bool // 合约调用阻塞到上下文结束
}

func newFakeClient() *fakeClient {
	return &fakeClient{
		calls:    make(map[string][]byte),
		txs:      make(map[common.Hash]*types.Transaction),
		receipts: make(map[common.Hash]*types.Receipt),
		headers:  make(map[uint64]*types.Header),
	}
}

func (c *fakeClient) CallContract(ctx context.Context, msg ethereum.CallMsg, blockNumber *big.Int) ([]byte, error) {
	if c.stall {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	out, ok := c.calls[string(msg.Data[:4])]
	if !ok {
		return nil, errFakeRPC
	}
	return out, nil
}

func (c *fakeClient) TransactionByHash(ctx context.Context, hash common.Hash) (*types.Transaction, bool, error) {
	if tx, ok := c.txs[hash]; ok {
		return tx, false, nil
	}
	return nil, false, ethereum.NotFound
}

func (c *fakeClient) TransactionReceipt(ctx context.Context, hash common.Hash) (*types.Receipt, error) {
	if r, ok := c.receipts[hash]; ok {
		return r, nil
	}
	return nil, ethereum.NotFound
}

func (c *fakeClient) HeaderByNumber(ctx context.Context, number *big.Int) (*types.Header, error) {
	if h, ok := c.headers[number.Uint64()]; ok {
		return h, nil
	}
	return nil, errFakeRPC
}

func (c *fakeClient) Close() {}

// setCall 设置某个ERC-20方法的返回值
func (c *fakeClient) setCall(method string, values ...interface{}) {
	m := erc20ABI.Methods[method]
	out, err := m.Outputs.Pack(values...)
	if err != nil {
		panic(err)
	}
	c.calls[string(m.ID)] = out
}

// fakeExplorer 浏览器回退数据源
type fakeExplorer struct {
	supply      *big.Int
	supplyErr   error
	first       *models.TransferEvent
	firstErr    error
	firstCalls  int
	internal    *big.Int
	internalErr error
	mu          sync.Mutex
}

func (e *fakeExplorer) TokenSupply(ctx context.Context, contract common.Address) (*big.Int, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return e.supply, e.supplyErr
}

func (e *fakeExplorer) FirstTransfer(ctx context.Context, contract common.Address) (*models.TransferEvent, error) {
	e.mu.Lock()
	e.firstCalls++
	e.mu.Unlock()
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return e.first, e.firstErr
}

func (e *fakeExplorer) InternalTransfersTo(ctx context.Context, txHash common.Hash, recipient common.Address) (*big.Int, error) {
	return e.internal, e.internalErr
}
