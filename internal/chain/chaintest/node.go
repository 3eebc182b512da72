// Package chaintest provides an in-process node that speaks the subset of the
// eth JSON-RPC namespace used by chain.Session.
package chaintest

import (
	"context"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/rpc"

	"ethereumSource/internal/chain"
)

// Node is a fake node backed by an rpc.Server. Clients connect with DialInProc.
type Node struct {
	server *rpc.Server

	mu          sync.Mutex
	blocks      []*chain.Block
	byHash      map[common.Hash]*chain.Block
	txs         map[common.Hash]*chain.Transaction
	headSubs    map[rpc.ID]*rpc.Notifier
	pendingSubs map[rpc.ID]*rpc.Notifier
	dials       int
}

// NewNode starts a fake node with no blocks.
func NewNode() *Node {
	n := &Node{
		server:      rpc.NewServer(),
		byHash:      make(map[common.Hash]*chain.Block),
		txs:         make(map[common.Hash]*chain.Transaction),
		headSubs:    make(map[rpc.ID]*rpc.Notifier),
		pendingSubs: make(map[rpc.ID]*rpc.Notifier),
	}
	if err := n.server.RegisterName("eth", &ethAPI{node: n}); err != nil {
		panic(err)
	}
	return n
}

// Dial matches chain.Dial and connects in-process regardless of uri.
func (n *Node) Dial(_ context.Context, _ string) (*rpc.Client, error) {
	n.mu.Lock()
	n.dials++
	n.mu.Unlock()
	return rpc.DialInProc(n.server), nil
}

// Dials returns how many times Dial was called.
func (n *Node) Dials() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.dials
}

// Subscribers returns the number of live head and pending subscriptions.
func (n *Node) Subscribers() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.headSubs) + len(n.pendingSubs)
}

// Close stops the server.
func (n *Node) Close() {
	n.server.Stop()
}

// AddBlock appends a block to the canonical chain without announcing it.
// Blocks must be added in number order starting at zero.
func (n *Node) AddBlock(block *chain.Block) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.addBlockLocked(block)
}

// PublishBlock appends a block and announces its header to head subscribers.
func (n *Node) PublishBlock(block *chain.Block) {
	n.mu.Lock()
	n.addBlockLocked(block)
	notifiers := make(map[rpc.ID]*rpc.Notifier, len(n.headSubs))
	for id, notifier := range n.headSubs {
		notifiers[id] = notifier
	}
	n.mu.Unlock()

	head := map[string]interface{}{
		"hash":   block.Hash,
		"number": block.Number,
	}
	for id, notifier := range notifiers {
		_ = notifier.Notify(id, head)
	}
}

// PublishPending stores a transaction and announces its hash to pending subscribers.
func (n *Node) PublishPending(tx *chain.Transaction) {
	n.mu.Lock()
	n.txs[*tx.Hash] = tx
	notifiers := make(map[rpc.ID]*rpc.Notifier, len(n.pendingSubs))
	for id, notifier := range n.pendingSubs {
		notifiers[id] = notifier
	}
	n.mu.Unlock()

	for id, notifier := range notifiers {
		_ = notifier.Notify(id, tx.Hash)
	}
}

func (n *Node) addBlockLocked(block *chain.Block) {
	n.blocks = append(n.blocks, block)
	if block.Hash != nil {
		n.byHash[*block.Hash] = block
	}
	for _, tx := range block.Transactions {
		if tx != nil && tx.Hash != nil {
			n.txs[*tx.Hash] = tx
		}
	}
}

type ethAPI struct {
	node *Node
}

func (api *ethAPI) BlockNumber() hexutil.Uint64 {
	api.node.mu.Lock()
	defer api.node.mu.Unlock()
	if len(api.node.blocks) == 0 {
		return 0
	}
	return hexutil.Uint64(len(api.node.blocks) - 1)
}

func (api *ethAPI) GetBlockByNumber(number rpc.BlockNumber, _ bool) (*chain.Block, error) {
	api.node.mu.Lock()
	defer api.node.mu.Unlock()
	if len(api.node.blocks) == 0 {
		return nil, nil
	}
	index := number.Int64()
	if number == rpc.LatestBlockNumber || number == rpc.PendingBlockNumber {
		index = int64(len(api.node.blocks) - 1)
	}
	if index < 0 || index >= int64(len(api.node.blocks)) {
		return nil, nil
	}
	return api.node.blocks[index], nil
}

func (api *ethAPI) GetBlockByHash(hash common.Hash, _ bool) (*chain.Block, error) {
	api.node.mu.Lock()
	defer api.node.mu.Unlock()
	return api.node.byHash[hash], nil
}

func (api *ethAPI) GetTransactionByHash(hash common.Hash) (*chain.Transaction, error) {
	api.node.mu.Lock()
	defer api.node.mu.Unlock()
	return api.node.txs[hash], nil
}

func (api *ethAPI) NewHeads(ctx context.Context) (*rpc.Subscription, error) {
	return api.subscribe(ctx, api.node.headSubs)
}

func (api *ethAPI) NewPendingTransactions(ctx context.Context) (*rpc.Subscription, error) {
	return api.subscribe(ctx, api.node.pendingSubs)
}

func (api *ethAPI) subscribe(ctx context.Context, subs map[rpc.ID]*rpc.Notifier) (*rpc.Subscription, error) {
	notifier, supported := rpc.NotifierFromContext(ctx)
	if !supported {
		return nil, rpc.ErrNotificationsUnsupported
	}
	sub := notifier.CreateSubscription()

	api.node.mu.Lock()
	subs[sub.ID] = notifier
	api.node.mu.Unlock()

	go func() {
		<-sub.Err()
		api.node.mu.Lock()
		delete(subs, sub.ID)
		api.node.mu.Unlock()
	}()
	return sub, nil
}

// NewBlock builds a block with every field set and the given transactions
// placed into it.
func NewBlock(number uint64, txs ...*chain.Transaction) *chain.Block {
	hash := common.BigToHash(new(big.Int).SetUint64(number + 0x1000))
	parent := common.BigToHash(new(big.Int).SetUint64(number + 0x0fff))
	miner := common.HexToAddress("0x00000000000000000000000000000000000000aa")
	nonce := types.EncodeNonce(number + 1)
	bloom := hexutil.Bytes(make([]byte, types.BloomByteLength))
	root := common.HexToHash("0x56e81f171bcc55a6ff8345e692c0f86e5b48e01b996cadc001622fb5e363b421")

	for i, tx := range txs {
		tx.BlockHash = &hash
		tx.BlockNumber = (*hexutil.Big)(new(big.Int).SetUint64(number))
		tx.TransactionIndex = (*hexutil.Big)(big.NewInt(int64(i)))
	}

	return &chain.Block{
		Hash:             &hash,
		Number:           (*hexutil.Big)(new(big.Int).SetUint64(number)),
		Difficulty:       (*hexutil.Big)(big.NewInt(131072)),
		TotalDifficulty:  (*hexutil.Big)(new(big.Int).SetUint64(131072 * (number + 1))),
		GasLimit:         (*hexutil.Big)(big.NewInt(30_000_000)),
		GasUsed:          (*hexutil.Big)(big.NewInt(int64(21000 * len(txs)))),
		ParentHash:       &parent,
		MixHash:          &root,
		Nonce:            &nonce,
		Size:             (*hexutil.Big)(big.NewInt(540)),
		Miner:            &miner,
		ReceiptsRoot:     &root,
		StateRoot:        &root,
		TransactionsRoot: &root,
		LogsBloom:        &bloom,
		Sha3Uncles:       &root,
		Transactions:     txs,
	}
}

// NewTransaction builds an unplaced transaction with sender, recipient, value and gas set.
// seed distinguishes hashes.
func NewTransaction(seed uint64) *chain.Transaction {
	hash := common.BigToHash(new(big.Int).SetUint64(0xabc000 + seed))
	from := common.HexToAddress("0x1111111111111111111111111111111111111111")
	to := common.HexToAddress("0x2222222222222222222222222222222222222222")
	input := hexutil.Bytes{0xde, 0xad, 0xbe, 0xef}

	return &chain.Transaction{
		Hash:     &hash,
		From:     &from,
		To:       &to,
		Value:    (*hexutil.Big)(new(big.Int).SetUint64(1000 + seed)),
		Nonce:    (*hexutil.Big)(new(big.Int).SetUint64(seed)),
		Gas:      (*hexutil.Big)(big.NewInt(21000)),
		GasPrice: (*hexutil.Big)(big.NewInt(1_000_000_000)),
		Input:    &input,
	}
}
