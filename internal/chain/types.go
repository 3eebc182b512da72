package chain

import (
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/core/types"
)

// Block is a block object as returned by eth_getBlockByHash / eth_getBlockByNumber
// with full transaction bodies. Fields absent or null on the wire stay nil.
type Block struct {
	Hash             *common.Hash      `json:"hash,omitempty"`
	Number           *hexutil.Big      `json:"number,omitempty"`
	Difficulty       *hexutil.Big      `json:"difficulty,omitempty"`
	TotalDifficulty  *hexutil.Big      `json:"totalDifficulty,omitempty"`
	GasLimit         *hexutil.Big      `json:"gasLimit,omitempty"`
	GasUsed          *hexutil.Big      `json:"gasUsed,omitempty"`
	ParentHash       *common.Hash      `json:"parentHash,omitempty"`
	MixHash          *common.Hash      `json:"mixHash,omitempty"`
	Nonce            *types.BlockNonce `json:"nonce,omitempty"`
	Size             *hexutil.Big      `json:"size,omitempty"`
	Miner            *common.Address   `json:"miner,omitempty"`
	ReceiptsRoot     *common.Hash      `json:"receiptsRoot,omitempty"`
	StateRoot        *common.Hash      `json:"stateRoot,omitempty"`
	TransactionsRoot *common.Hash      `json:"transactionsRoot,omitempty"`
	LogsBloom        *hexutil.Bytes    `json:"logsBloom,omitempty"`
	Sha3Uncles       *common.Hash      `json:"sha3Uncles,omitempty"`
	Transactions     []*Transaction    `json:"transactions"`
}

// Transaction is a transaction object as returned by the node. Pending
// transactions carry no block placement, so BlockHash, BlockNumber and
// TransactionIndex are nil for them.
type Transaction struct {
	Hash             *common.Hash    `json:"hash,omitempty"`
	BlockHash        *common.Hash    `json:"blockHash,omitempty"`
	BlockNumber      *hexutil.Big    `json:"blockNumber,omitempty"`
	From             *common.Address `json:"from,omitempty"`
	To               *common.Address `json:"to,omitempty"`
	Value            *hexutil.Big    `json:"value,omitempty"`
	Nonce            *hexutil.Big    `json:"nonce,omitempty"`
	Gas              *hexutil.Big    `json:"gas,omitempty"`
	GasPrice         *hexutil.Big    `json:"gasPrice,omitempty"`
	TransactionIndex *hexutil.Big    `json:"transactionIndex,omitempty"`
	Input            *hexutil.Bytes  `json:"input,omitempty"`
}

type headNotification struct {
	Hash common.Hash `json:"hash"`
}
