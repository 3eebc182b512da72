package source

import (
	"math"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"

	"ethereumSource/internal/chain"
	"ethereumSource/internal/model"
)

var low64 = new(big.Int).SetUint64(math.MaxUint64)

// MapBlock converts a block into a block record. Fields missing on the wire are
// left out rather than set to nil.
//
// Quantities are narrowed to int64 by keeping their low 64 bits, so values
// beyond that width (total difficulty on long chains, for example) wrap.
func MapBlock(block *chain.Block) model.Record {
	rec := model.Record{}
	if block == nil {
		return rec
	}

	putHash(rec, model.KeyBlockHash, block.Hash)
	putQuantity(rec, model.KeyBlockNumber, block.Number)
	putQuantity(rec, model.KeyDifficulty, block.Difficulty)
	putQuantity(rec, model.KeyTotalDifficulty, block.TotalDifficulty)
	putQuantity(rec, model.KeyGasLimit, block.GasLimit)
	putQuantity(rec, model.KeyGasUsed, block.GasUsed)
	putHash(rec, model.KeyParentHash, block.ParentHash)
	putHash(rec, model.KeyMixHash, block.MixHash)
	if block.Nonce != nil {
		rec[model.KeyNonce] = int64(block.Nonce.Uint64())
	}
	putQuantity(rec, model.KeySize, block.Size)
	putAddress(rec, model.KeyMiner, block.Miner)
	putHash(rec, model.KeyReceiptRoot, block.ReceiptsRoot)
	putHash(rec, model.KeyStateRoot, block.StateRoot)
	putHash(rec, model.KeyTransactionsRoot, block.TransactionsRoot)
	putBytes(rec, model.KeyLogsBloom, block.LogsBloom)
	putHash(rec, model.KeySha3Uncles, block.Sha3Uncles)

	return rec
}

// MapTransaction converts a confirmed or replayed transaction into a transaction record.
// Quantities (value and gas price in particular) are narrowed like in MapBlock.
func MapTransaction(tx *chain.Transaction) model.Record {
	rec := model.Record{}
	if tx == nil {
		return rec
	}

	putHash(rec, model.KeyTransactionHash, tx.Hash)
	putHash(rec, model.KeyBlockHash, tx.BlockHash)
	putQuantity(rec, model.KeyBlockNumber, tx.BlockNumber)
	putAddress(rec, model.KeySender, tx.From)
	putAddress(rec, model.KeyRecipient, tx.To)
	putQuantity(rec, model.KeyAmount, tx.Value)
	putQuantity(rec, model.KeyNonce, tx.Nonce)
	putQuantity(rec, model.KeyGas, tx.Gas)
	putQuantity(rec, model.KeyGasPrice, tx.GasPrice)
	putQuantity(rec, model.KeyTransactionIndex, tx.TransactionIndex)
	putBytes(rec, model.KeyInput, tx.Input)

	return rec
}

// MapPendingTransaction converts a pool transaction into a pending record. Block
// placement is never emitted, even if the node filled it in.
func MapPendingTransaction(tx *chain.Transaction) model.Record {
	rec := model.Record{}
	if tx == nil {
		return rec
	}

	putHash(rec, model.KeyTransactionHash, tx.Hash)
	putAddress(rec, model.KeySender, tx.From)
	putAddress(rec, model.KeyRecipient, tx.To)
	putQuantity(rec, model.KeyAmount, tx.Value)
	putQuantity(rec, model.KeyGasPrice, tx.GasPrice)
	putQuantity(rec, model.KeyGas, tx.Gas)
	putBytes(rec, model.KeyInput, tx.Input)

	return rec
}

func narrow(v *big.Int) int64 {
	return int64(new(big.Int).And(v, low64).Uint64())
}

func putQuantity(rec model.Record, key string, v *hexutil.Big) {
	if v == nil {
		return
	}
	rec[key] = narrow(v.ToInt())
}

func putHash(rec model.Record, key string, v *common.Hash) {
	if v == nil {
		return
	}
	rec[key] = v.Hex()
}

func putAddress(rec model.Record, key string, v *common.Address) {
	if v == nil {
		return
	}
	rec[key] = v.Hex()
}

func putBytes(rec model.Record, key string, v *hexutil.Bytes) {
	if v == nil {
		return
	}
	rec[key] = v.String()
}
