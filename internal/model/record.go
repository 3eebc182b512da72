package model

// Record is the normalized key-value representation of one chain event.
// Values are either string (hashes, addresses, hex data) or int64 (quantities).
type Record map[string]interface{}

// Transaction keys.
const (
	KeyTransactionHash  = "transactionHash"
	KeySender           = "from"
	KeyRecipient        = "to"
	KeyAmount           = "value"
	KeyNonce            = "nonce"
	KeyGas              = "gas"
	KeyGasPrice         = "gasPrice"
	KeyInput            = "input"
	KeyTransactionIndex = "transactionIndex"
)

// Block keys. KeyBlockHash and KeyBlockNumber are shared with transaction records.
const (
	KeyBlockHash        = "blockHash"
	KeyBlockNumber      = "blockNumber"
	KeySize             = "size"
	KeyDifficulty       = "difficulty"
	KeyTotalDifficulty  = "totalDifficulty"
	KeyGasLimit         = "gasLimit"
	KeyGasUsed          = "gasUsed"
	KeyParentHash       = "parentHash"
	KeyMixHash          = "mixHash"
	KeyMiner            = "miner"
	KeyLogsBloom        = "logsBloom"
	KeyStateRoot        = "stateRoot"
	KeyReceiptRoot      = "receiptRoot"
	KeyTransactionsRoot = "transactionsRoot"
	KeySha3Uncles       = "sha3Uncles"
)

// BlockKeys lists every key a block record can carry.
var BlockKeys = []string{
	KeyBlockHash, KeyBlockNumber, KeyDifficulty, KeyTotalDifficulty, KeyGasLimit, KeyGasUsed,
	KeyParentHash, KeyMixHash, KeyNonce, KeySize, KeyMiner, KeyReceiptRoot, KeyStateRoot,
	KeyTransactionsRoot, KeyLogsBloom, KeySha3Uncles,
}

// TransactionKeys lists every key a confirmed or replayed transaction record can carry.
var TransactionKeys = []string{
	KeyTransactionHash, KeyBlockHash, KeyBlockNumber, KeySender, KeyRecipient, KeyAmount,
	KeyNonce, KeyGas, KeyGasPrice, KeyTransactionIndex, KeyInput,
}

// PendingTransactionKeys lists every key a pending transaction record can carry.
var PendingTransactionKeys = []string{
	KeyTransactionHash, KeySender, KeyRecipient, KeyAmount, KeyGasPrice, KeyGas, KeyInput,
}

// Empty reports whether the record carries no fields.
func (r Record) Empty() bool {
	return len(r) == 0
}
