package chain

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/ethereum/go-ethereum/common/hexutil"
)

const (
	TagEarliest = "earliest"
	TagLatest   = "latest"
)

// BlockParam designates a block either by number or by a symbolic tag.
type BlockParam struct {
	Tag    string
	Number uint64
}

var (
	EarliestBlock = BlockParam{Tag: TagEarliest}
	LatestBlock   = BlockParam{Tag: TagLatest}
)

// BlockNumber returns a BlockParam for a literal block number.
func BlockNumber(number uint64) BlockParam {
	return BlockParam{Number: number}
}

// ParseBlockParam parses "earliest", "latest", a decimal number or a 0x-prefixed hex number.
func ParseBlockParam(input string) (BlockParam, error) {
	input = strings.TrimSpace(input)
	switch strings.ToLower(input) {
	case "":
		return BlockParam{}, fmt.Errorf("empty block designator")
	case TagEarliest:
		return EarliestBlock, nil
	case TagLatest:
		return LatestBlock, nil
	}

	if strings.HasPrefix(input, "0x") || strings.HasPrefix(input, "0X") {
		number, err := hexutil.DecodeUint64(strings.ToLower(input))
		if err != nil {
			return BlockParam{}, fmt.Errorf("invalid block designator: %s", input)
		}
		return BlockNumber(number), nil
	}

	number, err := strconv.ParseUint(input, 10, 64)
	if err != nil {
		return BlockParam{}, fmt.Errorf("invalid block designator: %s", input)
	}
	return BlockNumber(number), nil
}

// IsTag reports whether the param is symbolic.
func (p BlockParam) IsTag() bool {
	return p.Tag != ""
}

func (p BlockParam) String() string {
	if p.IsTag() {
		return p.Tag
	}
	return strconv.FormatUint(p.Number, 10)
}

// Resolve turns the param into a concrete block number. head is only called for "latest".
func (p BlockParam) Resolve(ctx context.Context, head func(context.Context) (uint64, error)) (uint64, error) {
	switch p.Tag {
	case "":
		return p.Number, nil
	case TagEarliest:
		return 0, nil
	case TagLatest:
		latest, err := head(ctx)
		if err != nil {
			return 0, fmt.Errorf("get latest block: %w", err)
		}
		return latest, nil
	default:
		return 0, fmt.Errorf("unknown block tag: %s", p.Tag)
	}
}

// BlockRange represents an inclusive block range.
type BlockRange struct {
	From uint64
	To   uint64
}

// Len returns the number of blocks in the range.
func (r BlockRange) Len() uint64 {
	return r.To - r.From + 1
}

// ResolveRange resolves both ends of a replay range. ok is false when the
// resolved range is empty, e.g. a literal start beyond the current head.
func ResolveRange(ctx context.Context, from, to BlockParam, head func(context.Context) (uint64, error)) (BlockRange, bool, error) {
	start, err := from.Resolve(ctx, head)
	if err != nil {
		return BlockRange{}, false, fmt.Errorf("from block: %w", err)
	}
	end, err := to.Resolve(ctx, head)
	if err != nil {
		return BlockRange{}, false, fmt.Errorf("to block: %w", err)
	}
	if end < start {
		return BlockRange{From: start, To: end}, false, nil
	}
	return BlockRange{From: start, To: end}, true, nil
}
