// Package decode turns raw eth_getLogs entries into DecodedTransfer
// values, filtering to the ERC-20 Transfer(address,address,uint256)
// event emitted by registered tokens.
package decode

import (
	"fmt"
	"math/big"
	"time"

	"github.com/globalmsq/msq-tx-monitor-sub002/internal/chain"
	"github.com/globalmsq/msq-tx-monitor-sub002/internal/hexutil"
	"github.com/globalmsq/msq-tx-monitor-sub002/internal/models"
	"github.com/globalmsq/msq-tx-monitor-sub002/internal/token"
)

// TransferEventTopic is keccak256("Transfer(address,address,uint256)").
const TransferEventTopic = "0xddf252ad1be2c89b69c2b068fc378daa952ba7f163c4a11628f55a4df523b3ef"

// ErrNotTransfer is returned when a log does not match the Transfer
// event signature or topic count.
var ErrNotTransfer = fmt.Errorf("decode: log is not an ERC-20 Transfer event")

// Transfer decodes a single raw log into a DecodedTransfer, resolving
// the token symbol/decimals from the registry. Returns ErrNotTransfer
// for logs that don't match the expected shape; the caller should skip
// those rather than treat them as fatal.
func Transfer(log chain.Log, registry *token.Registry) (*models.DecodedTransfer, error) {
	if len(log.Topics) != 3 || log.Topics[0] != TransferEventTopic {
		return nil, ErrNotTransfer
	}

	tok, ok := registry.Lookup(log.Address)
	if !ok {
		return nil, fmt.Errorf("decode: token %s is not registered or inactive", log.Address)
	}

	from, err := hexutil.AddressFromTopic(log.Topics[1])
	if err != nil {
		return nil, fmt.Errorf("decode: from address: %w", err)
	}
	to, err := hexutil.AddressFromTopic(log.Topics[2])
	if err != nil {
		return nil, fmt.Errorf("decode: to address: %w", err)
	}

	value, err := hexutil.HexToBigInt(log.Data)
	if err != nil {
		return nil, fmt.Errorf("decode: value: %w", err)
	}

	blockNumber, err := hexutil.HexToUint64(log.BlockNumber)
	if err != nil {
		return nil, fmt.Errorf("decode: block number: %w", err)
	}
	logIndex, err := hexutil.HexToUint64(log.LogIndex)
	if err != nil {
		return nil, fmt.Errorf("decode: log index: %w", err)
	}

	return &models.DecodedTransfer{
		From:         from,
		To:           to,
		Value:        value,
		TokenAddress: hexutil.NormalizeAddress(log.Address),
		Symbol:       tok.Symbol,
		Decimals:     tok.Decimals,
		BlockNumber:  blockNumber,
		BlockHash:    log.BlockHash,
		TxHash:       log.TransactionHash,
		LogIndex:     int(logIndex),
	}, nil
}

// ToTransaction wraps a DecodedTransfer with block metadata already
// resolved (timestamp, gas data) into a persistable Transaction.
func ToTransaction(t *models.DecodedTransfer, blockTimestamp time.Time, txIndex int, gasPrice, gasUsed *big.Int) *models.Transaction {
	return &models.Transaction{
		Hash:             t.TxHash,
		BlockNumber:      t.BlockNumber,
		BlockHash:        t.BlockHash,
		TransactionIndex: txIndex,
		LogIndex:         t.LogIndex,
		FromAddress:      t.From,
		ToAddress:        t.To,
		Value:            t.Value,
		TokenAddress:     t.TokenAddress,
		TokenSymbol:      t.Symbol,
		TokenDecimals:    t.Decimals,
		GasPrice:         gasPrice,
		GasUsed:          gasUsed,
		Timestamp:        blockTimestamp,
	}
}
