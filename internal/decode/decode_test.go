package decode

import (
	"testing"

	"github.com/globalmsq/msq-tx-monitor-sub002/internal/chain"
	"github.com/globalmsq/msq-tx-monitor-sub002/internal/models"
	"github.com/globalmsq/msq-tx-monitor-sub002/internal/token"
)

func testRegistry() *token.Registry {
	return token.NewRegistry([]models.Token{
		{Address: "0xtoken0000000000000000000000000000000001", Symbol: "USDT", Name: "Tether", Decimals: 6, IsActive: true},
	})
}

func validTransferLog() chain.Log {
	return chain.Log{
		Address: "0xtoken0000000000000000000000000000000001",
		Topics: []string{
			TransferEventTopic,
			"0x000000000000000000000000aaaa000000000000000000000000000000000001",
			"0x000000000000000000000000bbbb000000000000000000000000000000000002",
		},
		Data:            "0x64", // 100
		BlockNumber:     "0x10",
		TransactionHash: "0xhash1",
		BlockHash:       "0xblockhash1",
		LogIndex:        "0x1",
	}
}

func TestTransferDecodesValidLog(t *testing.T) {
	registry := testRegistry()
	log := validTransferLog()

	transfer, err := Transfer(log, registry)
	if err != nil {
		t.Fatalf("Transfer() error = %v", err)
	}
	if transfer.From != "0xaaaa000000000000000000000000000000000001" {
		t.Errorf("From = %q, want the sender address derived from topics[1]", transfer.From)
	}
	if transfer.To != "0xbbbb000000000000000000000000000000000002" {
		t.Errorf("To = %q, want the recipient address derived from topics[2]", transfer.To)
	}
	if transfer.Value.Int64() != 100 {
		t.Errorf("Value = %s, want 100", transfer.Value)
	}
	if transfer.Symbol != "USDT" || transfer.Decimals != 6 {
		t.Errorf("Symbol/Decimals = %s/%d, want USDT/6 resolved from the registry", transfer.Symbol, transfer.Decimals)
	}
	if transfer.BlockNumber != 16 {
		t.Errorf("BlockNumber = %d, want 16 (0x10)", transfer.BlockNumber)
	}
	if transfer.TxHash != "0xhash1" {
		t.Errorf("TxHash = %q, want \"0xhash1\"", transfer.TxHash)
	}
}

func TestTransferRejectsWrongTopicCount(t *testing.T) {
	registry := testRegistry()
	log := validTransferLog()
	log.Topics = log.Topics[:2]

	_, err := Transfer(log, registry)
	if err != ErrNotTransfer {
		t.Errorf("Transfer() error = %v, want ErrNotTransfer", err)
	}
}

func TestTransferRejectsWrongEventSignature(t *testing.T) {
	registry := testRegistry()
	log := validTransferLog()
	log.Topics[0] = "0xsomeothereventtopic"

	_, err := Transfer(log, registry)
	if err != ErrNotTransfer {
		t.Errorf("Transfer() error = %v, want ErrNotTransfer", err)
	}
}

func TestTransferRejectsUnregisteredToken(t *testing.T) {
	registry := testRegistry()
	log := validTransferLog()
	log.Address = "0xnotregistered00000000000000000000000099"

	_, err := Transfer(log, registry)
	if err == nil {
		t.Error("Transfer() with an unregistered token address expected an error")
	}
}
