package internal

import (
	"bytes"
	"context"
	"encoding/binary"
	"strconv"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/greymass/abicached/libraries/abicache"
	"github.com/greymass/abicached/libraries/chain"
	"github.com/greymass/abicached/libraries/encoding"
	"github.com/greymass/abicached/services/abicached/internal/store"
)

const tokenABIJSON = `{
	"version": "eosio::abi/1.1",
	"types": [],
	"structs": [
		{"name": "transfer", "base": "", "fields": [
			{"name": "from", "type": "name"},
			{"name": "to", "type": "name"},
			{"name": "quantity", "type": "asset"},
			{"name": "memo", "type": "string"}
		]}
	],
	"actions": [{"name": "transfer", "type": "transfer", "ricardian_contract": ""}],
	"tables": [],
	"ricardian_clauses": [],
	"error_messages": [],
	"abi_extensions": [],
	"variants": []
}`

var tokenAccount = chain.N("eosio.token")

func packedTokenABI(t *testing.T) []byte {
	t.Helper()
	a, err := abicache.ParseABIJSON([]byte(tokenABIJSON))
	if err != nil {
		t.Fatalf("ParseABIJSON: %v", err)
	}
	raw, err := a.MarshalBinary()
	if err != nil {
		t.Fatalf("MarshalBinary: %v", err)
	}
	return raw
}

func setabiPayload(account chain.Name, raw []byte) []byte {
	var buf bytes.Buffer
	binary.Write(&buf, binary.LittleEndian, uint64(account))
	encoding.PutAsUVarint(&buf, uint64(len(raw)))
	buf.Write(raw)
	return buf.Bytes()
}

func transferData() []byte {
	var buf bytes.Buffer
	binary.Write(&buf, binary.LittleEndian, uint64(chain.N("alice")))
	binary.Write(&buf, binary.LittleEndian, uint64(chain.N("bob")))
	binary.Write(&buf, binary.LittleEndian, int64(10000))
	buf.Write([]byte{4, 'E', 'O', 'S', 0, 0, 0, 0})
	encoding.PutAsUVarint(&buf, 3)
	buf.WriteString("gm!")
	return buf.Bytes()
}

func action(receiver, account, name string, seq uint64) chain.ActionTrace {
	return chain.ActionTrace{
		Receipt: chain.ActionReceipt{Receiver: chain.N(receiver), GlobalSequence: chain.Uint64(seq)},
		Act:     chain.Action{Account: chain.N(account), Name: chain.N(name)},
	}
}

func setabiAction(account chain.Name, raw []byte, seq uint64, version uint32) chain.ActionTrace {
	at := action("eosio", "eosio", "setabi", seq)
	at.Receipt.AbiSequence = version
	at.Act.Data = setabiPayload(account, raw)
	return at
}

func executed(actions ...chain.ActionTrace) *chain.TransactionTrace {
	return &chain.TransactionTrace{
		ID:           "trx",
		Receipt:      chain.TransactionReceipt{Status: chain.StatusExecuted},
		ActionTraces: actions,
	}
}

func redisStores(t *testing.T, s *miniredis.Miniredis, n int) []store.Store {
	t.Helper()
	port, err := strconv.Atoi(s.Port())
	if err != nil {
		t.Fatal(err)
	}
	stores, err := store.OpenRedis(context.Background(), store.RedisOptions{Host: s.Host(), Port: port}, n)
	if err != nil {
		t.Fatalf("OpenRedis: %v", err)
	}
	t.Cleanup(func() { store.CloseAll(stores) })
	return stores
}
