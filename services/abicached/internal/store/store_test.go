package store

import (
	"context"
	"errors"
	"strconv"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/greymass/abicached/libraries/chain"
)

func redisOptions(t *testing.T, s *miniredis.Miniredis) RedisOptions {
	t.Helper()
	port, err := strconv.Atoi(s.Port())
	if err != nil {
		t.Fatal(err)
	}
	return RedisOptions{Host: s.Host(), Port: port}
}

func TestABIKey(t *testing.T) {
	if got := ABIKey(chain.SystemAccount, 7); got != "abi:6138663577826885632:7" {
		t.Errorf("ABIKey = %q", got)
	}
}

func TestHeightEncoding(t *testing.T) {
	h, err := ParseHeight(FormatHeight(18446744073709551615))
	if err != nil || h != 18446744073709551615 {
		t.Errorf("got %d, %v", h, err)
	}
	if _, err := ParseHeight([]byte("x")); err == nil {
		t.Error("expected parse error")
	}
}

func TestRedisSetGet(t *testing.T) {
	s := miniredis.RunT(t)
	ctx := context.Background()

	stores, err := OpenRedis(ctx, redisOptions(t, s), 2)
	if err != nil {
		t.Fatalf("OpenRedis: %v", err)
	}
	defer CloseAll(stores)

	if err := stores[0].Set(ctx, "abi:1:1", []byte{0x00, 0x01, 0xff}); err != nil {
		t.Fatalf("Set: %v", err)
	}
	value, found, err := stores[1].Get(ctx, "abi:1:1")
	if err != nil || !found {
		t.Fatalf("Get: %v found=%v", err, found)
	}
	if string(value) != "\x00\x01\xff" {
		t.Errorf("value = %x", value)
	}

	got, err := s.Get("abi:1:1")
	if err != nil || got != "\x00\x01\xff" {
		t.Errorf("server value = %q, %v", got, err)
	}
}

func TestRedisMissingKey(t *testing.T) {
	s := miniredis.RunT(t)
	r, err := NewRedis(context.Background(), redisOptions(t, s))
	if err != nil {
		t.Fatal(err)
	}
	defer r.Close()

	value, found, err := r.Get(context.Background(), "nope")
	if err != nil || found || value != nil {
		t.Errorf("got (%v, %v, %v)", value, found, err)
	}
}

func TestRedisServerError(t *testing.T) {
	s := miniredis.RunT(t)
	r, err := NewRedis(context.Background(), redisOptions(t, s))
	if err != nil {
		t.Fatal(err)
	}
	defer r.Close()

	s.SetError("ERR storage offline")
	err = r.Set(context.Background(), "k", []byte("v"))

	var storeErr *Error
	if !errors.As(err, &storeErr) {
		t.Fatalf("expected *Error, got %T %v", err, err)
	}
	if storeErr.Op != "set" || storeErr.Key != "k" || !storeErr.Reply {
		t.Errorf("unexpected error fields: %+v", storeErr)
	}

	_, _, err = r.Get(context.Background(), "k")
	if !errors.As(err, &storeErr) || storeErr.Op != "get" {
		t.Errorf("expected get *Error, got %v", err)
	}
}

func TestRedisConnectFailure(t *testing.T) {
	s := miniredis.RunT(t)
	opts := redisOptions(t, s)
	s.Close()

	if _, err := OpenRedis(context.Background(), opts, 2); err == nil {
		t.Error("expected connection error")
	}
}

func TestPebbleSetGet(t *testing.T) {
	for _, compress := range []bool{false, true} {
		p, err := OpenPebble(t.TempDir(), compress)
		if err != nil {
			t.Fatalf("OpenPebble: %v", err)
		}
		stores := p.Handles(3)
		ctx := context.Background()

		value := []byte("eosio::abi/1.2 packed definition")
		if err := stores[0].Set(ctx, "abi:5:1", value); err != nil {
			t.Fatalf("Set: %v", err)
		}
		got, found, err := stores[2].Get(ctx, "abi:5:1")
		if err != nil || !found || string(got) != string(value) {
			t.Errorf("compress=%v: Get = %q, %v, %v", compress, got, found, err)
		}

		_, found, err = stores[1].Get(ctx, "missing")
		if err != nil || found {
			t.Errorf("missing key: found=%v err=%v", found, err)
		}

		if err := CloseAll(stores); err != nil {
			t.Fatalf("CloseAll: %v", err)
		}
		if err := stores[0].Close(); err != nil {
			t.Errorf("second Close should be a no-op: %v", err)
		}
	}
}

func TestPebblePersists(t *testing.T) {
	dir := t.TempDir()
	p, err := OpenPebble(dir, true)
	if err != nil {
		t.Fatal(err)
	}
	stores := p.Handles(1)
	if err := stores[0].Set(context.Background(), HeightKey, FormatHeight(42)); err != nil {
		t.Fatal(err)
	}
	CloseAll(stores)

	p, err = OpenPebble(dir, false)
	if err != nil {
		t.Fatal(err)
	}
	stores = p.Handles(1)
	defer CloseAll(stores)

	value, found, err := stores[0].Get(context.Background(), HeightKey)
	if err != nil || !found {
		t.Fatalf("Get: %v found=%v", err, found)
	}
	if h, _ := ParseHeight(value); h != 42 {
		t.Errorf("height = %d", h)
	}
}

func TestPebbleCancelledContext(t *testing.T) {
	p, err := OpenPebble(t.TempDir(), false)
	if err != nil {
		t.Fatal(err)
	}
	stores := p.Handles(1)
	defer CloseAll(stores)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	var storeErr *Error
	if err := stores[0].Set(ctx, "k", nil); !errors.As(err, &storeErr) {
		t.Errorf("expected *Error, got %v", err)
	}
}
