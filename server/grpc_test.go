package server

import (
	"context"
	"fmt"
	"math"
	"testing"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/encoding/protowire"
	"google.golang.org/protobuf/proto"

	"orderly/internal/fanout"
	"orderly/proto/orderbook"
)

func dialBookSummary(t *testing.T, ctx context.Context, port int) orderbook.OrderbookAggregator_BookSummaryClient {
	t.Helper()
	conn, err := grpc.NewClient(fmt.Sprintf("127.0.0.1:%d", port),
		grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	t.Cleanup(func() { conn.Close() })

	client, err := orderbook.NewOrderbookAggregatorClient(conn).BookSummary(ctx, &orderbook.Empty{})
	if err != nil {
		t.Fatalf("BookSummary: %v", err)
	}
	return client
}

func waitSubscribers(t *testing.T, dist *fanout.Distributor, n int) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for dist.Len() < n {
		if time.Now().After(deadline) {
			t.Fatalf("subscribers = %d, want %d", dist.Len(), n)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestBookSummaryStream(t *testing.T) {
	dist := fanout.New(4)
	srv, err := ListenGRPC(dist, 0, 0)
	if err != nil {
		t.Fatalf("ListenGRPC: %v", err)
	}
	defer srv.Stop(time.Second)

	dist.Publish(testBook(1))

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	client := dialBookSummary(t, ctx, srv.Port())

	first, err := client.Recv()
	if err != nil {
		t.Fatalf("Recv: %v", err)
	}
	if first.Sequence != 1 || len(first.Bids) != 2 || first.Spread != 0.5 || first.Symbol != "BTC/USDT" {
		t.Fatalf("unexpected summary %+v", first)
	}

	if l := first.Asks[0]; l.Exchange != "kraken" || l.Price != 101.5 || l.Amount != 3 {
		t.Fatalf("unexpected ask %+v", l)
	}

	waitSubscribers(t, dist, 1)
	dist.Publish(testBook(2))
	second, err := client.Recv()
	if err != nil {
		t.Fatalf("Recv: %v", err)
	}
	if second.Sequence != 2 {
		t.Fatalf("sequence = %d, want 2", second.Sequence)
	}

	dist.Close()
	if _, err := client.Recv(); status.Code(err) != codes.Unavailable {
		t.Fatalf("expected Unavailable after shutdown, got %v", err)
	}
}

func TestBookSummaryClientCancelUnsubscribes(t *testing.T) {
	dist := fanout.New(4)
	srv, err := ListenGRPC(dist, 0, 0)
	if err != nil {
		t.Fatalf("ListenGRPC: %v", err)
	}
	defer srv.Stop(time.Second)

	ctx, cancel := context.WithCancel(context.Background())
	dialBookSummary(t, ctx, srv.Port())
	waitSubscribers(t, dist, 1)

	cancel()
	deadline := time.Now().Add(5 * time.Second)
	for {
		// closed subscriptions are pruned on the next publish
		dist.Publish(testBook(3))
		if dist.Len() == 0 {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("subscription not removed after client cancel")
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestListenGRPCBindFailure(t *testing.T) {
	dist := fanout.New(1)
	first, err := ListenGRPC(dist, 0, 0)
	if err != nil {
		t.Fatalf("ListenGRPC: %v", err)
	}
	defer first.Stop(time.Second)

	if _, err := ListenGRPC(dist, first.Port(), 0); err == nil {
		t.Fatalf("expected bind failure on port %d", first.Port())
	}
}

// The stream must stay decodable by clients built from the plain
// orderbook.proto: spread, bids, asks as fields 1-3 and levels as
// exchange, price, amount.
func TestSummaryWireFormat(t *testing.T) {
	book := testBook(7)
	data, err := proto.Marshal(NewProtoSummary(book))
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}

	var bids, asks [][]byte
	for len(data) > 0 {
		num, typ, n := protowire.ConsumeTag(data)
		if n < 0 {
			t.Fatalf("bad tag: %v", protowire.ParseError(n))
		}
		data = data[n:]
		switch {
		case num == 1 && typ == protowire.Fixed64Type:
			v, n := protowire.ConsumeFixed64(data)
			if math.Float64frombits(v) != 0.5 {
				t.Errorf("spread = %v", math.Float64frombits(v))
			}
			data = data[n:]
		case (num == 2 || num == 3) && typ == protowire.BytesType:
			v, n := protowire.ConsumeBytes(data)
			if num == 2 {
				bids = append(bids, v)
			} else {
				asks = append(asks, v)
			}
			data = data[n:]
		default:
			n := protowire.ConsumeFieldValue(num, typ, data)
			if n < 0 {
				t.Fatalf("field %d: %v", num, protowire.ParseError(n))
			}
			data = data[n:]
		}
	}
	if len(bids) != 2 || len(asks) != 1 {
		t.Fatalf("bids=%d asks=%d", len(bids), len(asks))
	}

	level := new(orderbook.Level)
	if err := proto.Unmarshal(asks[0], level); err != nil {
		t.Fatalf("Unmarshal level: %v", err)
	}
	if level.GetExchange() != "kraken" || level.GetPrice() != 101.5 || level.GetAmount() != 3 {
		t.Fatalf("unexpected level %+v", level)
	}

	var back orderbook.Summary
	raw, _ := proto.Marshal(NewProtoSummary(book))
	if err := proto.Unmarshal(raw, &back); err != nil {
		t.Fatalf("Unmarshal summary: %v", err)
	}
	if back.GetSequence() != 7 || back.GetTimestamp() != book.UpdatedAt.UnixNano() {
		t.Fatalf("unexpected summary %+v", &back)
	}
}
