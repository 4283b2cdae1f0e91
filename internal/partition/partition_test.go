package partition

import (
	"context"
	"errors"
	"math/rand"
	"slices"
	"strings"
	"sync"
	"testing"
	"time"

	"go-inventory-predict/internal/model"
)

func TestRanges(t *testing.T) {
	rs, err := Ranges(2, 680, 1000)
	if err != nil {
		t.Fatal(err)
	}
	want := []Range{{ID: 0, Low: 680, High: 840}, {ID: 1, Low: 841, High: 1000}}
	if len(rs) != 2 || rs[0] != want[0] || rs[1] != want[1] {
		t.Fatalf("ranges=%v", rs)
	}

	rs, err = Ranges(3, 1, 10)
	if err != nil {
		t.Fatal(err)
	}
	if rs[0].High-rs[0].Low != 3 || rs[2].High != 10 {
		t.Fatalf("ranges=%v", rs)
	}
	for i := 1; i < len(rs); i++ {
		if rs[i].Low != rs[i-1].High+1 {
			t.Fatalf("gap between %v and %v", rs[i-1], rs[i])
		}
	}

	for _, bad := range [][3]int{{0, 1, 10}, {2, 10, 1}, {5, 1, 3}} {
		if _, err := Ranges(bad[0], bad[1], bad[2]); err == nil {
			t.Fatalf("Ranges%v: expected error", bad)
		}
	}
}

func TestLookup(t *testing.T) {
	rs, _ := Ranges(2, 680, 1000)
	r, err := Lookup(rs, 841)
	if err != nil || r.ID != 1 {
		t.Fatalf("lookup 841 = %v, %v", r, err)
	}
	if _, err := Lookup(rs, 5); !errors.Is(err, ErrNoPartition) {
		t.Fatalf("err=%v", err)
	}
}

func TestReadProducts(t *testing.T) {
	products, err := ReadProducts(680, 760, rand.New(rand.NewSource(1)))
	if err != nil {
		t.Fatal(err)
	}
	if len(products) == 0 {
		t.Fatal("no products in range")
	}
	for _, p := range products {
		if p.ProductID < 680 || p.ProductID > 760 {
			t.Fatalf("product %d outside range", p.ProductID)
		}
		if p.StockTotal < 100 || p.StockTotal >= 1000 || p.StockReserved != 0 {
			t.Fatalf("stock %d/%d", p.StockTotal, p.StockReserved)
		}
		if p.Name == "" || p.ListPrice.IsZero() {
			t.Fatalf("incomplete product %+v", p)
		}
	}
}

func TestReadProductsQuotedAndMalformed(t *testing.T) {
	const header = "ProductID,ProductNumber,Name,ProductModel,Color,StandardCost,ListPrice,ProductCategoryID\n"
	good := header + `707,HL-U509-R,"Sport-100 Helmet, Red",Sport-100,Red,13.0863,34.99,35` + "\n"
	products, err := readProducts(strings.NewReader(good), 0, 1000, rand.New(rand.NewSource(1)))
	if err != nil {
		t.Fatal(err)
	}
	if len(products) != 1 || products[0].Name != "Sport-100 Helmet, Red" || products[0].CategoryID != 35 {
		t.Fatalf("products=%+v", products)
	}
	if products[0].StandardCost.String() != "13.0863" {
		t.Fatalf("cost=%s", products[0].StandardCost)
	}

	bad := header + "x,HL,Helmet,Sport,Red,1,2,3\n"
	if _, err := readProducts(strings.NewReader(bad), 0, 1000, rand.New(rand.NewSource(1))); err == nil {
		t.Fatal("expected parse error")
	}
	short := header + "1,HL,Helmet\n"
	if _, err := readProducts(strings.NewReader(short), 0, 1000, rand.New(rand.NewSource(1))); err == nil {
		t.Fatal("expected column count error")
	}
}

type recordingProcessor struct {
	mu      sync.Mutex
	batches map[int][]model.PurchaseRecord
	stopped []int
}

func (r *recordingProcessor) ProcessPurchases(_ context.Context, partitionID int, records []model.PurchaseRecord) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.batches[partitionID] = append(r.batches[partitionID], records...)
	return nil
}

func (r *recordingProcessor) count(id int) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.batches[id])
}

func (r *recordingProcessor) Stop(partitionID int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.stopped = append(r.stopped, partitionID)
}

func (r *recordingProcessor) stoppedIDs() []int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return slices.Sorted(slices.Values(r.stopped))
}

func openManager(t *testing.T) *Manager {
	t.Helper()
	rs, err := Ranges(2, 680, 1000)
	if err != nil {
		t.Fatal(err)
	}
	m, err := Open(context.Background(), Options{
		Ranges:           rs,
		DispatchInterval: 10 * time.Millisecond,
		Seed:             true,
		Rand:             rand.New(rand.NewSource(3)),
	})
	if err != nil {
		t.Fatal(err)
	}
	return m
}

func TestManagerSeedsAndRoutes(t *testing.T) {
	m := openManager(t)
	ctx := context.Background()

	if got := m.IDs(); len(got) != 2 || got[0] != 0 || got[1] != 1 {
		t.Fatalf("ids=%v", got)
	}
	for _, p := range m.Partitions() {
		products, err := p.Products(ctx)
		if err != nil {
			t.Fatal(err)
		}
		if len(products) == 0 {
			t.Fatalf("partition %d not seeded", p.ID())
		}
		low, high := p.Bounds()
		for _, prod := range products {
			if prod.ProductID < low || prod.ProductID > high {
				t.Fatalf("partition %d holds product %d", p.ID(), prod.ProductID)
			}
		}
	}

	p, err := m.ForProduct(900)
	if err != nil || p.ID() != 1 {
		t.Fatalf("ForProduct(900) = %v, %v", p, err)
	}
	if _, err := m.ForProduct(1); err == nil {
		t.Fatal("expected error for product outside every range")
	}
	if _, err := m.Get(9); err == nil {
		t.Fatal("expected unknown partition error")
	}
	if len(m.Views()) != 2 {
		t.Fatal("views missing")
	}
}

func TestManagerRunsDispatchers(t *testing.T) {
	m := openManager(t)
	ctx := context.Background()

	p := m.Partitions()[0]
	products, err := p.Products(ctx)
	if err != nil {
		t.Fatal(err)
	}
	id := products[0].ProductID
	for i := 0; i < 3; i++ {
		if _, err := p.Reservations.Purchase(ctx, id, 1); err != nil {
			t.Fatal(err)
		}
	}
	if n, _ := p.PendingPurchases(ctx); n != 3 {
		t.Fatalf("pending=%d", n)
	}

	proc := &recordingProcessor{batches: map[int][]model.PurchaseRecord{}}
	m.Start(ctx, proc)
	defer m.Stop()

	deadline := time.Now().Add(2 * time.Second)
	for proc.count(0) < 3 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	if proc.count(0) != 3 {
		t.Fatalf("dispatched %d purchases", proc.count(0))
	}
	for {
		n, err := p.PendingPurchases(ctx)
		if err != nil {
			t.Fatal(err)
		}
		if n == 0 {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("pending after dispatch=%d", n)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestManagerStopStopsPipelines(t *testing.T) {
	m := openManager(t)
	proc := &recordingProcessor{batches: map[int][]model.PurchaseRecord{}}
	m.Start(context.Background(), proc)

	if got := proc.stoppedIDs(); len(got) != 0 {
		t.Fatalf("stopped before Stop: %v", got)
	}
	m.Stop()
	if got := proc.stoppedIDs(); !slices.Equal(got, []int{0, 1}) {
		t.Fatalf("stopped=%v", got)
	}
}
