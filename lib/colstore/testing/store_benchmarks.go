package testing

import (
	"fmt"
	"math/rand"
	"testing"

	"github.com/fkoehler/cellar/lib/cell"
	"github.com/fkoehler/cellar/lib/colstore"
)

// RunStoreBenchmarks runs all benchmarks against a store implementation
// variant.
func RunStoreBenchmarks(b *testing.B, name string, factory StoreFactory) {
	b.Run(name+"/Add", func(b *testing.B) {
		benchmarkAdd(b, factory())
	})

	b.Run(name+"/AddExisting", func(b *testing.B) {
		benchmarkAddExisting(b, factory())
	})

	b.Run(name+"/AddAll", func(b *testing.B) {
		benchmarkAddAll(b, factory())
	})

	b.Run(name+"/AddAllParallel", func(b *testing.B) {
		benchmarkAddAllParallel(b, factory())
	})

	b.Run(name+"/Get", func(b *testing.B) {
		benchmarkGet(b, factory())
	})

	b.Run(name+"/Snapshot", func(b *testing.B) {
		benchmarkSnapshot(b, factory())
	})
}

func benchmarkAdd(b *testing.B, store *colstore.Store) {
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		store.Add(makeCell("bench", i, int64(i)))
	}
}

func benchmarkAddExisting(b *testing.B, store *colstore.Store) {
	const spread = 128
	for i := 0; i < spread; i++ {
		store.Add(makeCell("bench", i, 0))
	}
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		store.Add(makeCell("bench", i%spread, int64(i+1)))
	}
}

func benchmarkAddAll(b *testing.B, store *colstore.Store) {
	const batchSize = 32
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		store.AddAll(makeBatch(fmt.Sprintf("b%d", i), batchSize, int64(i)), nil)
	}
}

func benchmarkAddAllParallel(b *testing.B, store *colstore.Store) {
	const batchSize = 32
	b.ResetTimer()
	b.RunParallel(func(pb *testing.PB) {
		id := rand.Int63()
		i := 0
		for pb.Next() {
			store.AddAll(makeBatch(fmt.Sprintf("p%d-%d", id, i), batchSize, 1), nil)
			i++
		}
	})
}

func benchmarkGet(b *testing.B, store *colstore.Store) {
	const spread = 1024
	names := make([]cell.Name, spread)
	for i := 0; i < spread; i++ {
		c := makeCell("bench", i, 1)
		names[i] = c.Name
		store.Add(c)
	}
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, ok := store.Get(names[i%spread]); !ok {
			b.Fatal("missing cell")
		}
	}
}

func benchmarkSnapshot(b *testing.B, store *colstore.Store) {
	store.AddAll(makeBatch("snap", 1024, 1), nil)
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		snap := store.Snapshot()
		if len(snap.Cells) != 1024 {
			b.Fatal("bad snapshot")
		}
	}
}
