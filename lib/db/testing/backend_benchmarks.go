package testing

import (
	"context"
	"testing"

	"github.com/ValentinKolb/marines/lib/db"
)

// BenchmarkFactory creates a new, empty instance of an IBackend implementation
type BenchmarkFactory func(b *testing.B) db.IBackend

// RunBackendBenchmarks measures the write and load throughput of an IBackend implementation.
func RunBackendBenchmarks(b *testing.B, name string, factory BenchmarkFactory) {
	b.Run(name, func(b *testing.B) {
		b.Run("Insert", func(b *testing.B) {
			backend := factory(b)
			defer backend.Close()
			ctx := context.Background()

			b.ResetTimer()
			for i := 0; i < b.N; i++ {
				if err := backend.InsertRecord(ctx, Record(int64(i), int64(i), "bench")); err != nil {
					b.Fatal(err)
				}
			}
		})

		b.Run("Update", func(b *testing.B) {
			backend := factory(b)
			defer backend.Close()
			ctx := context.Background()
			if err := backend.InsertRecord(ctx, Record(1, 1, "bench")); err != nil {
				b.Fatal(err)
			}

			b.ResetTimer()
			for i := 0; i < b.N; i++ {
				r := Record(1, 1, "bench")
				r.Health = float64(i + 1)
				if err := backend.UpdateRecord(ctx, r); err != nil {
					b.Fatal(err)
				}
			}
		})

		b.Run("Load1000", func(b *testing.B) {
			backend := factory(b)
			defer backend.Close()
			ctx := context.Background()
			for i := int64(0); i < 1000; i++ {
				if err := backend.InsertRecord(ctx, Record(i, i, "bench")); err != nil {
					b.Fatal(err)
				}
			}

			b.ResetTimer()
			for i := 0; i < b.N; i++ {
				if _, err := backend.LoadRecords(ctx); err != nil {
					b.Fatal(err)
				}
			}
		})
	})
}
