package marine

import (
	"errors"
	"sync/atomic"
	"testing"

	"github.com/ValentinKolb/marines/rpc/client"
)

func TestParseInt(t *testing.T) {
	tests := []struct {
		input   string
		want    int64
		wantErr bool
	}{
		{input: "42", want: 42},
		{input: "-7", want: -7},
		{input: "4.2", wantErr: true},
		{input: "key", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, err := parseInt(tt.input, "key")
			if (err != nil) != tt.wantErr {
				t.Fatalf("parseInt(%q) error = %v, wantErr %v", tt.input, err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("parseInt(%q) = %d, want %d", tt.input, got, tt.want)
			}
		})
	}
}

func TestWrapAuthKeepsSentinel(t *testing.T) {
	if err := wrapAuth(client.ErrAuthFailed); !errors.Is(err, client.ErrAuthFailed) {
		t.Errorf("wrapAuth() = %v, want wrapped ErrAuthFailed", err)
	}
	other := errors.New("connection refused")
	if err := wrapAuth(other); err != other {
		t.Errorf("wrapAuth() = %v, want the error unchanged", err)
	}
}

func TestPerfMarineIsValid(t *testing.T) {
	for _, k := range []int64{0, 1, 99, 1 << 40} {
		if err := perfMarine(k).Validate(); err != nil {
			t.Errorf("perfMarine(%d) invalid: %v", k, err)
		}
	}
}

func TestPerfConnectionsMatchRunParallel(t *testing.T) {
	defer func(n int) { perfNumThreads = n }(perfNumThreads)
	perfNumThreads = 3

	var started atomic.Int64
	var lastRun int64
	testing.Benchmark(func(b *testing.B) {
		started.Store(0)
		b.SetParallelism(perfNumThreads)
		b.RunParallel(func(pb *testing.PB) {
			started.Add(1)
			for pb.Next() {
			}
		})
		lastRun = started.Load()
	})

	if lastRun != int64(perfConnections()) {
		t.Errorf("RunParallel started %d goroutines, pool holds %d clients", lastRun, perfConnections())
	}
}
