package metrics

import (
	"context"
	"testing"
)

func TestNewMetricProvider_WithoutReaders(t *testing.T) {
	mp, err := NewMetricProvider(WithServiceName("test"))
	if err != nil {
		t.Fatalf("NewMetricProvider: %v", err)
	}
	defer mp.Shutdown(context.Background())

	counter, err := mp.Meter("test").Int64Counter("evaluations")
	if err != nil {
		t.Fatalf("counter: %v", err)
	}
	counter.Add(context.Background(), 1)
}

func TestOptions(t *testing.T) {
	var cfg Config
	for _, opt := range []OptionFn{
		WithServiceName("svc"),
		WithPrometheus(),
		WithOtelCollector("http://collector:4317", map[string]string{"k": "v"}, true),
	} {
		cfg = opt(cfg)
	}

	if cfg.ServiceName != "svc" || len(cfg.Provider) != 2 {
		t.Fatalf("cfg = %+v", cfg)
	}
	if cfg.Provider[1].Provider != OtelCollector || !cfg.Provider[1].Insecure {
		t.Errorf("collector cfg = %+v", cfg.Provider[1])
	}
}
