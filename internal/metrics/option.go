package metrics

type Provider string

const (
	PrometheusProvider Provider = "prometheus"
	OtelCollector      Provider = "otel_collector"
)

type Config struct {
	ServiceName string
	Provider    []ProviderCfg
}

type ProviderCfg struct {
	Provider Provider
	Endpoint string
	Headers  map[string]string
	Insecure bool
}

type OptionFn func(config Config) Config

// WithPrometheus adds the Prometheus pull exporter.
func WithPrometheus() OptionFn {
	return WithProviderConfig(ProviderCfg{Provider: PrometheusProvider})
}

// WithOtelCollector adds an OTLP gRPC push exporter.
func WithOtelCollector(url string, headers map[string]string, insecure bool) OptionFn {
	return WithProviderConfig(ProviderCfg{
		Provider: OtelCollector,
		Endpoint: url,
		Headers:  headers,
		Insecure: insecure,
	})
}

func WithProviderConfig(provider ProviderCfg) OptionFn {
	return func(config Config) Config {
		config.Provider = append(config.Provider, provider)

		return config
	}
}

func WithServiceName(serviceName string) OptionFn {
	return func(config Config) Config {
		config.ServiceName = serviceName

		return config
	}
}
