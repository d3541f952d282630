// Package config loads and validates the benchmark run configuration.
// Validation is eager: a malformed config fails the whole run before any
// timed work begins.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Duration is a time.Duration that (un)marshals as a "30s"-style string.
type Duration time.Duration

func (d Duration) MarshalYAML() (interface{}, error) {
	return time.Duration(d).String(), nil
}

func (d *Duration) UnmarshalYAML(node *yaml.Node) error {
	var s string
	if err := node.Decode(&s); err != nil {
		return err
	}
	v, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", s, err)
	}
	*d = Duration(v)
	return nil
}

// Known backend types, matched against Backend.Type.
const (
	TypeElasticsearch = "elasticsearch"
	TypeQdrant        = "qdrant"
	TypeRediSearch    = "redisearch"
	TypeSolr          = "solr"
)

var knownTypes = map[string]bool{
	TypeElasticsearch: true,
	TypeQdrant:        true,
	TypeRediSearch:    true,
	TypeSolr:          true,
}

// Backend holds the connection parameters of one configured engine.
type Backend struct {
	Name      string        `yaml:"name"`
	Type      string        `yaml:"type"`
	Enabled   bool          `yaml:"enabled"`
	Addr      string        `yaml:"addr"`
	APIKey    string        `yaml:"api_key,omitempty"`
	Password  string        `yaml:"password,omitempty"`
	Index     string        `yaml:"index"`
	VectorDim int           `yaml:"vector_dim"`
	Timeout   Duration      `yaml:"timeout"`
}

// WriteWorkload holds the write phase parameters.
type WriteWorkload struct {
	BatchSizes []int `yaml:"batch_sizes"`
}

// QueryWorkload holds the query phase parameters. Seed fixes the query
// sample so runs are reproducible.
type QueryWorkload struct {
	NumQueries  int   `yaml:"num_queries"`
	ResultLimit int   `yaml:"result_limit"`
	Seed        int64 `yaml:"seed"`
}

// Config is the full, read-only run configuration.
type Config struct {
	Data struct {
		Path string `yaml:"path"`
	} `yaml:"data"`
	Output struct {
		Dir string `yaml:"dir"`
	} `yaml:"output"`
	// Reference names the backend all others are compared against.
	// Empty means the first enabled backend in configuration order.
	Reference string    `yaml:"reference,omitempty"`
	Backends  []Backend `yaml:"backends"`
	Workloads struct {
		Write WriteWorkload `yaml:"write"`
		Query QueryWorkload `yaml:"query"`
	} `yaml:"workloads"`
}

// Default returns the configuration the suite ships with: the original
// elasticsearch/qdrant pair enabled, redisearch and solr present but off.
func Default() *Config {
	c := &Config{}
	c.Data.Path = "data/products_with_embeddings.jsonl"
	c.Output.Dir = "benchmark_results"
	c.Backends = []Backend{
		{Name: "elasticsearch", Type: TypeElasticsearch, Enabled: true, Addr: "http://localhost:9200", Index: "bench_write", VectorDim: 384, Timeout: Duration(30 * time.Second)},
		{Name: "qdrant", Type: TypeQdrant, Enabled: true, Addr: "localhost:6334", Index: "bench_write", VectorDim: 384, Timeout: Duration(30 * time.Second)},
		{Name: "redisearch", Type: TypeRediSearch, Enabled: false, Addr: "localhost:6379", Index: "bench_write", VectorDim: 384, Timeout: Duration(30 * time.Second)},
		{Name: "solr", Type: TypeSolr, Enabled: false, Addr: "http://localhost:8983/solr", Index: "bench_write", Timeout: Duration(30 * time.Second)},
	}
	c.Workloads.Write.BatchSizes = []int{100, 500, 1000}
	c.Workloads.Query.NumQueries = 100
	c.Workloads.Query.ResultLimit = 10
	c.Workloads.Query.Seed = 42
	return c
}

// Load reads and validates a YAML configuration file.
func Load(path string) (*Config, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	var c Config
	if err := yaml.Unmarshal(raw, &c); err != nil {
		return nil, fmt.Errorf("config %s: %w", path, err)
	}
	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("config %s: %w", path, err)
	}
	return &c, nil
}

// WriteDefault writes the default configuration to path. It refuses to
// overwrite an existing file.
func WriteDefault(path string) error {
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("config: %s already exists", path)
	}
	raw, err := yaml.Marshal(Default())
	if err != nil {
		return err
	}
	return os.WriteFile(path, raw, 0644)
}

// Validate checks every workload parameter and backend entry, filling in
// the per-call timeout default where it is unset.
func (c *Config) Validate() error {
	if c.Data.Path == "" {
		return fmt.Errorf("data.path is required")
	}
	if c.Output.Dir == "" {
		return fmt.Errorf("output.dir is required")
	}
	if len(c.Workloads.Write.BatchSizes) == 0 {
		return fmt.Errorf("workloads.write.batch_sizes must not be empty")
	}
	for _, bs := range c.Workloads.Write.BatchSizes {
		if bs <= 0 {
			return fmt.Errorf("batch size must be positive, got %d", bs)
		}
	}
	if c.Workloads.Query.NumQueries <= 0 {
		return fmt.Errorf("workloads.query.num_queries must be positive, got %d", c.Workloads.Query.NumQueries)
	}
	if c.Workloads.Query.ResultLimit <= 0 {
		return fmt.Errorf("workloads.query.result_limit must be positive, got %d", c.Workloads.Query.ResultLimit)
	}
	seen := map[string]bool{}
	for i := range c.Backends {
		b := &c.Backends[i]
		if b.Name == "" {
			return fmt.Errorf("backends[%d]: name is required", i)
		}
		if seen[b.Name] {
			return fmt.Errorf("duplicate backend name %q", b.Name)
		}
		seen[b.Name] = true
		if !knownTypes[b.Type] {
			return fmt.Errorf("backend %s: unknown type %q", b.Name, b.Type)
		}
		if b.Addr == "" {
			return fmt.Errorf("backend %s: addr is required", b.Name)
		}
		if b.Index == "" {
			return fmt.Errorf("backend %s: index is required", b.Name)
		}
		if b.Type != TypeSolr && b.VectorDim <= 0 {
			return fmt.Errorf("backend %s: vector_dim must be positive, got %d", b.Name, b.VectorDim)
		}
		if b.Timeout < 0 {
			return fmt.Errorf("backend %s: timeout must not be negative", b.Name)
		}
		if b.Timeout == 0 {
			b.Timeout = Duration(30 * time.Second)
		}
	}
	enabled := c.Enabled()
	if len(enabled) == 0 {
		return fmt.Errorf("no backend is enabled")
	}
	if c.Reference != "" {
		found := false
		for _, b := range enabled {
			if b.Name == c.Reference {
				found = true
				break
			}
		}
		if !found {
			return fmt.Errorf("reference %q does not name an enabled backend", c.Reference)
		}
	}
	return nil
}

// Enabled returns the enabled backends in configuration order.
func (c *Config) Enabled() []Backend {
	var out []Backend
	for _, b := range c.Backends {
		if b.Enabled {
			out = append(out, b)
		}
	}
	return out
}

// ReferenceBackend returns the name of the comparison reference: the
// explicit reference key, or the first enabled backend.
func (c *Config) ReferenceBackend() string {
	if c.Reference != "" {
		return c.Reference
	}
	enabled := c.Enabled()
	if len(enabled) == 0 {
		return ""
	}
	return enabled[0].Name
}
