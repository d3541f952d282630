// Package dataset loads the benchmark corpus and draws the fixed query
// sample that is replayed identically against every backend.
package dataset

import (
	"bufio"
	"encoding/json"
	"fmt"
	"math/rand"
	"os"
	"strings"

	"github.com/searchbench/SearchBenchmark/backend"
)

// corpus lines can carry large embeddings, so the scanner buffer is
// sized well above the default 64K token limit
const maxLineBytes = 16 * 1024 * 1024

// Load reads a corpus of records from a JSONL file, one JSON object per
// line with id/title/text/fields/embedding keys. Blank lines are skipped.
func Load(path string) ([]backend.Record, error) {
	fp, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer fp.Close()

	var records []backend.Record
	scanner := bufio.NewScanner(fp)
	scanner.Buffer(make([]byte, 64*1024), maxLineBytes)
	line := 0
	for scanner.Scan() {
		line++
		raw := strings.TrimSpace(scanner.Text())
		if raw == "" {
			continue
		}
		var rec backend.Record
		if err := json.Unmarshal([]byte(raw), &rec); err != nil {
			return nil, fmt.Errorf("%s:%d: %w", path, line, err)
		}
		if rec.ID == "" {
			return nil, fmt.Errorf("%s:%d: record has no id", path, line)
		}
		records = append(records, rec)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}
	if len(records) == 0 {
		return nil, fmt.Errorf("%s: empty corpus", path)
	}
	return records, nil
}

// QuerySet is the fixed set of queries replayed by every backend's query
// phases. Texts[i] and Vectors[i] come from the same record, so lexical,
// vector and hybrid workloads are compared on identical semantic queries.
type QuerySet struct {
	Texts   []string
	Vectors [][]float32
}

// Len returns the number of queries in the set.
func (q QuerySet) Len() int {
	return len(q.Texts)
}

// queryWords is how many leading title words make up a lexical query
const queryWords = 5

// SampleQueries draws up to n queries from the corpus using a seeded
// source, so the same seed yields the same query set across runs. Records
// without a title or embedding are skipped.
func SampleQueries(records []backend.Record, n int, seed int64) (QuerySet, error) {
	if n <= 0 {
		return QuerySet{}, fmt.Errorf("query count must be positive, got %d", n)
	}
	rng := rand.New(rand.NewSource(seed))
	var qs QuerySet
	for _, i := range rng.Perm(len(records)) {
		rec := records[i]
		if rec.Title == "" || len(rec.Embedding) == 0 {
			continue
		}
		words := strings.Fields(rec.Title)
		if len(words) > queryWords {
			words = words[:queryWords]
		}
		qs.Texts = append(qs.Texts, strings.Join(words, " "))
		qs.Vectors = append(qs.Vectors, rec.Embedding)
		if qs.Len() == n {
			break
		}
	}
	if qs.Len() == 0 {
		return QuerySet{}, fmt.Errorf("no record has both a title and an embedding")
	}
	return qs, nil
}
