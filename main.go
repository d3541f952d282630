package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/searchbench/SearchBenchmark/backend"
	"github.com/searchbench/SearchBenchmark/backend/elastic"
	"github.com/searchbench/SearchBenchmark/backend/qdrant"
	"github.com/searchbench/SearchBenchmark/backend/redisearch"
	"github.com/searchbench/SearchBenchmark/backend/solr"
	"github.com/searchbench/SearchBenchmark/bench"
	"github.com/searchbench/SearchBenchmark/config"
	"github.com/searchbench/SearchBenchmark/dataset"
	"github.com/searchbench/SearchBenchmark/report"
)

var log = logrus.New()

// newBackend wires one configured engine to its adapter.
func newBackend(c config.Backend) (backend.Backend, error) {
	switch c.Type {
	case config.TypeElasticsearch:
		return elastic.New(c.Name, c.Addr, c.APIKey, c.Index, c.VectorDim)
	case config.TypeQdrant:
		return qdrant.New(c.Name, c.Addr, c.Index, c.VectorDim), nil
	case config.TypeRediSearch:
		return redisearch.New(c.Name, c.Addr, c.Password, c.Index, c.VectorDim, time.Duration(c.Timeout)), nil
	case config.TypeSolr:
		return solr.New(c.Name, c.Addr, c.Index)
	}
	return nil, fmt.Errorf("unknown backend type %q", c.Type)
}

func run() int {
	configPath := flag.String("config", "config.yaml", "path to the run configuration")
	writeConfig := flag.Bool("writeconfig", false, "write a default configuration to -config and exit")
	outDir := flag.String("out", "", "override the configured output directory")
	seed := flag.Int64("seed", 0, "override the configured query sampling seed")
	verbose := flag.Bool("v", false, "debug logging")
	flag.Parse()

	if *verbose {
		log.SetLevel(logrus.DebugLevel)
	}

	if *writeConfig {
		if err := config.WriteDefault(*configPath); err != nil {
			log.WithError(err).Error("could not write default config")
			return 1
		}
		log.WithField("path", *configPath).Info("default configuration written, edit it and run again")
		return 0
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.WithError(err).Error("configuration invalid, aborting before any workload runs")
		return 1
	}
	if *outDir != "" {
		cfg.Output.Dir = *outDir
	}
	if *seed != 0 {
		cfg.Workloads.Query.Seed = *seed
	}

	corpus, err := dataset.Load(cfg.Data.Path)
	if err != nil {
		log.WithError(err).Error("could not load corpus")
		return 1
	}
	log.WithFields(logrus.Fields{"path": cfg.Data.Path, "records": len(corpus)}).Info("corpus loaded")

	// the query set is drawn once and replayed against every backend
	queries, err := dataset.SampleQueries(corpus, cfg.Workloads.Query.NumQueries, cfg.Workloads.Query.Seed)
	if err != nil {
		log.WithError(err).Error("could not sample queries")
		return 1
	}

	var targets []bench.Target
	for _, bc := range cfg.Enabled() {
		b, err := newBackend(bc)
		if err != nil {
			log.WithField("backend", bc.Name).WithError(err).Error("could not construct backend")
			return 1
		}
		targets = append(targets, bench.Target{Backend: b, Timeout: time.Duration(bc.Timeout)})
	}

	workload := bench.Workload{
		BatchSizes:  cfg.Workloads.Write.BatchSizes,
		NumQueries:  cfg.Workloads.Query.NumQueries,
		ResultLimit: cfg.Workloads.Query.ResultLimit,
	}
	orch := bench.NewOrchestrator(workload, corpus, queries, log)
	orch.ProgressPeriod = time.Second

	results, statuses := orch.Run(context.Background(), targets)

	rep := report.Build(statuses, results, cfg.ReferenceBackend())
	if err := writeReports(rep, cfg.Output.Dir); err != nil {
		log.WithError(err).Error("could not write reports")
		return 1
	}
	if err := rep.WriteTable(os.Stdout); err != nil {
		log.WithError(err).Warn("could not render summary table")
	}

	for _, st := range statuses {
		if st.OK {
			return 0
		}
	}
	log.Error("all backends failed to connect")
	return 1
}

func writeReports(rep report.Report, dir string) error {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return err
	}
	stamp := rep.GeneratedAt.Format("2006-01-02T15-04-05")

	jsonPath := filepath.Join(dir, fmt.Sprintf("results_%s.json", stamp))
	jf, err := os.Create(jsonPath)
	if err != nil {
		return err
	}
	if err := rep.WriteJSON(jf); err != nil {
		jf.Close()
		return err
	}
	if err := jf.Close(); err != nil {
		return err
	}
	log.WithField("path", jsonPath).Info("JSON report written")

	mdPath := filepath.Join(dir, fmt.Sprintf("report_%s.md", stamp))
	mf, err := os.Create(mdPath)
	if err != nil {
		return err
	}
	if err := rep.WriteMarkdown(mf); err != nil {
		mf.Close()
		return err
	}
	if err := mf.Close(); err != nil {
		return err
	}
	log.WithField("path", mdPath).Info("markdown report written")
	return nil
}

func main() {
	os.Exit(run())
}
