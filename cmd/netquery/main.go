// Copyright (C) The netquery contributors.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	cclog "github.com/ClusterCockpit/cc-lib/v2/ccLogger"
	"github.com/google/gops/agent"
	"github.com/joho/godotenv"

	"github.com/lukemarshall2222/netquery/internal/avrosink"
	"github.com/lukemarshall2222/netquery/internal/config"
	"github.com/lukemarshall2222/netquery/internal/httpserver"
	"github.com/lukemarshall2222/netquery/internal/ledger"
	"github.com/lukemarshall2222/netquery/internal/metrics"
	"github.com/lukemarshall2222/netquery/internal/natsio"
	"github.com/lukemarshall2222/netquery/internal/predicate"
	"github.com/lukemarshall2222/netquery/internal/pruner"
	"github.com/lukemarshall2222/netquery/pkg/csvio"
	"github.com/lukemarshall2222/netquery/pkg/dump"
	"github.com/lukemarshall2222/netquery/pkg/operator"
	"github.com/lukemarshall2222/netquery/pkg/query"
	"github.com/lukemarshall2222/netquery/pkg/record"
)

func main() {
	var flagConfigFile string
	var flagGops bool
	var flagListQueries bool
	flag.StringVar(&flagConfigFile, "config", "./config.json", "Run configuration file")
	flag.BoolVar(&flagGops, "gops", false, "Listen via github.com/google/gops/agent (for debugging)")
	flag.BoolVar(&flagListQueries, "list-queries", false, "Print every registered query name and exit")
	flag.Parse()

	if flagListQueries {
		for name := range query.Registry {
			fmt.Println(name)
		}
		return
	}

	if flagGops {
		if err := agent.Listen(agent.Options{}); err != nil {
			cclog.Fatalf("gops/agent.Listen failed: %s", err.Error())
		}
	}

	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		cclog.Fatalf("parsing '.env' file failed: %s", err.Error())
	}

	raw, err := os.ReadFile(flagConfigFile)
	if err != nil {
		cclog.Fatalf("reading config file: %s", err.Error())
	}
	runCfg, err := config.Load(raw)
	if err != nil {
		cclog.Fatalf("loading config: %s", err.Error())
	}

	spec, ok := query.Lookup(runCfg.Query)
	if !ok {
		cclog.Fatalf("unknown query %q (see -list-queries)", runCfg.Query)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	var l *ledger.Ledger
	if runCfg.LedgerPath != "" {
		l, err = ledger.Open(runCfg.LedgerPath)
		if err != nil {
			cclog.Fatalf("opening ledger: %s", err.Error())
		}
		defer l.Close()
	}

	var metricsServer *metrics.Server
	if runCfg.Metrics != nil && runCfg.Metrics.ListenAddr != "" {
		metricsServer = metrics.NewServer(runCfg.Metrics.ListenAddr)
		metricsServer.Start(ctx)
	}

	status := httpserver.New(":8080", l)
	go func() {
		if err := status.ListenAndServe(); err != nil {
			cclog.Errorf("status server stopped: %s", err.Error())
		}
	}()
	defer status.Shutdown()

	var prune *pruner.Pruner
	if runCfg.PruneInterval != "" {
		d, err := time.ParseDuration(runCfg.PruneInterval)
		if err != nil {
			cclog.Fatalf("parsing pruneInterval: %s", err.Error())
		}
		prune, err = pruner.New(d, pruner.Policy{WarnAboveEntries: 100000, MaxEpochAge: runCfg.PruneMaxAge})
		if err != nil {
			cclog.Fatalf("starting pruner: %s", err.Error())
		}
		prune.Start()
		defer prune.Stop()
	}

	sink, closeSink, err := buildSink(runCfg.Sink)
	if err != nil {
		cclog.Fatalf("building sink: %s", err.Error())
	}
	defer closeSink()

	if runCfg.Predicate != "" {
		pred, err := predicate.Compile(runCfg.Predicate)
		if err != nil {
			cclog.Fatalf("compiling predicate: %s", err.Error())
		}
		sink = operator.Chain(sink, operator.Filter(pred))
	}

	var recordsIn, recordsOut, epochs int64
	countingSink := &counter{next: sink, n: &recordsOut, epochs: &epochs}

	started := time.Now()
	var runID int64
	if l != nil {
		runID, err = l.StartRun(runCfg.Query, started)
		if err != nil {
			cclog.Errorf("ledger: start run: %s", err.Error())
		}
	}

	runErr := runPipeline(ctx, runCfg, spec, countingSink, metricsServer, prune, status, &recordsIn)

	if l != nil {
		if err := l.FinishRun(runID, time.Now(), recordsIn, recordsOut, epochs, runErr); err != nil {
			cclog.Errorf("ledger: finish run: %s", err.Error())
		}
	}

	if runErr != nil {
		cclog.Fatalf("run failed: %s", runErr.Error())
	}
}

// counter wraps an operator, tallying the records and epoch boundaries
// that flow through it so the ledger can record a run's summary
// counts. Spliced at the sink it counts output; spliced at the source
// it counts input.
type counter struct {
	next   operator.Operator
	n      *int64
	epochs *int64
}

func (c *counter) Next(r record.Record) error {
	*c.n++
	return c.next.Next(r)
}

func (c *counter) Reset(r record.Record) error {
	if c.epochs != nil {
		*c.epochs++
	}
	return c.next.Reset(r)
}

func buildSink(sc config.Sink) (operator.Operator, func(), error) {
	var sinks []operator.Operator
	var closers []func() error

	if sc.CSVPath != "" {
		f, err := os.Create(sc.CSVPath)
		if err != nil {
			return nil, nil, fmt.Errorf("opening csv sink: %w", err)
		}
		sinks = append(sinks, csvio.NewSink(f))
		closers = append(closers, f.Close)
	}
	if sc.AvroPath != "" {
		avroSink, err := avrosink.NewSink(sc.AvroPath, "netquery_result")
		if err != nil {
			return nil, nil, fmt.Errorf("opening avro sink: %w", err)
		}
		sinks = append(sinks, avroSink)
		closers = append(closers, avroSink.Close)
	}
	if sc.NATS != nil {
		natsSink, err := natsio.NewSink(natsio.Config{
			Address:       sc.NATS.Address,
			Username:      sc.NATS.Username,
			Password:      sc.NATS.Password,
			CredsFilePath: sc.NATS.CredsFilePath,
		}, sc.NATS.Subject)
		if err != nil {
			return nil, nil, fmt.Errorf("connecting nats sink: %w", err)
		}
		sinks = append(sinks, natsSink)
		closers = append(closers, func() error { natsSink.Close(); return nil })
	}
	if len(sinks) == 0 {
		sinks = append(sinks, dump.NewSink(os.Stdout))
	}

	closeAll := func() {
		for _, c := range closers {
			if err := c(); err != nil {
				cclog.Warnf("closing sink: %s", err.Error())
			}
		}
	}
	if len(sinks) == 1 {
		return sinks[0], closeAll, nil
	}
	return &fanout{sinks: sinks}, closeAll, nil
}

// fanout forwards every call to each of a set of sinks in order,
// stopping at the first error.
type fanout struct {
	sinks []operator.Operator
}

func (f *fanout) Next(r record.Record) error {
	for _, s := range f.sinks {
		if err := s.Next(r); err != nil {
			return err
		}
	}
	return nil
}

func (f *fanout) Reset(r record.Record) error {
	for _, s := range f.sinks {
		if err := s.Reset(r); err != nil {
			return err
		}
	}
	return nil
}

// runPipeline wires a resolved query into its source and starts
// consuming records, marking status ready for /readyz the moment that
// consumption begins. For a multi-stream query, each of its join
// tables is registered with the pruner under the same name BuildMulti
// reports it by, so table size and age are swept on the configured
// schedule.
func runPipeline(ctx context.Context, runCfg config.Run, spec query.Spec, sink operator.Operator, ms *metrics.Server, p *pruner.Pruner, status *httpserver.Server, recordsIn *int64) error {
	status.SetReady(true)

	if !spec.IsMulti() {
		op := spec.BuildSingle(sink)
		if ms != nil {
			op = metrics.NewRecorder(ms.Registry(), spec.Name, "input", op)
		}
		op = &counter{next: op, n: recordsIn}
		return runSingle(ctx, runCfg, op)
	}

	ops, tables := spec.BuildMulti(sink)
	if p != nil {
		for name, t := range tables {
			p.Watch(name, t)
		}
	}
	for name, op := range ops {
		if ms != nil {
			op = metrics.NewRecorder(ms.Registry(), spec.Name, name, op)
		}
		ops[name] = &counter{next: op, n: recordsIn}
	}
	return runMulti(ctx, runCfg, spec.StreamOrder, ops)
}

func runSingle(ctx context.Context, runCfg config.Run, op operator.Operator) error {
	if runCfg.Source.NATS != nil {
		return runNATSSource(ctx, runCfg.Source.NATS, op)
	}
	if len(runCfg.Source.Files) != 1 {
		return fmt.Errorf("query %q takes exactly one input file, got %d", runCfg.Query, len(runCfg.Source.Files))
	}
	f, err := os.Open(runCfg.Source.Files[0])
	if err != nil {
		return fmt.Errorf("opening input file: %w", err)
	}
	defer f.Close()
	return csvio.ReadFile(f, op, false, func(err error) { cclog.Warnf("skipping malformed line: %s", err.Error()) })
}

func runMulti(ctx context.Context, runCfg config.Run, order []string, ops map[string]operator.Operator) error {
	if runCfg.Source.NATS != nil {
		return fmt.Errorf("multi-stream queries do not support a single nats source; configure one sink per stream out of band")
	}
	if len(runCfg.Source.Files) != len(order) {
		return fmt.Errorf("query %q takes %d input files (%v), got %d", runCfg.Query, len(order), order, len(runCfg.Source.Files))
	}

	readers := make([]io.Reader, len(order))
	orderedOps := make([]operator.Operator, len(order))
	for i, name := range order {
		f, err := os.Open(runCfg.Source.Files[i])
		if err != nil {
			return fmt.Errorf("opening input file for stream %q: %w", name, err)
		}
		defer f.Close()
		readers[i] = f
		orderedOps[i] = ops[name]
	}

	return csvio.ReadFiles(readers, orderedOps, false,
		func(err error) { cclog.Warnf("skipping malformed line: %s", err.Error()) })
}

func runNATSSource(ctx context.Context, ep *config.NATSEndpoint, op operator.Operator) error {
	src, err := natsio.NewSource(natsio.Config{
		Address:       ep.Address,
		Username:      ep.Username,
		Password:      ep.Password,
		CredsFilePath: ep.CredsFilePath,
	}, 10000)
	if err != nil {
		return fmt.Errorf("connecting nats source: %w", err)
	}
	defer src.Close()
	return src.Run(ctx, ep.Subject, op)
}
