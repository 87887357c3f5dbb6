// Package collector runs collection passes against the discovered node pods
// and exposes the latest pass as Prometheus const metrics.
package collector

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"
	"golang.org/x/time/rate"

	"github.com/alpeto9/bitcoin-testnet-k8s-node/internal/discovery"
	"github.com/alpeto9/bitcoin-testnet-k8s-node/internal/logger"
	"github.com/alpeto9/bitcoin-testnet-k8s-node/internal/rpcclient"
)

// Lister yields the targets for one pass. *discovery.Discoverer implements it.
type Lister interface {
	List(ctx context.Context) ([]discovery.Target, error)
	Fallback() discovery.Target
}

// NodeClient is the fixed query surface the collector needs from the RPC
// layer. *rpcclient.Client implements it.
type NodeClient interface {
	BlockchainInfo(ctx context.Context, addr string) (rpcclient.BlockchainInfo, error)
	PeerCount(ctx context.Context, addr string) (int, error)
	ConnectionCount(ctx context.Context, addr string) (int, error)
}

// NodeCollector implements prometheus.Collector. Each scrape either triggers
// a collection pass, joins the pass already in flight, or is served the
// cached snapshot when the previous pass is fresher than the configured
// minimum interval. The snapshot is the only cross-request shared state and
// is replaced with a single atomic pointer store.
type NodeCollector struct {
	lister      Lister
	client      NodeClient
	perTarget   time.Duration
	baseContext context.Context

	limiter  *rate.Limiter
	flight   singleflight.Group
	snapshot atomic.Pointer[Snapshot]

	upDesc           *prometheus.Desc
	blocksDesc       *prometheus.Desc
	peersDesc        *prometheus.Desc
	connectionsDesc  *prometheus.Desc
	difficultyDesc   *prometheus.Desc
	verificationDesc *prometheus.Desc
}

// NewNodeCollector builds the collector. perTarget bounds the whole query set
// against one pod; minInterval is the shortest period between passes (zero
// means every scrape collects). baseContext cancels in-flight passes on
// shutdown; nil means context.Background().
func NewNodeCollector(
	lister Lister,
	client NodeClient,
	perTarget time.Duration,
	minInterval time.Duration,
	baseContext context.Context,
) *NodeCollector {
	if baseContext == nil {
		baseContext = context.Background()
	}

	limit := rate.Inf
	if minInterval > 0 {
		limit = rate.Every(minInterval)
	}

	podLabels := []string{podLabel}

	return &NodeCollector{
		lister:      lister,
		client:      client,
		perTarget:   perTarget,
		baseContext: baseContext,
		limiter:     rate.NewLimiter(limit, 1),
		upDesc: prometheus.NewDesc(
			prometheus.BuildFQName(prometheusNamespace, "", metricUp),
			"Whether the full RPC query set succeeded against this pod (1=up, 0=down).",
			podLabels, nil,
		),
		blocksDesc: prometheus.NewDesc(
			prometheus.BuildFQName(prometheusNamespace, "", metricBlocks),
			"Current block height.",
			podLabels, nil,
		),
		peersDesc: prometheus.NewDesc(
			prometheus.BuildFQName(prometheusNamespace, "", metricPeers),
			"Number of connected peers.",
			podLabels, nil,
		),
		connectionsDesc: prometheus.NewDesc(
			prometheus.BuildFQName(prometheusNamespace, "", metricConnections),
			"Number of network connections.",
			podLabels, nil,
		),
		difficultyDesc: prometheus.NewDesc(
			prometheus.BuildFQName(prometheusNamespace, "", metricDifficulty),
			"Current network difficulty.",
			podLabels, nil,
		),
		verificationDesc: prometheus.NewDesc(
			prometheus.BuildFQName(prometheusNamespace, "", metricVerificationProgress),
			"Blockchain verification progress (0-1).",
			podLabels, nil,
		),
	}
}

// Describe sends the descriptor of every metric this collector can emit.
func (collector *NodeCollector) Describe(ch chan<- *prometheus.Desc) {
	ch <- collector.upDesc
	ch <- collector.blocksDesc
	ch <- collector.peersDesc
	ch <- collector.connectionsDesc
	ch <- collector.difficultyDesc
	ch <- collector.verificationDesc
}

// Collect emits the current snapshot. Targets that failed collection get only
// the down indicator; value metrics are never fabricated for them.
func (collector *NodeCollector) Collect(ch chan<- prometheus.Metric) {
	snap := collector.Refresh()

	for index := range snap.Results {
		result := &snap.Results[index]
		pod := result.Target.Name

		upValue := 0.0
		if result.Up {
			upValue = 1.0
		}

		ch <- prometheus.MustNewConstMetric(collector.upDesc, prometheus.GaugeValue, upValue, pod)

		if !result.Up {
			continue
		}

		ch <- prometheus.MustNewConstMetric(collector.blocksDesc, prometheus.GaugeValue, float64(result.Blocks), pod)
		ch <- prometheus.MustNewConstMetric(collector.peersDesc, prometheus.GaugeValue, float64(result.Peers), pod)
		ch <- prometheus.MustNewConstMetric(collector.connectionsDesc, prometheus.GaugeValue, float64(result.Connections), pod)
		ch <- prometheus.MustNewConstMetric(collector.difficultyDesc, prometheus.GaugeValue, result.Difficulty, pod)
		ch <- prometheus.MustNewConstMetric(collector.verificationDesc, prometheus.GaugeValue, result.VerificationProgress, pod)
	}
}

// Snapshot returns the most recently completed pass, or nil before the first.
func (collector *NodeCollector) Snapshot() *Snapshot {
	return collector.snapshot.Load()
}

// Refresh returns a snapshot for the current scrape: the cached one when the
// previous pass is fresher than the minimum interval, otherwise the outcome
// of a pass. Concurrent callers collapse onto a single in-flight pass and all
// observe the same completed snapshot.
func (collector *NodeCollector) Refresh() *Snapshot {
	shared, _, _ := collector.flight.Do("pass", func() (any, error) {
		cached := collector.snapshot.Load()
		if !collector.limiter.Allow() && cached != nil {
			return cached, nil
		}

		snap := collector.runPass(collector.baseContext)
		collector.snapshot.Store(snap)

		return snap, nil
	})

	return shared.(*Snapshot)
}

// runPass is one Idle→Discovering→Calling→Rendering cycle. It never returns
// an error: every failure is recorded as data inside the snapshot.
func (collector *NodeCollector) runPass(ctx context.Context) *Snapshot {
	startTime := time.Now()

	IncPasses()

	discoveryContext, cancelDiscovery := context.WithTimeout(ctx, collector.perTarget)
	targets, discoverErr := collector.lister.List(discoveryContext)
	cancelDiscovery()

	if discoverErr != nil {
		IncPassErrors()
		logger.L().Warn("discovery degraded, continuing with resolved targets",
			"err", discoverErr,
			"resolved", len(targets),
		)
	}

	discovered := len(targets)
	SetTargetsDiscovered(discovered)

	if len(targets) == 0 {
		fallback := collector.lister.Fallback()
		logger.L().Warn("no targets discovered, probing fallback pod", "addr", fallback.Addr)
		targets = []discovery.Target{fallback}
	}

	// One goroutine per target; each writes only its own slot, so the pass
	// needs no shared accumulator and no lock.
	results := make([]TargetResult, len(targets))

	var group errgroup.Group

	for index := range targets {
		index := index
		target := targets[index]

		group.Go(func() error {
			results[index] = collector.probeTarget(ctx, target)

			return nil
		})
	}

	_ = group.Wait()

	snap := newSnapshot(results, discovered, startTime)

	ObservePassDuration(snap.Elapsed)
	MarkPassOK(time.Now())

	return snap
}

// probeTarget runs the fixed query set against one pod under the per-target
// deadline. Any failure marks the whole target down; a partially answered
// target is never half-recorded.
func (collector *NodeCollector) probeTarget(ctx context.Context, target discovery.Target) TargetResult {
	callContext, cancel := context.WithTimeout(ctx, collector.perTarget)
	defer cancel()

	info, infoErr := collector.client.BlockchainInfo(callContext, target.Addr)
	if infoErr != nil {
		return collector.failTarget(target, infoErr)
	}

	peers, peersErr := collector.client.PeerCount(callContext, target.Addr)
	if peersErr != nil {
		return collector.failTarget(target, peersErr)
	}

	connections, connectionsErr := collector.client.ConnectionCount(callContext, target.Addr)
	if connectionsErr != nil {
		return collector.failTarget(target, connectionsErr)
	}

	return TargetResult{
		Target:               target,
		Up:                   true,
		Blocks:               info.Blocks,
		Peers:                peers,
		Connections:          connections,
		Difficulty:           info.Difficulty,
		VerificationProgress: info.VerificationProgress,
	}
}

func (collector *NodeCollector) failTarget(target discovery.Target, probeErr error) TargetResult {
	IncRPCError(probeErr)
	logger.L().Warn("target probe failed", "pod", target.Name, "err", probeErr)

	return TargetResult{Target: target, Err: probeErr}
}
