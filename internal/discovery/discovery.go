// Package discovery resolves the current set of node pods behind the
// headless service. StatefulSet pods are addressable as
// <service>-<ordinal>.<service>.<namespace>.svc.<cluster-domain> with
// contiguous ordinals, so discovery walks ordinals until one stops resolving.
package discovery

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strconv"
)

// ErrDegraded reports that name resolution itself failed partway through the
// walk. The targets returned alongside it are still usable; the caller logs
// and proceeds with them.
var ErrDegraded = errors.New("target discovery degraded")

// Target is one node replica: the pod name used as the metric label and the
// host:port its RPC endpoint answers on. Targets are re-resolved on every
// pass and never cached across passes.
type Target struct {
	Name string
	Addr string
}

// LookupFunc resolves a hostname. net.DefaultResolver.LookupHost satisfies
// it; tests substitute their own.
type LookupFunc func(ctx context.Context, host string) ([]string, error)

// Discoverer lists the currently resolvable node pods.
type Discoverer struct {
	serviceName   string
	serviceDomain string
	rpcPort       int
	maxReplicas   int
	lookup        LookupFunc
}

// New returns a Discoverer for the given headless service. serviceDomain is
// the zone pod names live under (service.namespace.svc.cluster.local),
// rpcPort the JSON-RPC port shared by every pod, and maxReplicas the bound on
// the ordinal walk. A nil lookup means the system resolver.
func New(serviceName, serviceDomain string, rpcPort, maxReplicas int, lookup LookupFunc) *Discoverer {
	if lookup == nil {
		lookup = net.DefaultResolver.LookupHost
	}

	return &Discoverer{
		serviceName:   serviceName,
		serviceDomain: serviceDomain,
		rpcPort:       rpcPort,
		maxReplicas:   maxReplicas,
		lookup:        lookup,
	}
}

// List returns the resolvable targets in ordinal order. The walk stops at the
// first ordinal that does not exist; StatefulSet ordinals are contiguous, so
// a gap means the end of the replica set. Resolution failures that are not a
// clean "no such host" end the walk too, but the targets found so far are
// returned together with ErrDegraded so one flaky resolver answer does not
// blank the whole pass.
func (discoverer *Discoverer) List(ctx context.Context) ([]Target, error) {
	var targets []Target

	for ordinal := 0; ordinal < discoverer.maxReplicas; ordinal++ {
		host := discoverer.hostForOrdinal(ordinal)

		_, lookupErr := discoverer.lookup(ctx, host)
		if lookupErr == nil {
			targets = append(targets, discoverer.targetForOrdinal(ordinal))

			continue
		}

		if isNotFound(lookupErr) {
			break
		}

		return targets, fmt.Errorf("%w: lookup %s: %v", ErrDegraded, host, lookupErr)
	}

	return targets, nil
}

// Fallback returns the ordinal-0 target. The collector probes it when
// discovery yields nothing, so a scrape during a DNS outage still shows an
// explicit down indicator instead of an empty page.
func (discoverer *Discoverer) Fallback() Target {
	return discoverer.targetForOrdinal(0)
}

func (discoverer *Discoverer) hostForOrdinal(ordinal int) string {
	return discoverer.serviceName + "-" + strconv.Itoa(ordinal) + "." + discoverer.serviceDomain
}

func (discoverer *Discoverer) targetForOrdinal(ordinal int) Target {
	return Target{
		Name: discoverer.serviceName + "-" + strconv.Itoa(ordinal),
		Addr: net.JoinHostPort(discoverer.hostForOrdinal(ordinal), strconv.Itoa(discoverer.rpcPort)),
	}
}

func isNotFound(err error) bool {
	var dnsErr *net.DNSError

	return errors.As(err, &dnsErr) && dnsErr.IsNotFound
}
