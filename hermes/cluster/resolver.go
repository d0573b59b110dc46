// Package cluster resolves the Eureka server endpoints, either from static
// config or from the conventional TXT record layout used by Eureka DNS
// discovery.
package cluster

import (
	"context"
	"fmt"
	"net"
	"strings"

	"github.com/SoftKiwiGames/hermes/hermes/ctxlog"
)

type Resolver interface {
	Endpoints(ctx context.Context) ([]string, error)
}

// Static resolves to a single configured endpoint.
type Static struct {
	URL string
}

func (s *Static) Endpoints(ctx context.Context) ([]string, error) {
	if s.URL == "" {
		return nil, fmt.Errorf("cluster: endpoint URL is empty")
	}
	return []string{s.URL}, nil
}

// DNS discovers server hosts from TXT records. The top-level record at
// txt.<domain> lists zone records; each zone record's TXT entries name the
// server hosts. Zone records that fail the second lookup are treated as
// plain hostnames.
type DNS struct {
	Domain      string
	Port        int
	SSL         bool
	ServicePath string

	// LookupTXT is swappable for tests; defaults to net.DefaultResolver.
	LookupTXT func(ctx context.Context, name string) ([]string, error)
}

func (d *DNS) Endpoints(ctx context.Context) ([]string, error) {
	log := ctxlog.FromContext(ctx)
	lookup := d.LookupTXT
	if lookup == nil {
		lookup = net.DefaultResolver.LookupTXT
	}

	root := "txt." + d.Domain
	zones, err := lookup(ctx, root)
	if err != nil {
		return nil, fmt.Errorf("cluster: TXT lookup %s failed: %w", root, err)
	}

	var hosts []string
	for _, zone := range zones {
		records, err := lookup(ctx, "txt."+zone)
		if err != nil {
			log.Debug("zone TXT lookup failed, using record as host", "zone", zone, "error", err)
			hosts = append(hosts, zone)
			continue
		}
		hosts = append(hosts, records...)
	}
	if len(hosts) == 0 {
		return nil, fmt.Errorf("cluster: no server hosts found under %s", root)
	}

	scheme := "http"
	if d.SSL {
		scheme = "https"
	}
	path := strings.TrimSuffix(d.ServicePath, "/")

	endpoints := make([]string, 0, len(hosts))
	for _, host := range hosts {
		endpoints = append(endpoints, fmt.Sprintf("%s://%s:%d%s", scheme, host, d.Port, path))
	}
	return endpoints, nil
}
