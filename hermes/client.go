package hermes

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/SoftKiwiGames/hermes/hermes/cluster"
	"github.com/SoftKiwiGames/hermes/hermes/ctxlog"
	"github.com/SoftKiwiGames/hermes/hermes/instance"
	"github.com/SoftKiwiGames/hermes/hermes/registry"
	"github.com/SoftKiwiGames/hermes/hermes/rest"
	"github.com/SoftKiwiGames/hermes/hermes/schema"
	"github.com/google/uuid"
)

// ErrAppNotFound is returned when the registry has no healthy instance of
// the requested app.
var ErrAppNotFound = fmt.Errorf("app not found in registry")

// Client ties the REST client, the registry cache and the lease maintainer
// together for one configured instance.
type Client struct {
	cfg       *schema.Config
	sessionID string
	ssl       bool
	http      *http.Client
	rest      *rest.Client
	registry  *registry.Cache
	lease     *instance.Maintainer
}

func NewClient(cfg *schema.Config) (*Client, error) {
	heartbeat, err := time.ParseDuration(cfg.Server.HeartbeatInterval)
	if err != nil {
		return nil, fmt.Errorf("invalid heartbeat_interval: %w", err)
	}
	fetchInterval, err := time.ParseDuration(cfg.Server.RegistryFetchInterval)
	if err != nil {
		return nil, fmt.Errorf("invalid registry_fetch_interval: %w", err)
	}
	retryDelay, err := time.ParseDuration(cfg.Server.RetryDelay)
	if err != nil {
		return nil, fmt.Errorf("invalid retry_delay: %w", err)
	}

	endpoints, err := resolveEndpoints(cfg)
	if err != nil {
		return nil, err
	}

	restClient := rest.NewClient(rest.Config{
		BaseURLs:   endpoints,
		MaxRetries: cfg.Server.MaxRetries,
		RetryDelay: retryDelay,
	})

	c := &Client{
		cfg:       cfg,
		sessionID: uuid.New().String(),
		ssl:       cfg.Server.SSL,
		http:      &http.Client{Timeout: 10 * time.Second},
		rest:      restClient,
		registry:  registry.NewCache(restClient, fetchInterval, *cfg.Server.FilterUpInstances),
	}

	if *cfg.Server.Register {
		c.lease = instance.NewMaintainer(restClient, WireInstance(&cfg.Instance), heartbeat, retryDelay)
	}

	return c, nil
}

// Run starts registry polling and, when registration is enabled, the lease
// maintainer. It blocks until the context is cancelled.
func (c *Client) Run(ctx context.Context) error {
	ctx = ctxlog.WithLogger(ctx, ctxlog.FromContext(ctx).With("session", c.sessionID))

	var wg sync.WaitGroup

	if *c.cfg.Server.FetchRegistry {
		wg.Add(1)
		go func() {
			defer wg.Done()
			c.registry.Run(ctx)
		}()
	}

	var leaseErr error
	if c.lease != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			leaseErr = c.lease.Run(ctx)
		}()
	}

	wg.Wait()
	return leaseErr
}

// Registry exposes the local registry cache.
func (c *Client) Registry() *registry.Cache {
	return c.registry
}

// REST exposes the underlying REST client for direct server operations.
func (c *Client) REST() *rest.Client {
	return c.rest
}

// Resolve returns "host:port" of a healthy instance of the app. The secure
// port is used when the client is configured for SSL.
func (c *Client) Resolve(app string) (string, error) {
	inst := c.registry.Lookup(app)
	if inst == nil {
		return "", fmt.Errorf("%w: %s", ErrAppNotFound, app)
	}

	port := inst.Port
	if c.ssl {
		port = inst.SecurePort
	}
	if port == nil || !port.Enabled {
		return "", fmt.Errorf("app %s instance %s has no enabled port", app, inst.ID())
	}
	return fmt.Sprintf("%s:%d", inst.IPAddr, port.Value), nil
}

// Call sends a JSON request to a peer app resolved through the registry and
// returns the raw response. Additional headers (e.g. Authorization) can be
// passed via header.
func (c *Client) Call(ctx context.Context, app, path, method string, body any, header http.Header) (*http.Response, error) {
	addr, err := c.Resolve(app)
	if err != nil {
		return nil, err
	}

	scheme := "http"
	if c.ssl {
		scheme = "https"
	}
	endpoint := fmt.Sprintf("%s://%s/%s", scheme, addr, strings.TrimPrefix(path, "/"))
	ctxlog.FromContext(ctx).Debug("calling peer app", "app", app, "url", endpoint)

	var payload []byte
	if body != nil {
		payload, err = json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("failed to encode request body: %w", err)
		}
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}
	for key, values := range header {
		for _, value := range values {
			req.Header.Add(key, value)
		}
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	return c.http.Do(req)
}

// CallJSON performs Call and decodes a 200 JSON response into out.
func (c *Client) CallJSON(ctx context.Context, app, path, method string, body, out any, header http.Header) error {
	resp, err := c.Call(ctx, app, path, method, body, header)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("app %s returned status %d", app, resp.StatusCode)
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode response from %s: %w", app, err)
	}
	return nil
}

// WireInstance converts the config instance into its wire representation.
// VIP addresses default to the app name, matching the server convention.
func WireInstance(cfg *schema.Instance) *rest.Instance {
	hostName := cfg.HostName
	if cfg.PreferIPAddress {
		hostName = cfg.IPAddr
	}

	instanceID := cfg.InstanceID
	if instanceID == "" && cfg.Port.Enabled {
		instanceID = fmt.Sprintf("%s:%s:%d", strings.ToLower(cfg.App), cfg.IPAddr, cfg.Port.Value)
	}

	inst := &rest.Instance{
		HostName:       hostName,
		InstanceID:     instanceID,
		App:            cfg.App,
		IPAddr:         cfg.IPAddr,
		VIPAddress:     cfg.App,
		SecureVIP:      cfg.App,
		Status:         rest.StatusStarting,
		Port:           rest.NewPort(cfg.Port.Value, cfg.Port.Enabled),
		HomePageURL:    cfg.HomePageURL,
		StatusPageURL:  cfg.StatusPageURL,
		HealthCheckURL: cfg.HealthCheckURL,
		DataCenterInfo: rest.DefaultDataCenter(),
	}
	if cfg.SecurePort != nil {
		inst.SecurePort = rest.NewPort(cfg.SecurePort.Value, cfg.SecurePort.Enabled)
	}
	if cfg.DataCenter == "Amazon" {
		inst.DataCenterInfo = rest.AmazonDataCenter(wireAWSMetadata(cfg.AWSMetadata))
	}
	if cfg.LeaseEviction != "" {
		if eviction, err := time.ParseDuration(cfg.LeaseEviction); err == nil {
			inst.LeaseInfo = &rest.LeaseInfo{EvictionDurationInSecs: int(eviction.Seconds())}
		}
	}
	if len(cfg.Metadata) > 0 {
		data := make(map[string]string, len(cfg.Metadata))
		for k, v := range cfg.Metadata {
			data[k] = v
		}
		inst.Metadata = &rest.Metadata{Data: data}
	}
	return inst
}

func wireAWSMetadata(cfg *schema.AWSMetadata) *rest.AmazonMetadata {
	if cfg == nil {
		return nil
	}
	return &rest.AmazonMetadata{
		AMILaunchIndex:   cfg.AMILaunchIndex,
		LocalHostname:    cfg.LocalHostname,
		AvailabilityZone: cfg.AvailabilityZone,
		InstanceID:       cfg.InstanceID,
		PublicIPv4:       cfg.PublicIPv4,
		PublicHostname:   cfg.PublicHostname,
		AMIManifestPath:  cfg.AMIManifestPath,
		LocalIPv4:        cfg.LocalIPv4,
		Hostname:         cfg.Hostname,
		AMIID:            cfg.AMIID,
		InstanceType:     cfg.InstanceType,
	}
}

// resolveEndpoints returns the server endpoint list, static or from DNS
// TXT discovery. The REST client fails over across it in order.
func resolveEndpoints(cfg *schema.Config) ([]string, error) {
	scheme := "http"
	if cfg.Server.SSL {
		scheme = "https"
	}
	path := strings.TrimSuffix(cfg.Server.ServicePath, "/")

	var resolver cluster.Resolver = &cluster.Static{
		URL: fmt.Sprintf("%s://%s:%d%s", scheme, cfg.Server.Host, cfg.Server.Port, path),
	}
	if cfg.Server.DNS != nil {
		resolver = &cluster.DNS{
			Domain:      cfg.Server.DNS.Domain,
			Port:        cfg.Server.DNS.Port,
			SSL:         cfg.Server.SSL,
			ServicePath: cfg.Server.ServicePath,
		}
	}

	return resolver.Endpoints(context.Background())
}
