package schema

type Config struct {
	Server   Server   `yaml:"server"`
	Instance Instance `yaml:"instance"`
}

type Server struct {
	Host                  string `yaml:"host"`
	Port                  int    `yaml:"port"`
	SSL                   bool   `yaml:"ssl,omitempty"`
	ServicePath           string `yaml:"service_path,omitempty"`
	HeartbeatInterval     string `yaml:"heartbeat_interval,omitempty"`
	RegistryFetchInterval string `yaml:"registry_fetch_interval,omitempty"`
	MaxRetries            int    `yaml:"max_retries,omitempty"`
	RetryDelay            string `yaml:"retry_delay,omitempty"`
	FetchRegistry         *bool  `yaml:"fetch_registry,omitempty"`
	FilterUpInstances     *bool  `yaml:"filter_up_instances,omitempty"`
	Register              *bool  `yaml:"register,omitempty"`
	DNS                   *DNS   `yaml:"dns,omitempty"`
}

// DNS enables discovering the Eureka server list from TXT records
// instead of the static host/port pair.
type DNS struct {
	Domain string `yaml:"domain"`
	Port   int    `yaml:"port,omitempty"`
}

type Instance struct {
	App             string            `yaml:"app"`
	InstanceID      string            `yaml:"instance_id,omitempty"`
	HostName        string            `yaml:"host_name,omitempty"`
	IPAddr          string            `yaml:"ip_addr,omitempty"`
	PreferIPAddress bool              `yaml:"prefer_ip_address,omitempty"`
	Port            Port              `yaml:"port"`
	SecurePort      *Port             `yaml:"secure_port,omitempty"`
	HomePageURL     string            `yaml:"home_page_url,omitempty"`
	StatusPageURL   string            `yaml:"status_page_url,omitempty"`
	HealthCheckURL  string            `yaml:"health_check_url,omitempty"`
	LeaseEviction   string            `yaml:"lease_eviction,omitempty"`
	DataCenter      string            `yaml:"data_center,omitempty"`
	AWSMetadata     *AWSMetadata      `yaml:"aws_metadata,omitempty"`
	Metadata        map[string]string `yaml:"metadata,omitempty"`
}

// AWSMetadata describes the EC2 instance. Required when data_center is
// Amazon.
type AWSMetadata struct {
	AMILaunchIndex   string `yaml:"ami_launch_index,omitempty"`
	LocalHostname    string `yaml:"local_hostname,omitempty"`
	AvailabilityZone string `yaml:"availability_zone,omitempty"`
	InstanceID       string `yaml:"instance_id,omitempty"`
	PublicIPv4       string `yaml:"public_ipv4,omitempty"`
	PublicHostname   string `yaml:"public_hostname,omitempty"`
	AMIManifestPath  string `yaml:"ami_manifest_path,omitempty"`
	LocalIPv4        string `yaml:"local_ipv4,omitempty"`
	Hostname         string `yaml:"hostname,omitempty"`
	AMIID            string `yaml:"ami_id,omitempty"`
	InstanceType     string `yaml:"instance_type,omitempty"`
}

type Port struct {
	Value   int  `yaml:"value"`
	Enabled bool `yaml:"enabled"`
}
