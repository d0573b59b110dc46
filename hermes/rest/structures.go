package rest

import (
	"encoding/json"
	"encoding/xml"
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// Status is the Eureka instance status.
type Status string

const (
	StatusUp           Status = "UP"
	StatusDown         Status = "DOWN"
	StatusStarting     Status = "STARTING"
	StatusOutOfService Status = "OUT_OF_SERVICE"
	StatusUnknown      Status = "UNKNOWN"
)

// ParseStatus converts the wire representation into a Status.
func ParseStatus(s string) (Status, error) {
	switch Status(s) {
	case StatusUp, StatusDown, StatusStarting, StatusOutOfService, StatusUnknown:
		return Status(s), nil
	}
	return StatusUnknown, fmt.Errorf("invalid status %q", s)
}

// Instance mirrors the Eureka instance document in both its JSON and XML
// shapes. Field names follow the server's camelCase convention.
type Instance struct {
	XMLName        xml.Name        `json:"-" xml:"instance"`
	HostName       string          `json:"hostName" xml:"hostName"`
	InstanceID     string          `json:"instanceId,omitempty" xml:"instanceId,omitempty"`
	App            string          `json:"app" xml:"app"`
	IPAddr         string          `json:"ipAddr" xml:"ipAddr"`
	VIPAddress     string          `json:"vipAddress" xml:"vipAddress"`
	SecureVIP      string          `json:"secureVipAddress" xml:"secureVipAddress"`
	Status         Status          `json:"status" xml:"status"`
	Port           *Port           `json:"port,omitempty" xml:"port,omitempty"`
	SecurePort     *Port           `json:"securePort,omitempty" xml:"securePort,omitempty"`
	HomePageURL    string          `json:"homePageUrl" xml:"homePageUrl"`
	StatusPageURL  string          `json:"statusPageUrl" xml:"statusPageUrl"`
	HealthCheckURL string          `json:"healthCheckUrl" xml:"healthCheckUrl"`
	DataCenterInfo DataCenterInfo  `json:"dataCenterInfo" xml:"dataCenterInfo"`
	LeaseInfo      *LeaseInfo      `json:"leaseInfo,omitempty" xml:"leaseInfo,omitempty"`
	Metadata       *Metadata       `json:"metadata,omitempty" xml:"metadata,omitempty"`
}

// ID returns the identifier Eureka addresses the instance by: the explicit
// instance id when present, else the host name.
func (i *Instance) ID() string {
	if i.InstanceID != "" {
		return i.InstanceID
	}
	return i.HostName
}

// Applications is the registry document returned by GET /apps.
type Applications struct {
	XMLName       xml.Name      `json:"-" xml:"applications"`
	VersionsDelta string        `json:"versions__delta,omitempty" xml:"versions__delta,omitempty"`
	AppsHashcode  string        `json:"apps__hashcode,omitempty" xml:"apps__hashcode,omitempty"`
	Applications  []Application `json:"application" xml:"application"`
}

// Instances flattens the registry into a single instance list.
func (a *Applications) Instances() []Instance {
	var out []Instance
	for _, app := range a.Applications {
		out = append(out, app.Instances...)
	}
	return out
}

type Application struct {
	XMLName   xml.Name   `json:"-" xml:"application"`
	Name      string     `json:"name" xml:"name"`
	Instances []Instance `json:"instance" xml:"instance"`
}

// registryDocument wraps Applications for the JSON registry payload.
type registryDocument struct {
	Applications Applications `json:"applications"`
}

// Port carries a port value and its enabled flag. Eureka encodes it as
// {"$": 8080, "@enabled": "true"} in JSON and <port enabled="true">8080</port>
// in XML.
type Port struct {
	Value   int
	Enabled bool
}

func NewPort(value int, enabled bool) *Port {
	return &Port{Value: value, Enabled: enabled}
}

type portJSON struct {
	Value   int    `json:"$"`
	Enabled string `json:"@enabled"`
}

func (p Port) MarshalJSON() ([]byte, error) {
	return json.Marshal(portJSON{Value: p.Value, Enabled: strconv.FormatBool(p.Enabled)})
}

func (p *Port) UnmarshalJSON(data []byte) error {
	var raw portJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	p.Value = raw.Value
	p.Enabled = raw.Enabled == "true"
	return nil
}

func (p Port) MarshalXML(e *xml.Encoder, start xml.StartElement) error {
	start.Attr = append(start.Attr, xml.Attr{
		Name:  xml.Name{Local: "enabled"},
		Value: strconv.FormatBool(p.Enabled),
	})
	return e.EncodeElement(strconv.Itoa(p.Value), start)
}

func (p *Port) UnmarshalXML(d *xml.Decoder, start xml.StartElement) error {
	for _, attr := range start.Attr {
		if attr.Name.Local == "enabled" {
			p.Enabled = attr.Value == "true"
		}
	}
	var raw string
	if err := d.DecodeElement(&raw, &start); err != nil {
		return err
	}
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil
	}
	value, err := strconv.Atoi(raw)
	if err != nil {
		return fmt.Errorf("invalid port value %q: %w", raw, err)
	}
	p.Value = value
	return nil
}

// DataCenterInfo names the data center an instance runs in. The class
// attribute is the Netflix Java type the server expects back verbatim.
type DataCenterInfo struct {
	Class    string          `json:"@class,omitempty" xml:"class,attr,omitempty"`
	Name     string          `json:"name" xml:"name"`
	Metadata *AmazonMetadata `json:"metadata,omitempty" xml:"metadata,omitempty"`
}

const (
	defaultDataCenterClass = "com.netflix.appinfo.InstanceInfo$DefaultDataCenterInfo"
	amazonDataCenterClass  = "com.netflix.appinfo.AmazonInfo"
)

// DefaultDataCenter is the MyOwn data center used outside AWS.
func DefaultDataCenter() DataCenterInfo {
	return DataCenterInfo{
		Class: defaultDataCenterClass,
		Name:  "MyOwn",
	}
}

// AmazonDataCenter builds the Amazon data center block. The server rejects
// it without the EC2 metadata.
func AmazonDataCenter(meta *AmazonMetadata) DataCenterInfo {
	return DataCenterInfo{
		Class:    amazonDataCenterClass,
		Name:     "Amazon",
		Metadata: meta,
	}
}

// AmazonMetadata is required when the data center name is Amazon.
type AmazonMetadata struct {
	AMILaunchIndex   string `json:"ami-launch-index" xml:"ami-launch-index"`
	LocalHostname    string `json:"local-hostname" xml:"local-hostname"`
	AvailabilityZone string `json:"availability-zone" xml:"availability-zone"`
	InstanceID       string `json:"instance-id" xml:"instance-id"`
	PublicIPv4       string `json:"public-ipv4" xml:"public-ipv4"`
	PublicHostname   string `json:"public-hostname" xml:"public-hostname"`
	AMIManifestPath  string `json:"ami-manifest-path" xml:"ami-manifest-path"`
	LocalIPv4        string `json:"local-ipv4" xml:"local-ipv4"`
	Hostname         string `json:"hostname" xml:"hostname"`
	AMIID            string `json:"ami-id" xml:"ami-id"`
	InstanceType     string `json:"instance-type" xml:"instance-type"`
}

// LeaseInfo reports lease renewal bookkeeping. Only the eviction duration
// is meaningful on registration; the rest is server-populated.
type LeaseInfo struct {
	RenewalIntervalInSecs  int   `json:"renewalIntervalInSecs,omitempty" xml:"renewalIntervalInSecs,omitempty"`
	DurationInSecs         int   `json:"durationInSecs,omitempty" xml:"durationInSecs,omitempty"`
	RegistrationTimestamp  int64 `json:"registrationTimestamp,omitempty" xml:"registrationTimestamp,omitempty"`
	LastRenewalTimestamp   int64 `json:"lastRenewalTimestamp,omitempty" xml:"lastRenewalTimestamp,omitempty"`
	EvictionTimestamp      int64 `json:"evictionTimestamp,omitempty" xml:"evictionTimestamp,omitempty"`
	ServiceUpTimestamp     int64 `json:"serviceUpTimestamp,omitempty" xml:"serviceUpTimestamp,omitempty"`
	EvictionDurationInSecs int   `json:"evictionDurationInSecs,omitempty" xml:"evictionDurationInSecs,omitempty"`
}

// Metadata is the free-form instance metadata element. In XML it carries an
// optional class attribute and arbitrary key/value children, which rules out
// struct tags.
type Metadata struct {
	Class string
	Data  map[string]string
}

func (m Metadata) MarshalJSON() ([]byte, error) {
	out := make(map[string]string, len(m.Data)+1)
	for k, v := range m.Data {
		out[k] = v
	}
	if m.Class != "" {
		out["@class"] = m.Class
	}
	return json.Marshal(out)
}

func (m *Metadata) UnmarshalJSON(data []byte) error {
	var raw map[string]string
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	m.Class = raw["@class"]
	delete(raw, "@class")
	m.Data = raw
	return nil
}

func (m Metadata) MarshalXML(e *xml.Encoder, start xml.StartElement) error {
	if m.Class != "" {
		start.Attr = append(start.Attr, xml.Attr{
			Name:  xml.Name{Local: "class"},
			Value: m.Class,
		})
	}
	if err := e.EncodeToken(start); err != nil {
		return err
	}
	keys := make([]string, 0, len(m.Data))
	for k := range m.Data {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		if err := e.EncodeElement(m.Data[k], xml.StartElement{Name: xml.Name{Local: k}}); err != nil {
			return err
		}
	}
	return e.EncodeToken(start.End())
}

func (m *Metadata) UnmarshalXML(d *xml.Decoder, start xml.StartElement) error {
	for _, attr := range start.Attr {
		if attr.Name.Local == "class" {
			m.Class = attr.Value
		}
	}
	for {
		tok, err := d.Token()
		if err != nil {
			return err
		}
		switch t := tok.(type) {
		case xml.StartElement:
			var value string
			if err := d.DecodeElement(&value, &t); err != nil {
				return err
			}
			if m.Data == nil {
				m.Data = make(map[string]string)
			}
			m.Data[t.Name.Local] = value
		case xml.EndElement:
			return nil
		}
	}
}
