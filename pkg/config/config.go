// Copyright 2023 LiveKit, Inc.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package config

import (
	"strconv"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/livekit/protocol/logger"
	"github.com/livekit/protocol/utils"

	"github.com/sipbell/bell/pkg/errors"
	"github.com/sipbell/bell/pkg/sip"
	"github.com/sipbell/bell/pkg/trigger"
)

const (
	DefaultSerialBaud   = 115200
	DefaultSentinel     = "RING"
	DefaultQuiescenceMs = 5000

	// SourceAuto resolves the source address from the local interfaces.
	SourceAuto = "auto"
)

type Config struct {
	Source   string `yaml:"source"`   // required, or "auto"
	Server   string `yaml:"server"`   // required
	Port     int    `yaml:"port"`     // default 5060
	Target   string `yaml:"target"`   // required
	Username string `yaml:"username"` // required
	Password string `yaml:"password"` // required

	RingDurationMs int           `yaml:"ring_duration_ms"` // 0 or unset means 2000
	Transport      sip.Transport `yaml:"transport"`        // tcp or tls
	UserAgent      string        `yaml:"user_agent"`
	ReadTimeout    time.Duration `yaml:"read_timeout"`
	LocalNet       string        `yaml:"local_net"` // limits source auto-detection to this prefix

	TLSInsecureSkipVerify bool   `yaml:"tls_insecure_skip_verify"`
	TLSMinVersion         string `yaml:"tls_min_version"` // e.g. "1.2"

	Serial         string `yaml:"serial"` // optional trigger device
	SerialBaud     int    `yaml:"serial_baud"`
	Sentinel       string `yaml:"sentinel"`
	QuiescenceMs   int    `yaml:"quiescence_ms"`
	AbortOnFailure bool   `yaml:"abort_on_failure"`

	PrometheusPort int `yaml:"prometheus_port"` // 0 disables the metrics endpoint

	Logging logger.Config `yaml:"logging"`

	// internal
	ServiceName string `yaml:"-"`
	NodeID      string `yaml:"-"`
}

// NewConfig parses a YAML body. An empty body yields the defaults, to be completed by flags.
func NewConfig(confString string) (*Config, error) {
	conf := &Config{
		ServiceName: "bell",
	}
	if confString != "" {
		if err := yaml.Unmarshal([]byte(confString), conf); err != nil {
			return nil, errors.ErrCouldNotParseConfig(err)
		}
	}
	conf.setDefaults()
	return conf, nil
}

func (c *Config) setDefaults() {
	if c.Port == 0 {
		c.Port = sip.DefaultPort
	}
	if c.RingDurationMs == 0 {
		c.RingDurationMs = int(sip.DefaultRingDuration / time.Millisecond)
	}
	if c.Transport == "" {
		c.Transport = sip.TransportTCP
	}
	if c.SerialBaud == 0 {
		c.SerialBaud = DefaultSerialBaud
	}
	if c.Sentinel == "" {
		c.Sentinel = DefaultSentinel
	}
	if c.QuiescenceMs == 0 {
		c.QuiescenceMs = DefaultQuiescenceMs
	}
}

// Validate checks the fields required to place a call. It runs before any call attempt.
func (c *Config) Validate() error {
	for _, f := range []struct {
		name, val string
	}{
		{"source", c.Source},
		{"server", c.Server},
		{"target", c.Target},
		{"username", c.Username},
		{"password", c.Password},
	} {
		if f.val == "" {
			return errors.ErrMissingField(f.name)
		}
	}
	if c.Port < 0 || c.Port > 65535 {
		return errors.ErrInvalidField("port", strconv.Itoa(c.Port)+" is out of range")
	}
	if c.RingDurationMs <= 0 {
		return errors.ErrInvalidField("ring_duration_ms", "must be positive")
	}
	if c.QuiescenceMs < 0 {
		return errors.ErrInvalidField("quiescence_ms", "must not be negative")
	}
	switch c.Transport {
	case sip.TransportTCP, sip.TransportTLS:
	default:
		return errors.ErrInvalidField("transport", string(c.Transport))
	}
	if _, err := sip.ParseTLSVersion(c.TLSMinVersion); err != nil {
		return errors.ErrInvalidField("tls_min_version", err.Error())
	}
	if c.PrometheusPort < 0 || c.PrometheusPort > 65535 {
		return errors.ErrInvalidField("prometheus_port", strconv.Itoa(c.PrometheusPort)+" is out of range")
	}
	return nil
}

func (c *Config) Init() error {
	c.NodeID = utils.NewGuid("BN_")

	if err := c.InitLogger(); err != nil {
		return err
	}
	if c.Source == SourceAuto {
		ip, err := getLocalIP(c.LocalNet)
		if err != nil {
			return errors.ErrInvalidField("source", err.Error())
		}
		c.Source = ip.String()
		logger.Infow("resolved source address", "source", c.Source)
	}
	return c.Validate()
}

func (c *Config) InitLogger(values ...interface{}) error {
	zl, err := logger.NewZapLogger(&c.Logging)
	if err != nil {
		return err
	}

	values = append(c.GetLoggerValues(), values...)
	l := zl.WithValues(values...)
	logger.SetLogger(l, c.ServiceName)

	return nil
}

func (c *Config) GetLoggerValues() []interface{} {
	return []interface{}{"nodeID", c.NodeID}
}

// TriggerMode reports whether calls are gated by the serial trigger.
func (c *Config) TriggerMode() bool {
	return c.Serial != ""
}

func (c *Config) Quiescence() time.Duration {
	return time.Duration(c.QuiescenceMs) * time.Millisecond
}

func (c *Config) CallConfig() *sip.CallConfig {
	return &sip.CallConfig{
		Source:    c.Source,
		Server:    c.Server,
		Port:      c.Port,
		Target:    c.Target,
		Username:  c.Username,
		Password:  c.Password,
		Transport: c.Transport,
		UserAgent: c.UserAgent,
	}
}

func (c *Config) ClientConfig() sip.ClientConfig {
	cc := sip.ClientConfig{
		RingDuration: time.Duration(c.RingDurationMs) * time.Millisecond,
		Session: sip.SessionConfig{
			ReadTimeout: c.ReadTimeout,
		},
	}
	if c.Transport == sip.TransportTLS {
		minVersion, _ := sip.ParseTLSVersion(c.TLSMinVersion)
		cc.TLS = sip.NewTLSConfig(c.Server, minVersion, c.TLSInsecureSkipVerify)
	}
	return cc
}

func (c *Config) SerialConfig() trigger.SerialConfig {
	return trigger.SerialConfig{
		Device:   c.Serial,
		BaudRate: c.SerialBaud,
		Sentinel: c.Sentinel,
	}
}
