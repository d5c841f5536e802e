package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/t77yq/cloudbench/internal/executor"
	"github.com/t77yq/cloudbench/internal/model"
)

const envPrefix = "CLOUDBENCH"

// Config is the full controller configuration
type Config struct {
	Debug     bool                     `mapstructure:"debug"`
	Cluster   model.ClusterSettings    `mapstructure:"cluster"`
	Transport executor.TransportConfig `mapstructure:"transport"`
	Topology  TopologyConfig           `mapstructure:"topology"`
	History   HistoryConfig            `mapstructure:"history"`
	NATS      NATSConfig               `mapstructure:"nats"`
	Probe     ProbeConfig              `mapstructure:"probe"`
}

// TopologyConfig lists the cluster machines
type TopologyConfig struct {
	Coordinator model.Node   `mapstructure:"coordinator"`
	Workers     []model.Node `mapstructure:"workers"`
}

// HistoryConfig locates the execution history database
type HistoryConfig struct {
	Path      string        `mapstructure:"path"`
	Retention time.Duration `mapstructure:"retention"`
}

// NATSConfig configures event publishing. An empty URL disables it.
type NATSConfig struct {
	URL            string        `mapstructure:"url"`
	Name           string        `mapstructure:"name"`
	MaxReconnects  int           `mapstructure:"max_reconnects"`
	ReconnectWait  time.Duration `mapstructure:"reconnect_wait"`
	ConnectTimeout time.Duration `mapstructure:"connect_timeout"`
}

// ProbeConfig schedules reachability probes
type ProbeConfig struct {
	Schedule string `mapstructure:"schedule"`
}

// BuildTopology returns the configured topology
func (c *Config) BuildTopology() model.Topology {
	return model.NewTopology(c.Topology.Coordinator, c.Topology.Workers)
}

func setDefaults(v *viper.Viper) {
	defaults := model.DefaultClusterSettings()

	v.SetDefault("debug", false)

	v.SetDefault("cluster.service_user", defaults.ServiceUser)
	v.SetDefault("cluster.install_dir", defaults.InstallDir)
	v.SetDefault("cluster.interface", defaults.Interface)
	v.SetDefault("cluster.replication", defaults.Replication)
	v.SetDefault("cluster.ports.file_system", defaults.Ports.FileSystem)
	v.SetDefault("cluster.ports.job_tracker", defaults.Ports.JobTracker)
	v.SetDefault("cluster.ports.scheduler", defaults.Ports.Scheduler)
	v.SetDefault("cluster.ports.resource_tracker", defaults.Ports.ResourceTracker)
	v.SetDefault("cluster.ports.resource_manager", defaults.Ports.ResourceManager)
	v.SetDefault("cluster.ports.admin", defaults.Ports.Admin)
	v.SetDefault("cluster.ports.webapp", defaults.Ports.WebApp)

	v.SetDefault("transport.kind", string(executor.TransportSSH))
	v.SetDefault("transport.ssh.user", "ubuntu")
	v.SetDefault("transport.ssh.port", 22)
	v.SetDefault("transport.ssh.key_path", "~/.ssh/id_rsa")
	v.SetDefault("transport.ssh.config_path", "~/.ssh/config")
	v.SetDefault("transport.ssh.known_hosts_path", "~/.ssh/known_hosts")
	v.SetDefault("transport.ssh.insecure", false)
	v.SetDefault("transport.ssh.dial_timeout", 10*time.Second)

	v.SetDefault("history.path", "execution_history.db")
	v.SetDefault("history.retention", 30*24*time.Hour)

	v.SetDefault("nats.url", "")
	v.SetDefault("nats.name", "clusterctl")
	v.SetDefault("nats.max_reconnects", 10)
	v.SetDefault("nats.reconnect_wait", 2*time.Second)
	v.SetDefault("nats.connect_timeout", 5*time.Second)

	v.SetDefault("probe.schedule", "0 */5 * * * *")
}

// Load reads configuration from file (when given) or from config.yaml in
// ./config or the working directory, with CLOUDBENCH_* environment
// overrides. A missing config.yaml is not an error when searching.
func Load(file string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if file != "" {
		v.SetConfigFile(file)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath("./config")
		v.AddConfigPath(".")
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if file != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}
	return &cfg, nil
}
