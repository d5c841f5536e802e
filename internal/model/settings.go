package model

import "path"

// ClusterSettings holds the fixed identities, paths and ports a cluster
// is configured with
type ClusterSettings struct {
	ServiceUser string `json:"service_user" mapstructure:"service_user"`
	InstallDir  string `json:"install_dir" mapstructure:"install_dir"`
	Interface   string `json:"interface" mapstructure:"interface"`
	Replication int    `json:"replication" mapstructure:"replication"`
	Ports       Ports  `json:"ports" mapstructure:"ports"`
}

// Ports are the well-known service ports on the coordinator
type Ports struct {
	FileSystem      int `json:"file_system" mapstructure:"file_system"`
	JobTracker      int `json:"job_tracker" mapstructure:"job_tracker"`
	Scheduler       int `json:"scheduler" mapstructure:"scheduler"`
	ResourceTracker int `json:"resource_tracker" mapstructure:"resource_tracker"`
	ResourceManager int `json:"resource_manager" mapstructure:"resource_manager"`
	Admin           int `json:"admin" mapstructure:"admin"`
	WebApp          int `json:"webapp" mapstructure:"webapp"`
}

// DefaultClusterSettings returns the settings the node images ship with
func DefaultClusterSettings() ClusterSettings {
	return ClusterSettings{
		ServiceUser: "hduser",
		InstallDir:  "/usr/local/hadoop",
		Interface:   DefaultInterface,
		Replication: 2,
		Ports: Ports{
			FileSystem:      54310,
			JobTracker:      54311,
			Scheduler:       8030,
			ResourceTracker: 8031,
			ResourceManager: 8032,
			Admin:           8033,
			WebApp:          8088,
		},
	}
}

// HomeDir returns the service user's home directory
func (s ClusterSettings) HomeDir() string {
	return path.Join("/home", s.ServiceUser)
}

// ConfigPath resolves a path relative to the install directory
func (s ClusterSettings) ConfigPath(rel string) string {
	return path.Join(s.InstallDir, rel)
}

// NodeAddress returns the address other nodes use to reach n
func (s ClusterSettings) NodeAddress(n Node) string {
	if s.Interface != "" {
		if addr := n.IntfIP(s.Interface); addr != "" {
			return addr
		}
	}
	return n.Address()
}
