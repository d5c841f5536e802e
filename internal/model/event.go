package model

import "time"

// ClusterState is the coarse lifecycle position of a cluster.
// It is tracked for reporting and never enforced.
type ClusterState string

const (
	ClusterStateUnconfigured         ClusterState = "unconfigured"
	ClusterStateKeysExchanged        ClusterState = "keys_exchanged"
	ClusterStateCoreConfigured       ClusterState = "core_configured"
	ClusterStateResourceConfigured   ClusterState = "resource_configured"
	ClusterStateStorageConfigured    ClusterState = "storage_configured"
	ClusterStateComputeConfigured    ClusterState = "compute_configured"
	ClusterStateMembershipConfigured ClusterState = "membership_configured"
	ClusterStateReady                             = ClusterStateMembershipConfigured
	ClusterStateFormatted            ClusterState = "formatted"
)

// ClusterStatus combines the configuration state with the independently
// toggled service states
type ClusterStatus struct {
	State          ClusterState `json:"state"`
	StorageRunning bool         `json:"storage_running"`
	ComputeRunning bool         `json:"compute_running"`
}

// Phase names a single orchestrator operation
type Phase string

const (
	PhaseSetupKeys  Phase = "setup_keys"
	PhaseCoreSite   Phase = "core_site"
	PhaseMapredSite Phase = "mapred_site"
	PhaseHDFSSite   Phase = "hdfs_site"
	PhaseYarnSite   Phase = "yarn_site"
	PhaseSlaves     Phase = "slaves"
	PhaseStartDFS   Phase = "start_dfs"
	PhaseStopDFS    Phase = "stop_dfs"
	PhaseStartYarn  Phase = "start_yarn"
	PhaseStopYarn   Phase = "stop_yarn"
	PhaseFormatHDFS Phase = "format_hdfs"
	PhaseExecute    Phase = "execute"
	PhaseProbe      Phase = "probe"
)

// Event reports the completion of a phase
type Event struct {
	ID         string        `json:"id"`
	Phase      Phase         `json:"phase"`
	Status     ClusterStatus `json:"status"`
	Nodes      []string      `json:"nodes"`
	Error      string        `json:"error,omitempty"`
	StartedAt  time.Time     `json:"started_at"`
	FinishedAt time.Time     `json:"finished_at"`
}

// Failed reports whether the phase returned an error
func (e Event) Failed() bool {
	return e.Error != ""
}
