// Package models defines the metric data structures shared by the collectors,
// the history store and the broadcast layer. These structures are serialized
// to JSON for delivery to dashboard clients and for durable history.
package models

// Container states as reported by the Docker Engine.
const (
	StateRunning    = "running"
	StateExited     = "exited"
	StateCreated    = "created"
	StatePaused     = "paused"
	StateRestarting = "restarting"
	StateRemoving   = "removing"
	StateDead       = "dead"
)

// ContainerSnapshot is the derived view of one container at one tick.
// Stats is nil when the container is not running or its stats fetch failed.
type ContainerSnapshot struct {
	ID     string          `json:"id"`
	Name   string          `json:"name"`
	Image  string          `json:"image"`
	State  string          `json:"state"`
	Status string          `json:"status"`
	Stats  *ContainerStats `json:"stats"`
}

// ContainerStats holds normalized resource usage for a running container.
type ContainerStats struct {
	CPUPercent       float64                `json:"cpuPercent"`
	MemoryUsageBytes uint64                 `json:"memoryUsageBytes"`
	MemoryLimitBytes uint64                 `json:"memoryLimitBytes"`
	MemoryPercent    float64                `json:"memoryPercent"`
	NetIO            map[string]InterfaceIO `json:"netIO"`
	BlockIO          BlockIO                `json:"blockIO"`
	PIDCount         uint64                 `json:"pidCount"`
}

// InterfaceIO holds cumulative byte counters for one network interface.
type InterfaceIO struct {
	RxBytes uint64 `json:"rxBytes"`
	TxBytes uint64 `json:"txBytes"`
}

// BlockIO holds cumulative bytes read from and written to block devices.
type BlockIO struct {
	ReadBytes  uint64 `json:"readBytes"`
	WriteBytes uint64 `json:"writeBytes"`
}

// HostMetrics is one point-in-time record of host resource usage.
// Records are immutable once created and identified by Timestamp (epoch ms).
type HostMetrics struct {
	Timestamp int64       `json:"timestamp"`
	CPU       HostCPU     `json:"cpu"`
	Memory    HostMemory  `json:"memory"`
	Network   NetworkRate `json:"network"`
	OS        HostOS      `json:"os"`
}

// HostCPU describes CPU identity and load.
type HostCPU struct {
	Manufacturer string   `json:"manufacturer"`
	Brand        string   `json:"brand"`
	CoreCount    int      `json:"coreCount"`
	UsagePercent float64  `json:"usagePercent"`
	TemperatureC *float64 `json:"temperatureC"`
}

// HostMemory describes memory totals. UsedBytes is the active memory.
type HostMemory struct {
	TotalBytes     uint64  `json:"totalBytes"`
	FreeBytes      uint64  `json:"freeBytes"`
	UsedBytes      uint64  `json:"usedBytes"`
	AvailableBytes uint64  `json:"availableBytes"`
	Percent        float64 `json:"percent"`
}

// NetworkRate is throughput summed across all interfaces.
type NetworkRate struct {
	RxBytesPerSec float64 `json:"rxBytesPerSec"`
	TxBytesPerSec float64 `json:"txBytesPerSec"`
}

// HostOS describes operating system identity and uptime.
type HostOS struct {
	Platform      string `json:"platform"`
	Distro        string `json:"distro"`
	Release       string `json:"release"`
	UptimeSeconds uint64 `json:"uptimeSeconds"`
}

// Event names delivered to subscribers.
const (
	EventContainers  = "containers"
	EventSystemStats = "systemStats"
	EventInitHistory = "initHistory"
)
