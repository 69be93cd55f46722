// Package derive turns raw Docker Engine stats payloads into normalized
// container metrics. Every function here is pure and total: missing or
// malformed input yields a neutral zero value instead of an error.
//
// The raw payload shape varies with the Engine API version and the cgroup
// version of the host, so every consumed field is optional. The fallback
// order for each derived value is documented on the function that reads it.
package derive

// RawContainerStats is the subset of the /containers/{id}/stats response
// consumed by this package. It is decoded straight from the response body.
type RawContainerStats struct {
	CPUStats    *CPUStats           `json:"cpu_stats,omitempty"`
	PreCPUStats *CPUStats           `json:"precpu_stats,omitempty"`
	MemoryStats *MemoryStats        `json:"memory_stats,omitempty"`
	BlkioStats  *BlkioStats         `json:"blkio_stats,omitempty"`
	Networks    map[string]NetStats `json:"networks,omitempty"`
	PidsStats   *PidsStats          `json:"pids_stats,omitempty"`
}

// CPUStats is one CPU sample. PreCPUStats carries the previous sample
// taken by the Engine, so a single non-streaming request yields a pair.
type CPUStats struct {
	CPUUsage    *CPUUsage `json:"cpu_usage,omitempty"`
	SystemUsage *uint64   `json:"system_cpu_usage,omitempty"`
	OnlineCPUs  *uint32   `json:"online_cpus,omitempty"`
}

// CPUUsage holds cumulative container CPU time in nanoseconds.
type CPUUsage struct {
	TotalUsage  *uint64  `json:"total_usage,omitempty"`
	PercpuUsage []uint64 `json:"percpu_usage,omitempty"`
}

// MemoryStats holds memory usage. Stats carries the cgroup breakdown:
// "cache" on cgroup v1, "inactive_file" on cgroup v2.
type MemoryStats struct {
	Usage *uint64           `json:"usage,omitempty"`
	Limit *uint64           `json:"limit,omitempty"`
	Stats map[string]uint64 `json:"stats,omitempty"`
}

// BlkioStats holds block I/O service bytes. Recursive is the per-device
// breakdown (cgroup v1); Flat is the aggregate some runtimes report instead.
type BlkioStats struct {
	Recursive []BlkioEntry `json:"io_service_bytes_recursive,omitempty"`
	Flat      []BlkioEntry `json:"io_service_bytes,omitempty"`
}

// BlkioEntry is one operation counter. Op casing differs across versions.
type BlkioEntry struct {
	Major uint64 `json:"major"`
	Minor uint64 `json:"minor"`
	Op    string `json:"op"`
	Value uint64 `json:"value"`
}

// NetStats holds cumulative counters for one container interface.
type NetStats struct {
	RxBytes uint64 `json:"rx_bytes"`
	TxBytes uint64 `json:"tx_bytes"`
}

// PidsStats holds the current process count of the container.
type PidsStats struct {
	Current *uint64 `json:"current,omitempty"`
}
