// Package health reports host resource usage for operator diagnostics. No
// control-protocol command exposes it, and nothing in the daemon calls
// Collect. Grounded on NebulaLink's
// internal/service.Service.GetHostMetrics, trimmed to the fields relevant
// to a transfer daemon (no filesystem streaming, no remote-agent fields).
package health

import (
	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/disk"
	"github.com/shirou/gopsutil/v3/host"
	"github.com/shirou/gopsutil/v3/mem"
)

// Snapshot is a point-in-time view of host resource usage and the
// registry's own transfer count, used for operator-facing diagnostics.
type Snapshot struct {
	CPUPercent    float64
	MemoryPercent float64
	DiskPercent   float64
	Hostname      string
	OS            string
	UptimeSeconds uint64
	OpenTransfers int
}

// Collect gathers a Snapshot of the current host, with openTransfers
// supplied by the caller (typically registry.Registry.Len()).
func Collect(openTransfers int) (Snapshot, error) {
	cpuPercent, err := cpu.Percent(0, false)
	if err != nil {
		return Snapshot{}, err
	}
	memStat, err := mem.VirtualMemory()
	if err != nil {
		return Snapshot{}, err
	}
	diskStat, err := disk.Usage("/")
	if err != nil {
		return Snapshot{}, err
	}
	hostInfo, err := host.Info()
	if err != nil {
		return Snapshot{}, err
	}

	var cpuPct float64
	if len(cpuPercent) > 0 {
		cpuPct = cpuPercent[0]
	}

	return Snapshot{
		CPUPercent:    cpuPct,
		MemoryPercent: memStat.UsedPercent,
		DiskPercent:   diskStat.UsedPercent,
		Hostname:      hostInfo.Hostname,
		OS:            hostInfo.OS,
		UptimeSeconds: hostInfo.Uptime,
		OpenTransfers: openTransfers,
	}, nil
}
