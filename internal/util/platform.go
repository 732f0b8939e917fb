package util

import (
	"fmt"
	"os"
	"runtime"

	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/disk"
	"github.com/shirou/gopsutil/v3/host"
	"github.com/shirou/gopsutil/v3/mem"
	"github.com/shirou/gopsutil/v3/process"
)

// SystemInfo holds information about the host system.
type SystemInfo struct {
	Hostname     string `json:"hostname"`
	OS           string `json:"os"`
	Architecture string `json:"architecture"`
	CPUModel     string `json:"cpu_model"`
	CPUCores     int    `json:"cpu_cores"`
	TotalMemory  uint64 `json:"total_memory_mb"`
	GoVersion    string `json:"go_version"`
}

// GetSystemInfo gathers static host information.
func GetSystemInfo() SystemInfo {
	info := SystemInfo{
		Architecture: runtime.GOARCH,
		CPUCores:     runtime.NumCPU(),
		GoVersion:    runtime.Version(),
	}

	if hostname, err := os.Hostname(); err == nil {
		info.Hostname = hostname
	}
	if hostInfo, err := host.Info(); err == nil {
		info.OS = fmt.Sprintf("%s %s", hostInfo.Platform, hostInfo.PlatformVersion)
	}
	if cpuInfo, err := cpu.Info(); err == nil && len(cpuInfo) > 0 {
		info.CPUModel = cpuInfo[0].ModelName
	}
	if memInfo, err := mem.VirtualMemory(); err == nil {
		info.TotalMemory = memInfo.Total / (1024 * 1024)
	}

	return info
}

// ResourceUsage is a point-in-time view of this process and the disk
// holding its session logs.
type ResourceUsage struct {
	ProcessCPUPercent float64 `json:"process_cpu_percent"`
	ProcessRSSMB      uint64  `json:"process_rss_mb"`
	Goroutines        int     `json:"goroutines"`
	SystemMemPercent  float64 `json:"system_mem_percent"`
	DiskFreeGB        uint64  `json:"disk_free_gb"`
	DiskUsedPercent   float64 `json:"disk_used_percent"`
}

// GetResourceUsage samples resource usage. logDir selects the disk to
// report on. Probes that fail leave their fields zero.
func GetResourceUsage(logDir string) ResourceUsage {
	usage := ResourceUsage{Goroutines: runtime.NumGoroutine()}

	if proc, err := process.NewProcess(int32(os.Getpid())); err == nil {
		if pct, err := proc.CPUPercent(); err == nil {
			usage.ProcessCPUPercent = pct
		}
		if memInfo, err := proc.MemoryInfo(); err == nil {
			usage.ProcessRSSMB = memInfo.RSS / (1024 * 1024)
		}
	}
	if memInfo, err := mem.VirtualMemory(); err == nil {
		usage.SystemMemPercent = memInfo.UsedPercent
	}
	if logDir == "" {
		logDir = "."
	}
	if du, err := disk.Usage(logDir); err == nil {
		usage.DiskFreeGB = du.Free / (1024 * 1024 * 1024)
		usage.DiskUsedPercent = du.UsedPercent
	}

	return usage
}
