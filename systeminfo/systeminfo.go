package systeminfo

import (
	"context"
	"fmt"
	"net"
	"os"
	"runtime"
	"strings"
	"time"

	"edrwatch/logger"
	"edrwatch/version"

	"github.com/shirou/gopsutil/v4/host"
	"github.com/shirou/gopsutil/v4/process"
)

// HostInfo identifies the machine an alert stream was produced on.
type HostInfo struct {
	Hostname          string          `json:"hostname"`
	HostID            string          `json:"host_id,omitempty"`
	OS                string          `json:"os"`
	Platform          string          `json:"platform,omitempty"`
	PlatformVersion   string          `json:"platform_version,omitempty"`
	KernelVersion     string          `json:"kernel_version,omitempty"`
	KernelArch        string          `json:"kernel_arch,omitempty"`
	BootTime          string          `json:"boot_time,omitempty"`
	ProcessCount      uint64          `json:"process_count"`
	NetworkInterfaces []InterfaceInfo `json:"network_interfaces,omitempty"`
	TrustedProcesses  []ProcessInfo   `json:"trusted_processes,omitempty"`
	AgentVersion      string          `json:"agent_version"`
	AgentPID          int             `json:"agent_pid"`
}

type InterfaceInfo struct {
	Name      string   `json:"name"`
	MAC       string   `json:"mac"`
	Addresses []string `json:"addresses"`
}

type ProcessInfo struct {
	PID  int32  `json:"pid"`
	Name string `json:"name"`
	Exe  string `json:"exe,omitempty"`
}

// GetHostInfo gathers host identity. Collection failures are logged and the
// fields left empty; the returned value is never nil.
func GetHostInfo(ctx context.Context, trusted []string) *HostInfo {
	info := &HostInfo{
		OS:           runtime.GOOS,
		AgentVersion: version.Version,
		AgentPID:     os.Getpid(),
	}

	if stat, err := host.InfoWithContext(ctx); err != nil {
		logger.Warnf("Failed to gather host information: %v", err)
	} else {
		info.Hostname = stat.Hostname
		info.HostID = stat.HostID
		info.Platform = stat.Platform
		info.PlatformVersion = stat.PlatformVersion
		info.KernelVersion = stat.KernelVersion
		info.KernelArch = stat.KernelArch
		info.ProcessCount = stat.Procs
		if stat.BootTime > 0 {
			info.BootTime = time.Unix(int64(stat.BootTime), 0).UTC().Format(time.RFC3339)
		}
	}
	if info.Hostname == "" {
		info.Hostname, _ = os.Hostname()
	}

	if err := gatherNetworkInterfaces(info); err != nil {
		logger.Warnf("Failed to gather network interfaces: %v", err)
	}
	if len(trusted) > 0 {
		procs, err := RunningTrusted(ctx, trusted)
		if err != nil {
			logger.Warnf("Failed to gather running processes: %v", err)
		}
		info.TrustedProcesses = procs
	}
	return info
}

// RunningTrusted lists running processes whose executable name matches one
// of names, compared case-insensitively.
func RunningTrusted(ctx context.Context, names []string) ([]ProcessInfo, error) {
	wanted := make(map[string]struct{}, len(names))
	for _, n := range names {
		wanted[strings.ToLower(strings.TrimSpace(n))] = struct{}{}
	}
	processes, err := process.ProcessesWithContext(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get running processes: %w", err)
	}
	var out []ProcessInfo
	for _, p := range processes {
		name, err := p.NameWithContext(ctx)
		if err != nil {
			continue
		}
		if _, ok := wanted[strings.ToLower(name)]; !ok {
			continue
		}
		procInfo := ProcessInfo{PID: p.Pid, Name: name}
		if exe, err := p.ExeWithContext(ctx); err == nil {
			procInfo.Exe = exe
		}
		out = append(out, procInfo)
	}
	return out, nil
}

func gatherNetworkInterfaces(info *HostInfo) error {
	ifaces, err := net.Interfaces()
	if err != nil {
		return fmt.Errorf("failed to get network interfaces: %w", err)
	}
	for _, iface := range ifaces {
		entry := InterfaceInfo{Name: iface.Name, MAC: iface.HardwareAddr.String()}
		addrs, err := iface.Addrs()
		if err == nil {
			for _, addr := range addrs {
				entry.Addresses = append(entry.Addresses, addr.String())
			}
		}
		info.NetworkInterfaces = append(info.NetworkInterfaces, entry)
	}
	return nil
}
