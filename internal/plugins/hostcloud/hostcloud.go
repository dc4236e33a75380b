// Package hostcloud is a cloud reader that inventories local host facts —
// listening ports and mounted filesystems — grounded on clouds/azvm.py's
// single-resource-per-record shape and the teacher's own use of
// shirou/gopsutil for host-level telemetry.
package hostcloud

import (
	"context"
	"fmt"
	"sort"

	"github.com/shirou/gopsutil/v4/disk"
	"github.com/shirou/gopsutil/v4/host"
	psnet "github.com/shirou/gopsutil/v4/net"

	"github.com/cloudwarden/cloudwarden/internal/plugin"
	"github.com/cloudwarden/cloudwarden/internal/pluginloader"
	"github.com/cloudwarden/cloudwarden/internal/record"
)

func init() {
	pluginloader.Register("plugins/hostcloud.HostCloud", New)
}

// HostCloud reads a single-record inventory of the local host's listening
// ports and mounted filesystems.
type HostCloud struct{}

// New constructs a HostCloud. It takes no params.
func New(params map[string]interface{}) (interface{}, error) {
	return &HostCloud{}, nil
}

// Read implements plugin.CloudReader.
func (h *HostCloud) Read(ctx context.Context) (plugin.RecordCursor, error) {
	info, err := host.InfoWithContext(ctx)
	if err != nil {
		return nil, fmt.Errorf("hostcloud: host info: %w", err)
	}

	conns, err := psnet.ConnectionsWithContext(ctx, "inet")
	if err != nil {
		return nil, fmt.Errorf("hostcloud: connections: %w", err)
	}
	listening := listeningPorts(conns)

	partitions, err := disk.PartitionsWithContext(ctx, false)
	if err != nil {
		return nil, fmt.Errorf("hostcloud: partitions: %w", err)
	}
	disks := make([]map[string]interface{}, 0, len(partitions))
	for _, p := range partitions {
		usage, err := disk.UsageWithContext(ctx, p.Mountpoint)
		if err != nil {
			continue
		}
		disks = append(disks, map[string]interface{}{
			"mountpoint":   p.Mountpoint,
			"fstype":       p.Fstype,
			"total_bytes":  usage.Total,
			"used_percent": usage.UsedPercent,
		})
	}

	rec := record.New()
	rec.Ext["record_type"] = "host_facts"
	rec.Ext["cloud_type"] = "host"
	rec.Ext["reference"] = info.Hostname
	rec.Ext["hostname"] = info.Hostname
	rec.Ext["os"] = info.OS
	rec.Ext["platform"] = info.Platform
	rec.Ext["uptime_seconds"] = info.Uptime
	rec.Ext["listening_ports"] = listening
	rec.Ext["disks"] = disks
	return plugin.NewSliceCursor([]record.Record{rec}), nil
}

// Done implements plugin.CloudReader.
func (h *HostCloud) Done() {}

// listeningPorts returns the sorted, de-duplicated set of local ports with
// a connection in the LISTEN state.
func listeningPorts(conns []psnet.ConnectionStat) []uint32 {
	seen := map[uint32]struct{}{}
	var out []uint32
	for _, c := range conns {
		if c.Status != "LISTEN" {
			continue
		}
		if _, ok := seen[c.Laddr.Port]; ok {
			continue
		}
		seen[c.Laddr.Port] = struct{}{}
		out = append(out, c.Laddr.Port)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
