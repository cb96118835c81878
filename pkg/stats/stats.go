package stats

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/shirou/gopsutil/v4/cpu"
	"github.com/shirou/gopsutil/v4/disk"
	"github.com/shirou/gopsutil/v4/host"
	"github.com/shirou/gopsutil/v4/mem"

	"github.com/thehanda/countcam-app/pkg/models"
)

// RecordTotals summarises the visitor history.
type RecordTotals struct {
	Records       int        `json:"records"`
	Entering      int        `json:"entering"`
	Exiting       int        `json:"exiting"`
	Both          int        `json:"both"`
	Mismatches    int        `json:"mismatches"`
	LastProcessed *time.Time `json:"lastProcessed"`
}

// Totals sums visitor counts per counted direction.
func Totals(records []models.VisitorLogRecord) RecordTotals {
	var t RecordTotals
	for i := range records {
		r := &records[i]
		t.Records++
		switch r.CountedDirection {
		case models.DirectionEntering:
			t.Entering += r.VisitorCount
		case models.DirectionExiting:
			t.Exiting += r.VisitorCount
		case models.DirectionBoth:
			t.Both += r.VisitorCount
		}
		if r.DirectionMismatch {
			t.Mismatches++
		}
		if t.LastProcessed == nil || r.ProcessingTimestamp.After(*t.LastProcessed) {
			ts := r.ProcessingTimestamp
			t.LastProcessed = &ts
		}
	}
	return t
}

// SystemInfo is a point-in-time view of the host.
type SystemInfo struct {
	OSType      string `json:"os_type"`
	Hostname    string `json:"hostname"`
	Uptime      string `json:"uptime"`
	CPUUsage    string `json:"cpu_usage"`
	MemoryUsage string `json:"memory_usage"`
	DiskUsage   string `json:"disk_usage"`
	DataSize    string `json:"data_size"`
}

// GetSystemInfo collects host stats. Values that cannot be read are "N/A".
func GetSystemInfo(ctx context.Context, dataDir string) SystemInfo {
	info := SystemInfo{
		OSType:      "N/A",
		Hostname:    "N/A",
		Uptime:      "N/A",
		CPUUsage:    "N/A",
		MemoryUsage: "N/A",
		DiskUsage:   "N/A",
		DataSize:    "N/A",
	}

	if h, err := host.InfoWithContext(ctx); err == nil {
		info.OSType = h.Platform
		if h.PlatformVersion != "" {
			info.OSType += " " + h.PlatformVersion
		}
		if info.OSType == "" {
			info.OSType = h.OS
		}
		info.Hostname = h.Hostname
		info.Uptime = (time.Duration(h.Uptime) * time.Second).String()
	}
	if pct, err := cpu.PercentWithContext(ctx, 0, false); err == nil && len(pct) > 0 {
		info.CPUUsage = fmt.Sprintf("%.1f%%", pct[0])
	}
	if vm, err := mem.VirtualMemoryWithContext(ctx); err == nil {
		info.MemoryUsage = fmt.Sprintf("%.1f%%", vm.UsedPercent)
	}
	if dataDir != "" {
		if du, err := disk.UsageWithContext(ctx, dataDir); err == nil {
			info.DiskUsage = fmt.Sprintf("%.1f%% of %s", du.UsedPercent, FormatBytes(int64(du.Total)))
		}
		if size, err := DirSize(dataDir); err == nil {
			info.DataSize = FormatBytes(size)
		}
	}
	return info
}

// DirSize is the total size of the regular files under dir.
func DirSize(dir string) (int64, error) {
	var totalSize int64
	err := filepath.WalkDir(dir, func(_ string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.Type().IsRegular() {
			fi, err := d.Info()
			if err != nil {
				if os.IsNotExist(err) {
					return nil
				}
				return err
			}
			totalSize += fi.Size()
		}
		return nil
	})
	return totalSize, err
}

func FormatBytes(n int64) string {
	const (
		kb = 1024
		mb = 1024 * kb
		gb = 1024 * mb
	)

	switch {
	case n >= gb:
		return fmt.Sprintf("%.2f GB", float64(n)/float64(gb))
	case n >= mb:
		return fmt.Sprintf("%.2f MB", float64(n)/float64(mb))
	case n >= kb:
		return fmt.Sprintf("%.2f KB", float64(n)/float64(kb))
	default:
		return fmt.Sprintf("%d Bytes", n)
	}
}
