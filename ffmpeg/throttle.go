package ffmpeg

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/disk"
	"github.com/shirou/gopsutil/v3/mem"
)

// Throttle holds the headroom required before an encoder pass may start.
// Zero values disable the corresponding check.
type Throttle struct {
	CPUIdlePercent float64
	FreeMem        int64
	FreeDisk       int64
}

// Check verifies that the system has enough free resources to start a pass.
func (t Throttle) Check(dir string, logger *slog.Logger) error {
	if t.CPUIdlePercent > 0 {
		p, err := cpu.Percent(time.Second, false)
		if err != nil {
			logger.Warn("could not get CPU usage", "error", err)
		} else if len(p) > 0 && p[0] > (100.0-t.CPUIdlePercent) {
			return fmt.Errorf("not enough idle CPU: usage %.2f%%, idle threshold %.2f%%", p[0], t.CPUIdlePercent)
		}
	}

	if t.FreeMem > 0 {
		vm, err := mem.VirtualMemory()
		if err != nil {
			logger.Warn("could not get memory usage", "error", err)
		} else if vm.Available < uint64(t.FreeMem) {
			return fmt.Errorf("not enough free memory: available %d, required %d", vm.Available, t.FreeMem)
		}
	}

	if t.FreeDisk > 0 && dir != "" {
		d, err := disk.Usage(dir)
		if err != nil {
			logger.Warn("could not get disk usage", "dir", dir, "error", err)
		} else if d.Free < uint64(t.FreeDisk) {
			return fmt.Errorf("not enough free disk space: available %d, required %d", d.Free, t.FreeDisk)
		}
	}
	return nil
}
