package tuning

import (
	"runtime"

	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/mem"
)

// logResourceUsage emits a cpu/memory snapshot. Long searches are CPU-bound
// and single-threaded; the snapshot makes runaway memory growth visible in
// the trial logs.
func (t *Tuner) logResourceUsage(completedTrials int) {
	event := t.log.Debug().Int("trials_completed", completedTrials)

	if percents, err := cpu.Percent(0, false); err == nil && len(percents) > 0 {
		event = event.Float64("cpu_pct", percents[0])
	}
	if vm, err := mem.VirtualMemory(); err == nil {
		event = event.Float64("mem_used_pct", vm.UsedPercent)
	}

	var ms runtime.MemStats
	runtime.ReadMemStats(&ms)
	event.Uint64("heap_alloc_mb", ms.HeapAlloc/1024/1024).Msg("Search telemetry")
}
