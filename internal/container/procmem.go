package container

import (
	"os"

	"github.com/shirou/gopsutil/v3/process"
)

// processMemory reads the current process's RSS (used) and virtual size
// (the practical ceiling the OS would let it grow to) via gopsutil, for
// the getStats() processUsedMemory/processMaxMemory fields (§4.1, §6).
// Errors reading /proc are swallowed to zero, matching §7's rule that
// statistics reads never fail the call.
func processMemory() (maxMemory, usedMemory uint64) {
	proc, err := process.NewProcess(int32(os.Getpid()))
	if err != nil {
		return 0, 0
	}
	info, err := proc.MemoryInfo()
	if err != nil || info == nil {
		return 0, 0
	}
	return info.VMS, info.RSS
}
