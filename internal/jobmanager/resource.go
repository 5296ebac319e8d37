package jobmanager

import (
	"bufio"
	"os"
	"runtime"
	"strconv"
	"strings"
	"time"

	"github.com/ivoronin/folddog/internal/types"
)

// sampleResources captures a best-effort point-in-time resource snapshot
// on a phase transition. CPU count always succeeds; load average and RSS
// are read from /proc when available (Linux) and left zero otherwise.
// I/O bytes have no portable source and stay zero.
func sampleResources() types.ResourceSample {
	return types.ResourceSample{
		TakenAt:  time.Now(),
		CPUCount: runtime.NumCPU(),
		Load1:    readLoad1(),
		RSSBytes: readRSSBytes(),
	}
}

func readLoad1() float64 {
	data, err := os.ReadFile("/proc/loadavg")
	if err != nil {
		return 0
	}
	fields := strings.Fields(string(data))
	if len(fields) == 0 {
		return 0
	}
	v, err := strconv.ParseFloat(fields[0], 64)
	if err != nil {
		return 0
	}
	return v
}

func readRSSBytes() uint64 {
	f, err := os.Open("/proc/self/status")
	if err != nil {
		return 0
	}
	defer func() { _ = f.Close() }()

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := scanner.Text()
		if !strings.HasPrefix(line, "VmRSS:") {
			continue
		}
		fields := strings.Fields(line)
		if len(fields) < 2 {
			return 0
		}
		kb, err := strconv.ParseUint(fields[1], 10, 64)
		if err != nil {
			return 0
		}
		return kb * 1024
	}
	return 0
}
