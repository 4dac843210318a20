// Package gpu reports discrete GPU memory for the health endpoint, read from sysfs.
package gpu

import (
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
)

// GPUInfo holds detected GPU information
type GPUInfo struct {
	Device    string `json:"device"`     // e.g. "Intel Arc A380"
	VRAMTotal int64  `json:"vram_total"` // bytes, 0 if unknown
	VRAMFree  int64  `json:"vram_free"`  // bytes, 0 if unknown
	Driver    string `json:"driver"`     // e.g. "amdgpu"
}

// Available reports whether a discrete GPU with VRAM info was found
func (g GPUInfo) Available() bool {
	return g.VRAMTotal > 0
}

// Detector finds the first discrete GPU under a sysfs root. The device is
// located once; free memory is re-read on every Snapshot.
type Detector struct {
	root string

	once   sync.Once
	card   string // device dir, "" when none
	static GPUInfo
}

// NewDetector returns a detector for sysfsRoot ("" means /sys).
func NewDetector(sysfsRoot string) *Detector {
	if sysfsRoot == "" {
		sysfsRoot = "/sys"
	}
	return &Detector{root: sysfsRoot}
}

// Snapshot returns the GPU info with current free VRAM.
func (d *Detector) Snapshot() GPUInfo {
	d.once.Do(func() {
		d.card, d.static = d.detect()
		slog.Info("[gpu] detected",
			"device", d.static.Device,
			"vram_total_mb", d.static.VRAMTotal/1024/1024,
			"driver", d.static.Driver)
	})

	info := d.static
	if d.card == "" {
		return info
	}
	used, err := readSysfsInt(filepath.Join(d.card, "mem_info_vram_used"))
	if err == nil && used > 0 && used <= info.VRAMTotal {
		info.VRAMFree = info.VRAMTotal - used
	}
	return info
}

func (d *Detector) detect() (string, GPUInfo) {
	info := GPUInfo{}

	// Scan class/drm/card* for discrete GPUs with VRAM info
	cards, err := filepath.Glob(filepath.Join(d.root, "class", "drm", "card[0-9]*"))
	if err != nil {
		return "", info
	}

	for _, card := range cards {
		// Skip connector nodes (cardN-XXX)
		if strings.Contains(filepath.Base(card), "-") {
			continue
		}

		deviceDir := filepath.Join(card, "device")
		vramBytes, err := readSysfsInt(filepath.Join(deviceDir, "mem_info_vram_total"))
		if err != nil || vramBytes == 0 {
			continue // Not a discrete GPU or no VRAM info
		}

		info.VRAMTotal = vramBytes
		info.Device = readDeviceName(deviceDir)
		if driverLink, err := os.Readlink(filepath.Join(deviceDir, "driver")); err == nil {
			info.Driver = filepath.Base(driverLink)
		}
		return deviceDir, info
	}

	return "", info
}

func readSysfsInt(path string) (int64, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, err
	}
	return strconv.ParseInt(strings.TrimSpace(string(data)), 10, 64)
}

var intelArc = map[string]string{
	"56a5": "Intel Arc A380",
	"56a6": "Intel Arc A310",
	"5690": "Intel Arc A770",
	"5692": "Intel Arc A750",
	"56c0": "Intel Arc B580",
	"56c1": "Intel Arc B570",
}

func readDeviceName(deviceDir string) string {
	data, err := os.ReadFile(filepath.Join(deviceDir, "uevent"))
	if err != nil {
		return "Unknown GPU"
	}

	var vendorID, deviceID string
	for _, line := range strings.Split(string(data), "\n") {
		if strings.HasPrefix(line, "PCI_ID=") {
			parts := strings.Split(strings.TrimPrefix(line, "PCI_ID="), ":")
			if len(parts) == 2 {
				vendorID = strings.ToLower(parts[0])
				deviceID = strings.ToLower(parts[1])
			}
		}
	}

	switch vendorID {
	case "8086":
		if name, ok := intelArc[deviceID]; ok {
			return name
		}
		return "Intel GPU (" + deviceID + ")"
	case "1002":
		return "AMD GPU (" + deviceID + ")"
	case "10de":
		return "NVIDIA GPU (" + deviceID + ")"
	}
	return "GPU (" + vendorID + ":" + deviceID + ")"
}
