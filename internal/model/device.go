package model

import (
	"errors"
	"fmt"
	"runtime"
	"strings"

	"golang.org/x/sys/cpu"
)

type Device string

const (
	DeviceAuto Device = "auto"
	DeviceCPU  Device = "cpu"
	DeviceCUDA Device = "cuda"
)

var errCUDAUnavailable = errors.New("cuda device is not available in this build")

// ParseDevice normalises a device name. An empty name means auto.
func ParseDevice(name string) (Device, error) {
	d := Device(strings.ToLower(strings.TrimSpace(name)))
	switch d {
	case "":
		return DeviceAuto, nil
	case DeviceAuto, DeviceCPU, DeviceCUDA:
		return d, nil
	default:
		return "", fmt.Errorf("unknown device %q (expected auto, cpu, or cuda)", name)
	}
}

// Resolve maps auto onto a concrete device and rejects devices this build
// cannot drive.
func (d Device) Resolve() (Device, error) {
	switch d {
	case DeviceAuto, DeviceCPU, "":
		return DeviceCPU, nil
	case DeviceCUDA:
		return "", errCUDAUnavailable
	default:
		return "", fmt.Errorf("unknown device %q", string(d))
	}
}

// DeviceInfo describes the host processor.
type DeviceInfo struct {
	Device   Device   `json:"device"`
	Arch     string   `json:"arch"`
	Cores    int      `json:"cores"`
	Features []string `json:"features"`
}

func HostInfo() DeviceInfo {
	info := DeviceInfo{Device: DeviceCPU, Arch: runtime.GOARCH, Cores: runtime.NumCPU()}
	add := func(ok bool, name string) {
		if ok {
			info.Features = append(info.Features, name)
		}
	}
	switch runtime.GOARCH {
	case "amd64", "386":
		add(cpu.X86.HasSSE42, "sse4.2")
		add(cpu.X86.HasAVX, "avx")
		add(cpu.X86.HasAVX2, "avx2")
		add(cpu.X86.HasFMA, "fma")
		add(cpu.X86.HasAVX512F, "avx512f")
	case "arm64":
		add(cpu.ARM64.HasASIMD, "asimd")
		add(cpu.ARM64.HasFPHP, "fphp")
		add(cpu.ARM64.HasASIMDDP, "asimddp")
		add(cpu.ARM64.HasSVE, "sve")
	}
	return info
}

func (i DeviceInfo) String() string {
	feat := "none"
	if len(i.Features) > 0 {
		feat = strings.Join(i.Features, ",")
	}
	return fmt.Sprintf("%s %s cores=%d features=%s", i.Device, i.Arch, i.Cores, feat)
}
