package gpu

import (
	"strings"

	"github.com/jaypipes/ghw"
)

type Vendor int

const (
	Unknown Vendor = iota
	NVIDIA
	AMD
)

func (v Vendor) String() string {
	switch v {
	case NVIDIA:
		return "NVIDIA"
	case AMD:
		return "AMD"
	default:
		return "Unknown"
	}
}

// DetectVendors lists the vendor of every display controller on the PCI bus.
// It does not need a GPU driver, which makes it useful to explain why NVML
// could not be initialized.
func DetectVendors() ([]Vendor, error) {
	info, err := ghw.GPU()
	if err != nil {
		return nil, err
	}

	var vendors []Vendor
	for _, card := range info.GraphicsCards {
		if card.DeviceInfo == nil || card.DeviceInfo.Class == nil || card.DeviceInfo.Vendor == nil {
			continue
		}
		if !isDisplayController(card.DeviceInfo.Class.Name) {
			continue
		}
		vendors = append(vendors, vendorFromName(card.DeviceInfo.Vendor.Name))
	}

	return vendors, nil
}

func isDisplayController(className string) bool {
	className = strings.ToLower(className)
	return strings.Contains(className, "display controller") ||
		strings.Contains(className, "vga compatible controller") ||
		strings.Contains(className, "3d controller") ||
		strings.Contains(className, "2d controller")
}

func vendorFromName(name string) Vendor {
	name = strings.ToLower(name)
	switch {
	case strings.Contains(name, "nvidia"):
		return NVIDIA
	case strings.Contains(name, "amd"), strings.Contains(name, "advanced micro devices"):
		return AMD
	default:
		return Unknown
	}
}

// HasVendor reports whether v appears in vendors.
func HasVendor(vendors []Vendor, v Vendor) bool {
	for _, vendor := range vendors {
		if vendor == v {
			return true
		}
	}
	return false
}
