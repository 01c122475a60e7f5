package ptp

import "strings"

// Vendor identifies the event-detection family a responder belongs to (spec
// glossary: "Vendor"). Fuji, Olympus and Panasonic fall back to Standard alongside
// any name this core has never seen, matching spec §4.6.3's "otherwise standard".
type Vendor int

const (
	VendorStandard Vendor = iota
	VendorCanon
	VendorNikon
	VendorSony
)

func (v Vendor) String() string {
	switch v {
	case VendorCanon:
		return "canon"
	case VendorNikon:
		return "nikon"
	case VendorSony:
		return "sony"
	default:
		return "standard"
	}
}

// DetectVendor classifies a responder's friendly/model name into a Vendor family
// by substring match, per spec §4.5: "canon" if name contains "canon" or "eos";
// "nikon" if "nikon"; "sony" if "sony"; otherwise standard.
func DetectVendor(name string) Vendor {
	lower := strings.ToLower(name)
	switch {
	case strings.Contains(lower, "canon"), strings.Contains(lower, "eos"):
		return VendorCanon
	case strings.Contains(lower, "nikon"):
		return VendorNikon
	case strings.Contains(lower, "sony"):
		return VendorSony
	default:
		return VendorStandard
	}
}
