package dvp

import "strings"

// Identity is what a DVP payload reveals about who the device is.
type Identity struct {
	DeviceSerial string
	Supplier     string
	DeviceType   string
}

func (id Identity) Complete() bool {
	return id.DeviceSerial != "" && id.Supplier != "" && id.DeviceType != ""
}

// InferIdentity extracts device identity from a DVP payload. Devices in the
// field use mixed spellings: supplier/vendor and device_type/model are both
// accepted, and device.serial wins over device.id.
func InferIdentity(payload map[string]any) Identity {
	var id Identity
	device, ok := payload["device"].(map[string]any)
	if !ok {
		return id
	}
	id.DeviceSerial = firstNonEmpty(device, "serial", "id")
	id.Supplier = firstNonEmpty(device, "supplier", "vendor")
	id.DeviceType = firstNonEmpty(device, "device_type", "model")
	return id
}

func firstNonEmpty(m map[string]any, keys ...string) string {
	for _, k := range keys {
		if s, ok := m[k].(string); ok {
			if s = strings.TrimSpace(s); s != "" {
				return s
			}
		}
	}
	return ""
}
