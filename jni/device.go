package jni

// DeviceInfo is the constant metadata reported for the virtual device.
type DeviceInfo struct {
	Manufacturer string
	Model        string
	Brand        string
	Display      string
	Device       string
	DPI          float32
	ScreenWidth  uint32
	ScreenHeight uint32
}

// DefaultDevice describes the handheld the module was ported to.
func DefaultDevice() DeviceInfo {
	return DeviceInfo{
		Manufacturer: "sony",
		Model:        "D6503",
		Brand:        "PlayStation",
		Display:      "AMOLED",
		Device:       "PSVita",
		DPI:          200,
		ScreenWidth:  960,
		ScreenHeight: 544,
	}
}

// strings returns the static string fields by id.
func (d DeviceInfo) strings() map[FieldID]string {
	return map[FieldID]string{
		FieldManufacturer: d.Manufacturer,
		FieldModel:        d.Model,
		FieldBrand:        d.Brand,
		FieldDisplay:      d.Display,
		FieldDevice:       d.Device,
	}
}

// HeightInches is the screen height in inches.
func (d DeviceInfo) HeightInches() float32 {
	if d.DPI == 0 {
		return 0
	}
	return float32(d.ScreenHeight) / d.DPI
}
