package jni

// MethodID identifies a method known to the emulator. 0 is unknown.
type MethodID uint32

const (
	MethodUnknown MethodID = iota
	MethodInit
	MethodGetScreenHeightPixel
	MethodGetScreenHeightInch
)

// FieldID identifies a field known to the emulator. 0 is unknown.
type FieldID uint32

const (
	FieldUnknown FieldID = iota
	FieldManufacturer
	FieldModel
	FieldBrand
	FieldDisplay
	FieldDevice
	FieldXDPI
	FieldYDPI
)

var methodIDs = map[string]MethodID{
	"<init>":               MethodInit,
	"GetScreenHeightPixel": MethodGetScreenHeightPixel,
	"GetScreenHeightInch":  MethodGetScreenHeightInch,
}

var staticFieldIDs = map[string]FieldID{
	"MANUFACTURER": FieldManufacturer,
	"MODEL":        FieldModel,
	"BRAND":        FieldBrand,
	"DISPLAY":      FieldDisplay,
	"DEVICE":       FieldDevice,
}

var instanceFieldIDs = map[string]FieldID{
	"xdpi": FieldXDPI,
	"ydpi": FieldYDPI,
}

// LookupMethod maps a method name to its id. Static and instance lookups
// share one namespace.
func LookupMethod(name string) MethodID {
	return methodIDs[name]
}

// LookupStaticField maps a static field name to its id.
func LookupStaticField(name string) FieldID {
	return staticFieldIDs[name]
}

// LookupField maps an instance field name to its id.
func LookupField(name string) FieldID {
	return instanceFieldIDs[name]
}
