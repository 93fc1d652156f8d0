package runtime

import (
	"os"

	"go.uber.org/zap"

	"github.com/wippyai/so-runtime/errors"
	"github.com/wippyai/so-runtime/vfs"
)

// CheckPrerequisites returns a MissingPrerequisite error for the first
// marker none of whose paths exists.
func CheckPrerequisites(vols vfs.Volumes, markers []Marker) error {
	for _, m := range markers {
		if !markerPresent(vols, m) {
			return errors.MissingPrerequisite(m.Name, m.Paths...)
		}
		Logger().Debug("prerequisite present", zap.String("name", m.Name))
	}
	return nil
}

func markerPresent(vols vfs.Volumes, m Marker) bool {
	for _, p := range m.Paths {
		host, err := vols.HostPath(p)
		if err != nil {
			continue
		}
		if _, err := os.Stat(host); err == nil {
			return true
		}
	}
	return false
}
