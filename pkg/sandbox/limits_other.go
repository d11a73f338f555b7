//go:build !linux

package sandbox

func applyProcessLimits(limits ResourceLimits) error {
	return nil
}

func applyChildLimits(pid int, limits ResourceLimits) error {
	return nil
}
