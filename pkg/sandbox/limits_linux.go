//go:build linux

package sandbox

import (
	"errors"
	"fmt"

	"golang.org/x/sys/unix"
)

type rlimitSpec struct {
	name     string
	resource int
	value    uint64
}

func processSpecs(limits ResourceLimits) []rlimitSpec {
	var specs []rlimitSpec
	if limits.MaxFileSizeMB > 0 {
		specs = append(specs, rlimitSpec{"RLIMIT_FSIZE", unix.RLIMIT_FSIZE, uint64(limits.MaxFileSizeMB) * megabyte})
	}
	if limits.MaxCPUSeconds > 0 {
		specs = append(specs, rlimitSpec{"RLIMIT_CPU", unix.RLIMIT_CPU, uint64(limits.MaxCPUSeconds)})
	}
	if limits.MaxMemoryMB > 0 {
		specs = append(specs, rlimitSpec{"RLIMIT_AS", unix.RLIMIT_AS, uint64(limits.MaxMemoryMB) * megabyte})
	}
	return specs
}

// lowered returns the new limit, or false when current is already tighter
func lowered(current unix.Rlimit, value uint64) (unix.Rlimit, bool) {
	if current.Cur != unix.RLIM_INFINITY && current.Cur <= value {
		return current, false
	}
	if current.Max != unix.RLIM_INFINITY && value > current.Max {
		value = current.Max
	}
	return unix.Rlimit{Cur: value, Max: current.Max}, true
}

func applyProcessLimits(limits ResourceLimits) error {
	var errs []error
	for _, spec := range processSpecs(limits) {
		var current unix.Rlimit
		if err := unix.Getrlimit(spec.resource, &current); err != nil {
			errs = append(errs, fmt.Errorf("get %s: %w", spec.name, err))
			continue
		}
		next, ok := lowered(current, spec.value)
		if !ok {
			continue
		}
		if err := unix.Setrlimit(spec.resource, &next); err != nil {
			errs = append(errs, fmt.Errorf("set %s: %w", spec.name, err))
		}
	}
	return errors.Join(errs...)
}

// applyChildLimits sets the process limits plus RLIMIT_NPROC on a started
// child. RLIMIT_NPROC counts per user, so it is never set on this process.
func applyChildLimits(pid int, limits ResourceLimits) error {
	specs := processSpecs(limits)
	if limits.MaxProcesses > 0 {
		specs = append(specs, rlimitSpec{"RLIMIT_NPROC", unix.RLIMIT_NPROC, uint64(limits.MaxProcesses)})
	}

	var errs []error
	for _, spec := range specs {
		var current unix.Rlimit
		if err := unix.Prlimit(pid, spec.resource, nil, &current); err != nil {
			errs = append(errs, fmt.Errorf("get %s: %w", spec.name, err))
			continue
		}
		next, ok := lowered(current, spec.value)
		if !ok {
			continue
		}
		if err := unix.Prlimit(pid, spec.resource, &next, nil); err != nil {
			errs = append(errs, fmt.Errorf("set %s: %w", spec.name, err))
		}
	}
	return errors.Join(errs...)
}
