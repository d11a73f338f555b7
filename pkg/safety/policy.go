package safety

import (
	"fmt"
	"regexp"
)

// Policy holds the tunable limits of the validator
type Policy struct {
	MaxOutputLength  int      `json:"max_output_length" mapstructure:"max_output_length"`
	MaxInputLength   int      `json:"max_input_length" mapstructure:"max_input_length"`
	MaxArgsCount     int      `json:"max_args_count" mapstructure:"max_args_count"`
	MaxFileSizeMB    int      `json:"max_file_size_mb" mapstructure:"max_file_size_mb"`
	BlockedFilePaths []string `json:"blocked_file_paths" mapstructure:"blocked_file_paths"`

	EnableContentFiltering  bool `json:"enable_content_filtering" mapstructure:"enable_content_filtering"`
	EnableCommandValidation bool `json:"enable_command_validation" mapstructure:"enable_command_validation"`
	EnableFilePathCheck     bool `json:"enable_file_path_validation" mapstructure:"enable_file_path_validation"`

	// WorkDir is exempt from the blocked path check. Empty means the process cwd.
	WorkDir string `json:"work_dir,omitempty" mapstructure:"work_dir"`
}

// DefaultPolicy returns the default safety policy
func DefaultPolicy() Policy {
	return Policy{
		MaxOutputLength: 10000,
		MaxInputLength:  50000,
		MaxArgsCount:    20,
		MaxFileSizeMB:   100,
		BlockedFilePaths: []string{
			"/etc/", "/usr/", "/bin/", "/sbin/", "/boot/",
			"/dev/", "/proc/", "/sys/", "/root/",
		},
		EnableContentFiltering:  true,
		EnableCommandValidation: true,
		EnableFilePathCheck:     true,
	}
}

// Validate checks the policy for unusable values
func (p Policy) Validate() error {
	if p.MaxOutputLength <= len(truncationMarker) {
		return fmt.Errorf("max_output_length must be greater than %d", len(truncationMarker))
	}
	if p.MaxInputLength <= 0 {
		return fmt.Errorf("max_input_length must be positive")
	}
	if p.MaxArgsCount <= 0 {
		return fmt.Errorf("max_args_count must be positive")
	}
	if p.MaxFileSizeMB <= 0 {
		return fmt.Errorf("max_file_size_mb must be positive")
	}
	return nil
}

var (
	blockedCommandPatterns = mustCompileAll(
		`rm\s+-rf\s+/`,
		`sudo\s+rm`,
		`mkfs`,
		`dd\s+if=`,
		`chmod\s+777`,
		`passwd\s+`,
		`useradd\s+`,
		`userdel\s+`,
		`mount\s+`,
		`umount\s+`,
		`systemctl\s+`,
		`service\s+`,
		`iptables\s+`,
		`ufw\s+`,
	)

	suspiciousCommandPatterns = mustCompileAll(
		`eval\s*\(`,
		`exec\s*\(`,
		`__import__\s*\(`,
		`subprocess\.call`,
		`os\.system`,
		`base64\.decode`,
		`pickle\.loads`,
	)

	injectionPatterns = mustCompileAll(
		`(?i)<script.*?>`,
		`(?i)javascript:`,
		`(?i)data:text/html`,
		`(?i)eval\s*\(`,
		`(?i)exec\s*\(`,
	)

	// '*' is excluded from every character class so masked text never matches again.
	secretPatterns = mustCompileAll(
		`[A-Za-z0-9+/]{40,}={0,2}`,
		`sk-ant-[a-zA-Z0-9_-]{20,}`,
		`sk-[a-zA-Z0-9]{48}`,
		`ghp_[a-zA-Z0-9]{36}`,
		`AIza[0-9A-Za-z\-_]{35}`,
		`AKIA[0-9A-Z]{16}`,
		`(?i)password\s*[:=]\s*["']?[^\s"'*]+`,
		`(?i)secret\s*[:=]\s*["']?[^\s"'*]+`,
	)
)

// executionTools are the tools whose command or code text is content-checked
var executionTools = map[string]bool{
	"shell.exec": true,
	"code.exec":  true,
}

// pathWriteTools create or modify filesystem entries
var pathWriteTools = map[string]bool{
	"file.write":  true,
	"file.mkdir":  true,
	"file.delete": true,
}

func mustCompileAll(patterns ...string) []*regexp.Regexp {
	out := make([]*regexp.Regexp, 0, len(patterns))
	for _, p := range patterns {
		out = append(out, regexp.MustCompile(p))
	}
	return out
}
