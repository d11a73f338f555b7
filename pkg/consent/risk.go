package consent

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/mattn/go-shellwords"
)

var highRiskOperations = map[string]bool{
	"file.delete": true,
	"code.exec":   true,
}

var safeOperations = map[string]bool{
	"file.read":      true,
	"file.list":      true,
	"web.search":     true,
	"web.fetch":      true,
	"math.calc":      true,
	"text.summarize": true,
	"system.info":    true,
	"memory.search":  true,
}

var safeShellCommands = map[string]bool{
	"date": true, "pwd": true, "whoami": true, "id": true, "uname": true,
	"hostname": true, "uptime": true, "df": true, "free": true, "ps": true,
	"top": true, "ls": true, "cat": true, "head": true, "tail": true,
	"wc": true, "grep": true, "find": true, "which": true, "echo": true,
}

var dangerousShellPatterns = []string{
	"rm ", "sudo", "chmod 777", "passwd", "useradd", "userdel",
	"mount", "umount", "systemctl", "service", "iptables", "ufw",
	"mkfs", "dd if=", ">/dev/", "curl", "wget", "nc ", "netcat",
}

// ClassifyRisk computes the risk level of a request. It depends only on the
// request and the policy's safe directories.
func (p Policy) ClassifyRisk(req Request) RiskLevel {
	if highRiskOperations[req.Operation] {
		return RiskHigh
	}

	if req.Operation == "shell.exec" {
		return shellRisk(req)
	}

	if strings.HasPrefix(req.Operation, "file.") && req.subject() != "" {
		if p.IsSafePath(req.subject()) {
			return RiskLow
		}
		return RiskMedium
	}

	if safeOperations[req.Operation] {
		return RiskLow
	}

	return RiskMedium
}

func shellRisk(req Request) RiskLevel {
	command, ok := commandFromDetails(req.Details)
	if !ok {
		return RiskHigh
	}

	command = strings.TrimSpace(command)
	if safeShellCommands[BaseCommand(command)] {
		return RiskLow
	}

	lower := strings.ToLower(command)
	for _, pattern := range dangerousShellPatterns {
		if strings.Contains(lower, pattern) {
			return RiskHigh
		}
	}

	return RiskMedium
}

// commandFromDetails finds the shell command in request details, either at
// the top level or under "args".
func commandFromDetails(details map[string]interface{}) (string, bool) {
	if details == nil {
		return "", false
	}
	if args, ok := details["args"].(map[string]interface{}); ok {
		if cmd, ok := args["command"].(string); ok {
			return cmd, true
		}
		return "", false
	}
	cmd, ok := details["command"].(string)
	return cmd, ok
}

// BaseCommand returns the first shell word of a command line
func BaseCommand(command string) string {
	words, err := shellwords.Parse(command)
	if err != nil || len(words) == 0 {
		fields := strings.Fields(command)
		if len(fields) == 0 {
			return ""
		}
		return fields[0]
	}
	return words[0]
}

// IsSafePath reports whether path resolves under a safe directory or the
// working directory.
func (p Policy) IsSafePath(path string) bool {
	workDir := p.WorkDir
	if workDir == "" {
		cwd, err := os.Getwd()
		if err != nil {
			return false
		}
		workDir = cwd
	}

	resolved := path
	if !filepath.IsAbs(resolved) {
		resolved = filepath.Join(workDir, resolved)
	}
	resolved = filepath.Clean(resolved)

	roots := make([]string, 0, len(p.SafeDirectories)+1)
	for _, dir := range p.SafeDirectories {
		if !filepath.IsAbs(dir) {
			dir = filepath.Join(workDir, dir)
		}
		roots = append(roots, dir)
	}
	roots = append(roots, workDir)

	for _, root := range roots {
		if hasPathPrefix(resolved, root) {
			return true
		}
	}
	return false
}

func hasPathPrefix(path, root string) bool {
	root = filepath.Clean(root)
	if path == root {
		return true
	}
	if root == string(filepath.Separator) {
		return true
	}
	return strings.HasPrefix(path, root+string(filepath.Separator))
}
