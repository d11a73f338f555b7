package sandbox

import (
	"fmt"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/mattn/go-shellwords"
)

var segmentSeparator = regexp.MustCompile(`\|\||&&|[;|&\n]`)

// CheckCommand refuses a command line that contains a blocked entry
func CheckCommand(commandLine string, blocked []string) error {
	lower := strings.ToLower(commandLine)
	names := commandNames(lower)

	for _, entry := range blocked {
		entry = strings.ToLower(strings.TrimSpace(entry))
		if entry == "" {
			continue
		}
		if strings.Contains(entry, " ") {
			if strings.Contains(lower, entry) {
				return fmt.Errorf("%w: %s", ErrCommandBlocked, entry)
			}
			continue
		}
		if names[entry] {
			return fmt.Errorf("%w: %s", ErrCommandBlocked, entry)
		}
	}
	return nil
}

// commandNames collects the program name of every pipeline segment
func commandNames(line string) map[string]bool {
	names := make(map[string]bool)
	for _, segment := range segmentSeparator.Split(line, -1) {
		words, err := shellwords.Parse(segment)
		if err != nil {
			words = strings.Fields(segment)
		}
		// Skip leading VAR=value assignments
		for len(words) > 0 && strings.Contains(words[0], "=") {
			words = words[1:]
		}
		if len(words) == 0 {
			continue
		}
		names[filepath.Base(words[0])] = true
	}
	return names
}

// ParseCommandLine splits a command line into argv without invoking a
// shell. Unquoted pipes, redirects, separators and substitutions are rejected.
func ParseCommandLine(commandLine string) (string, []string, error) {
	if hasShellOperator(commandLine) {
		return "", nil, fmt.Errorf("%w: %s", ErrShellSyntax, commandLine)
	}
	words, err := shellwords.Parse(commandLine)
	if err != nil {
		return "", nil, fmt.Errorf("failed to parse command: %w", err)
	}
	if len(words) == 0 {
		return "", nil, ErrEmptyCommand
	}
	return words[0], words[1:], nil
}

func hasShellOperator(line string) bool {
	var quote rune
	escaped := false
	for _, r := range line {
		switch {
		case escaped:
			escaped = false
		case r == '\\' && quote != '\'':
			escaped = true
		case quote != 0:
			if r == quote {
				quote = 0
			}
		case r == '\'' || r == '"':
			quote = r
		case strings.ContainsRune("|&;<>`$\n", r):
			return true
		}
	}
	return false
}
