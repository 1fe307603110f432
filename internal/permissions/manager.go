// Package permissions decides which tool calls may run without the
// user's explicit approval.
//
// File tools are always allowed. Bash commands are checked against an
// allow list of glob patterns of the form "Bash(<program>:<args>)";
// everything else is denied and queued for approval.
package permissions

import (
	"encoding/json"
	"fmt"
	"log"
	"os"
	"regexp"
	"strings"
	"sync"
)

var alwaysAllowed = map[string]bool{
	"file_read":  true,
	"file_write": true,
	"file_edit":  true,
}

type configFile struct {
	Permissions struct {
		Allow []string `json:"allow"`
	} `json:"permissions"`
}

// Manager evaluates tool calls against the configured allow list. Safe
// for concurrent use; Reload may run while checks are in flight.
type Manager struct {
	configPath string

	mu       sync.RWMutex
	patterns []string
}

// NewManager loads the allow list from configPath. A missing file is
// not an error: it means nothing beyond the file tools is allowed.
func NewManager(configPath string) *Manager {
	m := &Manager{configPath: configPath}
	if err := m.Reload(); err != nil {
		log.Printf("permissions: %v", err)
	}
	return m
}

// Reload re-reads the config file and swaps the pattern list.
func (m *Manager) Reload() error {
	data, err := os.ReadFile(m.configPath)
	if os.IsNotExist(err) {
		m.setPatterns(nil)
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to read permissions config: %w", err)
	}
	var cfg configFile
	if err := json.Unmarshal(data, &cfg); err != nil {
		return fmt.Errorf("failed to parse permissions config: %w", err)
	}
	m.setPatterns(cfg.Permissions.Allow)
	return nil
}

func (m *Manager) setPatterns(patterns []string) {
	m.mu.Lock()
	m.patterns = patterns
	m.mu.Unlock()
}

// SetPatterns replaces the allow list directly, bypassing the file.
func (m *Manager) SetPatterns(patterns []string) {
	m.setPatterns(patterns)
}

// IsAllowed reports whether a tool call may run without approval.
func (m *Manager) IsAllowed(toolName string, args map[string]any) bool {
	if alwaysAllowed[toolName] {
		return true
	}
	if toolName == "bash" {
		command, _ := args["command"].(string)
		return m.checkBash(command)
	}
	return false
}

func (m *Manager) checkBash(command string) bool {
	command = strings.TrimSpace(command)
	if command == "" {
		return false
	}
	program, rest := splitCommand(command)

	m.mu.RLock()
	patterns := m.patterns
	m.mu.RUnlock()

	for _, pattern := range patterns {
		if !strings.HasPrefix(pattern, "Bash(") || !strings.HasSuffix(pattern, ")") {
			continue
		}
		inner := pattern[len("Bash(") : len(pattern)-1]

		if inner == "*" {
			return true
		}

		progPattern, argsPattern, hasArgs := strings.Cut(inner, ":")
		if !hasArgs {
			if fnmatch(inner, program) {
				return true
			}
			continue
		}
		if !fnmatch(progPattern, program) {
			continue
		}
		if argsPattern == "*" || fnmatch(argsPattern, rest) {
			return true
		}
	}
	return false
}

// splitCommand separates the program token from the rest of the
// command line, on any whitespace.
func splitCommand(command string) (program, rest string) {
	fields := strings.Fields(command)
	program = fields[0]
	idx := strings.Index(command, program) + len(program)
	return program, strings.TrimLeft(command[idx:], " \t\n")
}

// fnmatch reports whether name matches the glob pattern over the whole
// string. Unlike path.Match, "*" crosses path separators, which is what
// command-line patterns like "Bash(git:push*)" need.
func fnmatch(pattern, name string) bool {
	re, err := regexp.Compile("^" + globToRegexp(pattern) + "$")
	if err != nil {
		return false
	}
	return re.MatchString(name)
}

func globToRegexp(pattern string) string {
	var b strings.Builder
	for i := 0; i < len(pattern); i++ {
		switch c := pattern[i]; c {
		case '*':
			b.WriteString(".*")
		case '?':
			b.WriteString(".")
		case '[':
			j := i + 1
			if j < len(pattern) && pattern[j] == '!' {
				j++
			}
			if j < len(pattern) && pattern[j] == ']' {
				j++
			}
			for j < len(pattern) && pattern[j] != ']' {
				j++
			}
			if j >= len(pattern) {
				b.WriteString(regexp.QuoteMeta("["))
				continue
			}
			set := pattern[i+1 : j]
			if strings.HasPrefix(set, "!") {
				set = "^" + set[1:]
			}
			b.WriteString("[" + strings.ReplaceAll(set, "\\", "\\\\") + "]")
			i = j
		default:
			b.WriteString(regexp.QuoteMeta(string(c)))
		}
	}
	return b.String()
}
