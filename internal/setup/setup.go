// Package setup registers the lite MCP server with a desktop MCP client and
// reports on the resulting installation.
package setup

import (
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/medical-report-analyzer/internal/config"
)

const (
	// ServerName is the key under mcpServers in the desktop client config.
	ServerName = "medical-report-analyzer"
	// DataDirEnv is passed to the server to locate its data directory.
	DataDirEnv = "MRA_DATA_DIR"
	// ConfigPathEnv overrides the desktop client config file location.
	ConfigPathEnv = "MRA_DESKTOP_CONFIG"

	binaryName = "mcp-server-lite"
)

// DesktopConfig represents the desktop client configuration file structure.
type DesktopConfig struct {
	MCPServers map[string]MCPServerConfig `json:"mcpServers"`
}

// MCPServerConfig represents a single MCP server configuration.
type MCPServerConfig struct {
	Command string            `json:"command"`
	Args    []string          `json:"args,omitempty"`
	Env     map[string]string `json:"env,omitempty"`
}

// Options contains options for the setup process.
type Options struct {
	ConfigPath  string // Desktop client config file; resolved when empty
	BinaryPath  string // Path to the server binary
	DataDir     string // Data directory for the lite server
	AutoConfirm bool   // Skip confirmation prompts
}

// DesktopConfigPath returns the path to the desktop client's config file.
func DesktopConfigPath() (string, error) {
	if path := os.Getenv(ConfigPathEnv); path != "" {
		return path, nil
	}

	var configDir string
	switch runtime.GOOS {
	case "darwin":
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("failed to get home directory: %w", err)
		}
		configDir = filepath.Join(home, "Library", "Application Support", "Claude")
	case "linux":
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("failed to get home directory: %w", err)
		}
		if xdgConfig := os.Getenv("XDG_CONFIG_HOME"); xdgConfig != "" {
			configDir = filepath.Join(xdgConfig, "Claude")
		} else {
			configDir = filepath.Join(home, ".config", "Claude")
		}
	case "windows":
		appData := os.Getenv("APPDATA")
		if appData == "" {
			return "", fmt.Errorf("APPDATA environment variable not set")
		}
		configDir = filepath.Join(appData, "Claude")
	default:
		return "", fmt.Errorf("unsupported operating system: %s", runtime.GOOS)
	}

	return filepath.Join(configDir, "claude_desktop_config.json"), nil
}

// LoadDesktopConfig loads the existing configuration. A missing file yields an empty config.
func LoadDesktopConfig(configPath string) (*DesktopConfig, error) {
	data, err := os.ReadFile(configPath)
	if err != nil {
		if os.IsNotExist(err) {
			return &DesktopConfig{MCPServers: make(map[string]MCPServerConfig)}, nil
		}
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var cfg DesktopConfig
	if err := json.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}
	if cfg.MCPServers == nil {
		cfg.MCPServers = make(map[string]MCPServerConfig)
	}
	return &cfg, nil
}

// SaveDesktopConfig writes the configuration, creating its directory if needed.
func SaveDesktopConfig(configPath string, cfg *DesktopConfig) error {
	if err := os.MkdirAll(filepath.Dir(configPath), 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	if err := os.WriteFile(configPath, data, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

// Configure adds or updates the analyzer entry in the desktop client config.
// Other server entries are left untouched.
func Configure(opts Options) error {
	configPath, err := resolveConfigPath(opts.ConfigPath)
	if err != nil {
		return err
	}

	cfg, err := LoadDesktopConfig(configPath)
	if err != nil {
		return err
	}

	binaryPath := opts.BinaryPath
	if binaryPath == "" {
		if binaryPath, err = findBinary(); err != nil {
			return fmt.Errorf("could not find server binary: %w", err)
		}
	}

	serverConfig := MCPServerConfig{
		Command: binaryPath,
		Env:     make(map[string]string),
	}
	if opts.DataDir != "" {
		serverConfig.Env[DataDirEnv] = opts.DataDir
	}
	cfg.MCPServers[ServerName] = serverConfig

	return SaveDesktopConfig(configPath, cfg)
}

func resolveConfigPath(configPath string) (string, error) {
	if configPath != "" {
		return configPath, nil
	}
	return DesktopConfigPath()
}

// findBinary attempts to find the server binary in common locations.
func findBinary() (string, error) {
	if path, err := exec.LookPath(binaryName); err == nil {
		return path, nil
	}

	home, _ := os.UserHomeDir()
	locations := []string{
		"./" + binaryName,
		"./build/" + binaryName,
		filepath.Join(home, ".local", "bin", binaryName),
		"/usr/local/bin/" + binaryName,
	}
	for _, loc := range locations {
		if _, err := os.Stat(loc); err == nil {
			if absPath, err := filepath.Abs(loc); err == nil {
				return absPath, nil
			}
			return loc, nil
		}
	}

	return "", fmt.Errorf("binary '%s' not found in common locations", binaryName)
}

// Status represents the current setup status.
type Status struct {
	ConfigPath       string
	ServerConfigured bool
	ServerPath       string
	DataDir          string
	HistoryDBPresent bool
	Issues           []string
}

// GetStatus inspects the desktop client config and the data directory.
func GetStatus(configPath string) *Status {
	status := &Status{Issues: []string{}}

	path, err := resolveConfigPath(configPath)
	if err != nil {
		status.Issues = append(status.Issues, fmt.Sprintf("Could not determine desktop config path: %v", err))
	} else {
		status.ConfigPath = path
		cfg, err := LoadDesktopConfig(path)
		if err != nil {
			status.Issues = append(status.Issues, fmt.Sprintf("Could not load desktop config: %v", err))
		} else if serverConfig, ok := cfg.MCPServers[ServerName]; ok {
			status.ServerConfigured = true
			status.ServerPath = serverConfig.Command
			status.DataDir = serverConfig.Env[DataDirEnv]
			if _, err := os.Stat(serverConfig.Command); os.IsNotExist(err) {
				status.Issues = append(status.Issues, fmt.Sprintf("Server binary not found at: %s", serverConfig.Command))
			}
		}
	}

	if status.DataDir == "" {
		status.DataDir = DefaultDataDir()
	}
	if _, err := os.Stat(status.DataDir); os.IsNotExist(err) {
		status.Issues = append(status.Issues, fmt.Sprintf("Data directory will be created on first run: %s", status.DataDir))
	}

	lite := config.DefaultLiteConfig()
	lite.DataDir = status.DataDir
	if _, err := os.Stat(lite.HistoryDBPath()); err == nil {
		status.HistoryDBPresent = true
	}

	return status
}

// Validate reports whether the setup can run. Issues that only describe
// directories created on first run do not invalidate it.
func Validate(configPath string) (bool, []string) {
	status := GetStatus(configPath)
	issues := status.Issues

	if !status.ServerConfigured && status.ConfigPath != "" {
		issues = append(issues, "Medical report analyzer is not configured in the desktop client")
	}
	if status.ServerConfigured {
		if info, err := os.Stat(status.ServerPath); err == nil && info.Mode()&0111 == 0 {
			issues = append(issues, fmt.Sprintf("Server binary is not executable: %s", status.ServerPath))
		}
	}

	return allWarnings(issues), issues
}

// allWarnings returns true if all issues are just warnings (not errors).
func allWarnings(issues []string) bool {
	for _, issue := range issues {
		if !strings.Contains(issue, "will be created") {
			return false
		}
	}
	return true
}

// DefaultDataDir returns the data directory the lite server uses by default.
func DefaultDataDir() string {
	return config.DefaultLiteConfig().DataDir
}
