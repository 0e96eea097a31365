package setup

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"
)

// CLI provides command-line interface for setup operations.
type CLI struct {
	out    io.Writer
	reader *bufio.Reader
}

// NewCLI creates a setup CLI reading answers from in and printing to out.
func NewCLI(in io.Reader, out io.Writer) *CLI {
	return &CLI{
		out:    out,
		reader: bufio.NewReader(in),
	}
}

// Run executes the setup command based on the provided arguments.
func (c *CLI) Run(args []string) error {
	if len(args) == 0 {
		return c.showHelp()
	}

	switch args[0] {
	case "desktop-config":
		return c.configureDesktop(args[1:])
	case "status":
		return c.showStatus()
	case "validate":
		return c.validate()
	case "help", "--help", "-h":
		return c.showHelp()
	default:
		fmt.Fprintf(c.out, "Unknown command: %s\n\n", args[0])
		c.showHelp()
		return fmt.Errorf("unknown setup command %q", args[0])
	}
}

func (c *CLI) showHelp() error {
	fmt.Fprint(c.out, `
Medical Report Analyzer Setup

Usage:
  mcp-server-lite setup <command> [options]

Commands:
  desktop-config  Register the server in the desktop MCP client config
  status          Show current setup status
  validate        Validate current configuration

Options for desktop-config:
  --binary, -b    Path to the server binary (defaults to this executable)
  --data-dir, -d  Data directory for the history database
  --config, -c    Desktop client config file (defaults to the platform location)
  --auto, -y      Do not ask for confirmation

Set `+ConfigPathEnv+` to use a different desktop client config file.
`)
	return nil
}

func (c *CLI) configureDesktop(args []string) error {
	var opts Options
	for i := 0; i < len(args); i++ {
		switch args[i] {
		case "--binary", "-b":
			if i+1 < len(args) {
				opts.BinaryPath = args[i+1]
				i++
			}
		case "--data-dir", "-d":
			if i+1 < len(args) {
				opts.DataDir = args[i+1]
				i++
			}
		case "--config", "-c":
			if i+1 < len(args) {
				opts.ConfigPath = args[i+1]
				i++
			}
		case "--auto", "-y":
			opts.AutoConfirm = true
		}
	}

	if opts.BinaryPath == "" {
		if execPath, err := os.Executable(); err == nil {
			opts.BinaryPath = execPath
		}
	}
	configPath, err := resolveConfigPath(opts.ConfigPath)
	if err != nil {
		return err
	}
	opts.ConfigPath = configPath

	fmt.Fprintln(c.out, "Desktop Client Configuration")
	fmt.Fprintln(c.out, "============================")
	fmt.Fprintf(c.out, "Config file: %s\n", configPath)
	fmt.Fprintf(c.out, "Server binary: %s\n", opts.BinaryPath)
	if opts.DataDir != "" {
		fmt.Fprintf(c.out, "Data directory: %s\n", opts.DataDir)
	}
	fmt.Fprintln(c.out)

	if !opts.AutoConfirm {
		fmt.Fprint(c.out, "Proceed with configuration? [Y/n]: ")
		response, _ := c.reader.ReadString('\n')
		response = strings.TrimSpace(strings.ToLower(response))
		if response != "" && response != "y" && response != "yes" {
			fmt.Fprintln(c.out, "Configuration cancelled.")
			return nil
		}
	}

	if err := Configure(opts); err != nil {
		return fmt.Errorf("failed to configure desktop client: %w", err)
	}

	fmt.Fprintln(c.out, "✓ Desktop client configured successfully!")
	fmt.Fprintln(c.out, "Restart the desktop client, then ask it to analyze a report such as")
	fmt.Fprintln(c.out, "  \"Blood pressure 150/95 mmHg, fasting glucose 130 mg/dL\"")
	return nil
}

func (c *CLI) showStatus() error {
	status := GetStatus("")

	fmt.Fprintln(c.out, "Medical Report Analyzer Status")
	fmt.Fprintln(c.out, "==============================")
	fmt.Fprintf(c.out, "Desktop config: %s\n", status.ConfigPath)
	if status.ServerConfigured {
		fmt.Fprintf(c.out, "  Status: ✓ Configured (%s)\n", status.ServerPath)
	} else {
		fmt.Fprintln(c.out, "  Status: ✗ Not configured")
	}

	fmt.Fprintf(c.out, "Data directory: %s\n", status.DataDir)
	if status.HistoryDBPresent {
		fmt.Fprintln(c.out, "  History DB: ✓ Present")
	} else {
		fmt.Fprintln(c.out, "  History DB: - Not created yet")
	}

	if len(status.Issues) > 0 {
		fmt.Fprintln(c.out, "Issues:")
		for _, issue := range status.Issues {
			fmt.Fprintf(c.out, "  ⚠ %s\n", issue)
		}
	}
	return nil
}

func (c *CLI) validate() error {
	valid, issues := Validate("")
	if valid {
		fmt.Fprintln(c.out, "✓ Configuration is valid!")
		for _, issue := range issues {
			fmt.Fprintf(c.out, "  - %s\n", issue)
		}
		return nil
	}

	fmt.Fprintln(c.out, "✗ Configuration has issues:")
	for _, issue := range issues {
		fmt.Fprintf(c.out, "  - %s\n", issue)
	}
	return fmt.Errorf("configuration is not valid")
}
