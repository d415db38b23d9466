// Package scaffold installs the files a project needs to use logicgate: a
// starter logicgate.yml and an MCP server entry in .mcp.json.
package scaffold

import (
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
)

// TemplateFS holds the embedded starter files.
//
//go:embed templates/*
var TemplateFS embed.FS

// mcpConfig represents the structure of a .mcp.json file.
type mcpConfig struct {
	MCPServers map[string]json.RawMessage `json:"mcpServers"`
}

// mcpEntry is the MCP server configuration for the logicgate binary.
var mcpEntry = json.RawMessage(`{
  "type": "stdio",
  "command": "logicgate",
  "args": ["serve-mcp"]
}`)

// Options configures Install.
type Options struct {
	// Force overwrites an existing logicgate.yml and MCP entry.
	Force bool

	// Out receives one line per file created, updated or skipped.
	Out io.Writer
}

// Install writes logicgate.yml into root and adds the logicgate server to
// root/.mcp.json, keeping any other servers already configured.
func Install(root string, opts Options) error {
	if opts.Out == nil {
		opts.Out = io.Discard
	}
	abs, err := filepath.Abs(root)
	if err != nil {
		return fmt.Errorf("resolving project root: %w", err)
	}

	if err := writeConfig(abs, opts); err != nil {
		return err
	}
	return mergeMCPConfig(filepath.Join(abs, ".mcp.json"), opts)
}

func writeConfig(root string, opts Options) error {
	dest := filepath.Join(root, "logicgate.yml")
	if !opts.Force {
		if _, err := os.Stat(dest); err == nil {
			fmt.Fprintf(opts.Out, "  skipped logicgate.yml (exists, use --force to overwrite)\n")
			return nil
		}
	}
	data, err := fs.ReadFile(TemplateFS, "templates/logicgate.yml")
	if err != nil {
		return fmt.Errorf("reading embedded template: %w", err)
	}
	if err := os.WriteFile(dest, data, 0o644); err != nil {
		return fmt.Errorf("writing %s: %w", dest, err)
	}
	fmt.Fprintf(opts.Out, "  created logicgate.yml\n")
	return nil
}

// mergeMCPConfig creates or merges the logicgate entry into .mcp.json.
func mergeMCPConfig(mcpPath string, opts Options) error {
	var cfg mcpConfig

	data, err := os.ReadFile(mcpPath)
	switch {
	case err == nil:
		if err := json.Unmarshal(data, &cfg); err != nil {
			return fmt.Errorf("parsing %s: %w", mcpPath, err)
		}
	case !errors.Is(err, fs.ErrNotExist):
		return fmt.Errorf("reading %s: %w", mcpPath, err)
	}

	if cfg.MCPServers == nil {
		cfg.MCPServers = make(map[string]json.RawMessage)
	}
	if _, exists := cfg.MCPServers["logicgate"]; exists && !opts.Force {
		fmt.Fprintf(opts.Out, "  skipped .mcp.json logicgate entry (exists, use --force to overwrite)\n")
		return nil
	}
	cfg.MCPServers["logicgate"] = mcpEntry

	out, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling .mcp.json: %w", err)
	}
	if err := os.WriteFile(mcpPath, append(out, '\n'), 0o644); err != nil {
		return fmt.Errorf("writing %s: %w", mcpPath, err)
	}

	action := "created"
	if data != nil {
		action = "updated"
	}
	fmt.Fprintf(opts.Out, "  %s .mcp.json with logicgate MCP server\n", action)
	return nil
}
