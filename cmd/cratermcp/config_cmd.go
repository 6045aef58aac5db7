package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"pkt.systems/cratermcp"
)

func newConfigCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Manage cratermcp configuration files",
	}
	cmd.AddCommand(newConfigGenCommand())
	return cmd
}

func newConfigGenCommand() *cobra.Command {
	var outPath string
	var force bool
	var stdout bool
	defaultOutput := "$HOME/.cratermcp/" + cratermcp.DefaultConfigFileName
	if path, err := cratermcp.DefaultConfigPath(); err == nil {
		defaultOutput = path
	}

	cmd := &cobra.Command{
		Use:   "gen",
		Short: "Generate a default cratermcp configuration file",
		RunE: func(cmd *cobra.Command, args []string) error {
			if stdout && outPath != "" {
				return fmt.Errorf("--stdout and --out are mutually exclusive")
			}
			data, err := defaultConfigYAML()
			if err != nil {
				return err
			}
			if stdout {
				_, err := cmd.OutOrStdout().Write(data)
				return err
			}
			if outPath == "" {
				path, err := cratermcp.DefaultConfigPath()
				if err != nil {
					return fmt.Errorf("resolve config dir: %w", err)
				}
				outPath = path
			}
			expanded, err := expandPath(outPath)
			if err != nil {
				return fmt.Errorf("expand output path: %w", err)
			}
			if err := os.MkdirAll(filepath.Dir(expanded), 0o700); err != nil {
				return fmt.Errorf("create config dir: %w", err)
			}
			if !force {
				if _, err := os.Stat(expanded); err == nil {
					return fmt.Errorf("config file %s already exists (use --force to overwrite)", expanded)
				} else if !errors.Is(err, os.ErrNotExist) {
					return fmt.Errorf("stat config file: %w", err)
				}
			}
			// Credentials end up in this file.
			if err := os.WriteFile(expanded, data, 0o600); err != nil {
				return fmt.Errorf("write config file: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "wrote default config to %s\n", expanded)
			return nil
		},
	}

	cmd.Flags().StringVar(&outPath, "out", "", fmt.Sprintf("output path for generated config (defaults to %s)", defaultOutput))
	cmd.Flags().BoolVar(&force, "force", false, "overwrite the target file if it already exists")
	cmd.Flags().BoolVar(&stdout, "stdout", false, "print the config to stdout instead of writing a file")
	return cmd
}

type craterDefaults struct {
	URL         string `yaml:"url"`
	Email       string `yaml:"email"`
	Password    string `yaml:"password"`
	APIToken    string `yaml:"api_token"`
	DeviceName  string `yaml:"device_name"`
	HTTPTimeout string `yaml:"http_timeout"`
}

type mcpDefaults struct {
	Transport string `yaml:"transport"`
	Listen    string `yaml:"listen"`
	Port      int    `yaml:"port"`
	Token     string `yaml:"token"`
}

type configDefaults struct {
	LogLevel       string         `yaml:"log-level"`
	Crater         craterDefaults `yaml:"crater"`
	MCP            mcpDefaults    `yaml:"mcp"`
	MetricsListen  string         `yaml:"metrics_listen"`
	PprofListen    string         `yaml:"pprof_listen"`
	RuntimeMetrics bool           `yaml:"runtime_metrics"`
	OTLPEndpoint   string         `yaml:"otlp_endpoint"`
}

func defaultConfigYAML() ([]byte, error) {
	defaults := configDefaults{
		LogLevel: "info",
		Crater: craterDefaults{
			URL:         cratermcp.DefaultCraterURL,
			DeviceName:  cratermcp.DefaultDeviceName,
			HTTPTimeout: cratermcp.DefaultHTTPTimeout.String(),
		},
		MCP: mcpDefaults{
			Transport: cratermcp.DefaultTransport,
			Port:      cratermcp.DefaultPort,
		},
		MetricsListen: cratermcp.DefaultMetricsListen,
		PprofListen:   cratermcp.DefaultPprofListen,
	}
	data, err := yaml.Marshal(defaults)
	if err != nil {
		return nil, fmt.Errorf("marshal default config: %w", err)
	}
	return data, nil
}
