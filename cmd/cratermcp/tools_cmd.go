package main

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"pkt.systems/cratermcp/mcp"
)

func newToolsCommand() *cobra.Command {
	var format string
	cmd := &cobra.Command{
		Use:   "tools",
		Short: "Print the MCP tools/list response served by cratermcp",
		Long: `Print the tool catalog exactly as an MCP host sees it from tools/list,
including input schemas. No Crater installation is contacted.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := mcp.BuildToolsListResponseJSON(cmd.Context())
			if err != nil {
				return err
			}
			switch strings.ToLower(strings.TrimSpace(format)) {
			case "", "json":
			case "yaml", "yml":
				var doc any
				if err := json.Unmarshal(data, &doc); err != nil {
					return fmt.Errorf("decode tools list: %w", err)
				}
				data, err = yaml.Marshal(doc)
				if err != nil {
					return fmt.Errorf("encode tools list: %w", err)
				}
			default:
				return fmt.Errorf("unsupported format %q (use json or yaml)", format)
			}
			out := cmd.OutOrStdout()
			if _, err := out.Write(data); err != nil {
				return err
			}
			if len(data) > 0 && data[len(data)-1] != '\n' {
				_, err = fmt.Fprintln(out)
			}
			return err
		},
	}
	cmd.Flags().StringVarP(&format, "format", "o", "json", "output format (json or yaml)")
	return cmd
}
