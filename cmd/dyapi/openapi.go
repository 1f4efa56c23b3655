package dyapi

import (
	"encoding/json"
	"fmt"

	"github.com/edgeflare/dyapi/pkg/api"
	"github.com/edgeflare/dyapi/pkg/config"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

var openapiFormat string

var openapiCmd = &cobra.Command{
	Use:   "openapi",
	Short: "Print the OpenAPI document of the configured entities",
	Args:  cobra.NoArgs,
	RunE:  runOpenAPI,
}

func init() {
	openapiCmd.Flags().StringVarP(&openapiFormat, "format", "f", "json", "output format (json, yaml)")
	openapiCmd.Flags().String("server.baseURL", "", "public base URL advertised in the document")
}

func runOpenAPI(cmd *cobra.Command, _ []string) error {
	tree, err := api.New(cfg.Entities, storageManager(nil))
	if err != nil {
		return err
	}
	doc := tree.OpenAPI(api.Info{Title: "dyapi", Version: config.Version, BaseURL: cfg.Server.BaseURL})

	out := cmd.OutOrStdout()
	switch openapiFormat {
	case "json":
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(doc)
	case "yaml", "yml":
		enc := yaml.NewEncoder(out)
		enc.SetIndent(2)
		defer enc.Close()
		return enc.Encode(doc)
	default:
		return fmt.Errorf("unsupported format %q", openapiFormat)
	}
}
