package cli

import (
	"context"

	"github.com/google/jsonschema-go/jsonschema"
	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/kindred/pkg/model"
	"github.com/urfave/cli/v3"
)

// treeNode is tree.Record without its recursive children, which schema
// inference cannot follow.
type treeNode struct {
	Name           string `json:"name" jsonschema:"display name"`
	Master         int    `json:"mp" jsonschema:"1 for a master profile"`
	Public         int    `json:"pb" jsonschema:"1 for a public profile"`
	Claimed        int    `json:"cl" jsonschema:"1 for a claimed profile"`
	Conflict       int    `json:"pc" jsonschema:"1 when more than two parents were found"`
	Denied         int    `json:"ad" jsonschema:"1 for an access denied position"`
	ID             string `json:"id" jsonschema:"profile id, empty for a placeholder"`
	BirthDate      string `json:"bd"`
	BirthQualifier string `json:"bc"`
	DeathDate      string `json:"dd"`
	DeathQualifier string `json:"dc"`
	BirthLocation  string `json:"bl"`
	DeathLocation  string `json:"dl"`
	Group          string `json:"gp" jsonschema:"lineage group shared by converging lines"`
	Country        string `json:"ct" jsonschema:"birth country code"`
	State          string `json:"st" jsonschema:"birth state code"`
	DeathCountry   string `json:"cd"`
	DeathState     string `json:"sd"`
	Gender         string `json:"gd" jsonschema:"0 placeholder, 1 female, 2 male, 3 unknown or denied"`
	Living         string `json:"lv"`
}

func treeSchema() (*jsonschema.Schema, error) {
	schema, err := jsonschema.For[treeNode](nil)
	if err != nil {
		return nil, err
	}
	schema.Properties["children"] = &jsonschema.Schema{
		Type:  "array",
		Items: &jsonschema.Schema{Ref: "#"},
	}
	return schema, nil
}

func schemaCommand() *cli.Command {
	return &cli.Command{
		Name:      "schema",
		Usage:     "Print the JSON Schema of an output document (tree, matches)",
		ArgsUsage: "<document>",
		Action: func(ctx context.Context, c *cli.Command) error {
			var (
				schema *jsonschema.Schema
				err    error
			)
			switch doc := c.Args().First(); doc {
			case "", "tree":
				schema, err = treeSchema()
			case "matches":
				schema, err = jsonschema.For[[]model.Match](nil)
			default:
				return goerr.New("unknown document", goerr.V("document", doc))
			}
			if err != nil {
				return goerr.Wrap(err, "failed to infer schema")
			}
			return printJSON(c.Root().Writer, schema)
		},
	}
}
