package main

import (
	"strings"

	"github.com/spf13/cobra"

	"github.com/PentesterFlow/OpenExplorer/internal/output"
	"github.com/PentesterFlow/OpenExplorer/pkg/model"
)

// Catalog flags
var (
	catService  string
	catCategory string
)

func newCatalogCmd() *cobra.Command {
	catalogCmd := &cobra.Command{
		Use:   "catalog",
		Short: "Browse the API catalog",
	}

	listCmd := &cobra.Command{
		Use:   "list",
		Short: "List API definitions",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return out.Write(output.Definitions(listDefinitions()))
		},
	}
	listCmd.Flags().StringVar(&catService, "service", "", "Only this service (eapi, cloudvision, eos_rest, telemetry)")
	listCmd.Flags().StringVar(&catCategory, "category", "", "Only this category")

	searchCmd := &cobra.Command{
		Use:   "search <query>",
		Short: "Search definitions by id, path, description or tag",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return out.Write(output.Definitions(app.Catalog().Search(args[0])))
		},
	}

	showCmd := &cobra.Command{
		Use:   "show <definition-id>",
		Short: "Show one API definition",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var (
				def model.APIDefinition
				err error
			)
			if catService != "" {
				def, err = app.Catalog().Lookup(catService, args[0])
			} else {
				def, err = app.Catalog().Find(args[0])
			}
			if err != nil {
				return err
			}
			return out.Write(output.Definition(def))
		},
	}
	showCmd.Flags().StringVar(&catService, "service", "", "Service partition to look in")

	catalogCmd.AddCommand(listCmd, searchCmd, showCmd)
	return catalogCmd
}

func listDefinitions() []model.APIDefinition {
	c := app.Catalog()
	var defs []model.APIDefinition
	switch {
	case catService != "":
		defs = c.Service(catService)
	case catCategory != "":
		return c.ByCategory(catCategory)
	default:
		return c.All()
	}

	if catCategory == "" {
		return defs
	}
	filtered := defs[:0]
	for _, def := range defs {
		if strings.EqualFold(def.Category, catCategory) {
			filtered = append(filtered, def)
		}
	}
	return filtered
}
