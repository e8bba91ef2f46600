package cmd

import (
	"fmt"
	"os"

	"audiosession/catalog"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
	"github.com/spf13/cobra"
)

// catalogCmd groups catalog inspection commands
var catalogCmd = &cobra.Command{
	Use:   "catalog",
	Short: "Catalog commands",
	Long:  "Commands for inspecting the named track and effect catalog.",
}

// catalogListCmd lists every catalog entry
var catalogListCmd = &cobra.Command{
	Use:   "list",
	Short: "List tracks and effects",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		c, err := catalog.Load(cfg.Catalog.File)
		if err != nil {
			return err
		}

		t := table.NewWriter()
		t.SetOutputMirror(os.Stdout)
		t.SetStyle(table.StyleLight)
		t.AppendHeader(table.Row{"Kind", "Name", "Key", "Source", "Title"})

		for _, e := range c.Tracks {
			key, _ := catalog.Key(e.Name)
			source := e.Resource
			if e.URL != "" {
				source = text.FgCyan.Sprint(e.URL)
			}
			t.AppendRow(table.Row{"track", e.Name, key, source, e.Title})
		}
		t.AppendSeparator()
		for _, e := range c.Effects {
			key, _ := catalog.Key(e.Name)
			t.AppendRow(table.Row{text.FgYellow.Sprint("effect"), e.Name, key, e.Resource, ""})
		}

		t.Render()
		return nil
	},
}

// catalogKeyCmd prints the lookup key of a name
var catalogKeyCmd = &cobra.Command{
	Use:   "key <name>",
	Short: "Show the lookup key for a name",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		key, err := catalog.Key(args[0])
		if err != nil {
			return err
		}
		fmt.Println(key)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(catalogCmd)
	catalogCmd.AddCommand(catalogListCmd)
	catalogCmd.AddCommand(catalogKeyCmd)
}
