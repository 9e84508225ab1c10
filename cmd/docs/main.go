// docs renders a schema and TTL reference for every configured table as
// HTML.
package main

import (
	"bytes"
	"flag"
	"fmt"
	"log"
	"os"
	"sort"
	"strings"

	"github.com/yuin/goldmark"

	"mergetree-writer/internal/catalog"
	"mergetree-writer/pkg/types"
)

func main() {
	schemaPath := flag.String("schema", "./schema/tables.yaml", "path to table schema YAML file")
	outPath := flag.String("out", "", "write rendered HTML here instead of stdout")
	flag.Parse()

	schemas, err := catalog.LoadTableSchemas(*schemaPath)
	if err != nil {
		log.Fatalf("load table schemas: %v", err)
	}

	markdown := renderMarkdown(schemas)

	var html bytes.Buffer
	if err := goldmark.Convert([]byte(markdown), &html); err != nil {
		log.Fatalf("render markdown: %v", err)
	}

	if *outPath == "" {
		fmt.Print(html.String())
		return
	}
	if err := os.WriteFile(*outPath, html.Bytes(), 0o644); err != nil {
		log.Fatalf("write %s: %v", *outPath, err)
	}
}

func renderMarkdown(schemas map[string]types.TableSchema) string {
	names := make([]string, 0, len(schemas))
	for name := range schemas {
		names = append(names, name)
	}
	sort.Strings(names)

	var b strings.Builder
	b.WriteString("# Table schema reference\n\n")
	for _, name := range names {
		schema := schemas[name]
		fmt.Fprintf(&b, "## %s\n\n", schema.TableName)
		fmt.Fprintf(&b, "- Merging mode: `%s`\n", schema.MergingParams.Mode)
		fmt.Fprintf(&b, "- Sorting key: `%s`\n", strings.Join(schema.SortingKey, ", "))
		fmt.Fprintf(&b, "- Format version: %s\n\n", formatVersion(schema.FormatVersionV0))

		b.WriteString("### Columns\n\n")
		b.WriteString("| Name | Type |\n|---|---|\n")
		for _, col := range schema.Columns {
			fmt.Fprintf(&b, "| %s | %s |\n", col.Name, col.Type)
		}
		b.WriteString("\n")

		if len(schema.TTLEntries) > 0 {
			b.WriteString("### TTL\n\n")
			b.WriteString("| Category | Name |\n|---|---|\n")
			for _, ttl := range schema.TTLEntries {
				fmt.Fprintf(&b, "| %s | %s |\n", ttl.Category, ttl.Name)
			}
			b.WriteString("\n")
		}

		if len(schema.Projections) > 0 {
			b.WriteString("### Projections\n\n")
			for _, proj := range schema.Projections {
				fmt.Fprintf(&b, "- **%s** (%s), sorting key `%s`\n", proj.Name, proj.Type, strings.Join(proj.SortingKey, ", "))
			}
			b.WriteString("\n")
		}
	}
	return b.String()
}

func formatVersion(v0 bool) string {
	if v0 {
		return "v0"
	}
	return "v1"
}
