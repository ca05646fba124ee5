package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/relicta-tech/releasekit/internal/domain/monorepo"
)

var graphFormat string

var graphCmd = &cobra.Command{
	Use:   "graph",
	Short: "Print the dependency graph levels",
	Long: `Print the packages of each workspace grouped into dependency levels.
Level 0 packages depend on no other package of the workspace; every other
package depends only on packages in lower levels.`,
	RunE: runGraph,
}

func init() {
	graphCmd.Flags().StringVarP(&graphFormat, "format", "f", "text", "output format (text, json, yaml, dot)")
}

// graphView is the serialized form of one workspace graph.
type graphView struct {
	Workspace string        `json:"workspace" yaml:"workspace"`
	Levels    [][]string    `json:"levels" yaml:"levels"`
	Packages  []packageView `json:"packages" yaml:"packages"`
}

type packageView struct {
	Name         string   `json:"name" yaml:"name"`
	Version      string   `json:"version" yaml:"version"`
	Path         string   `json:"path" yaml:"path"`
	Ecosystem    string   `json:"ecosystem" yaml:"ecosystem"`
	Level        int      `json:"level" yaml:"level"`
	Publishable  bool     `json:"publishable" yaml:"publishable"`
	Dependencies []string `json:"dependencies,omitempty" yaml:"dependencies,omitempty"`
	Dependents   []string `json:"dependents,omitempty" yaml:"dependents,omitempty"`
}

func runGraph(cmd *cobra.Command, args []string) error {
	app, err := newContainer()
	if err != nil {
		return err
	}
	labels, err := selectedLabels()
	if err != nil {
		return err
	}

	views := make([]graphView, 0, len(labels))
	for _, label := range labels {
		w, err := app.Workspace(label)
		if err != nil {
			return err
		}
		views = append(views, newGraphView(label, w.Graph))
	}
	return writeGraph(cmd.OutOrStdout(), views, graphFormat)
}

func newGraphView(label string, g *monorepo.DependencyGraph) graphView {
	v := graphView{Workspace: label, Levels: g.Levels()}
	for level, names := range v.Levels {
		for _, name := range names {
			p, _ := g.Package(name)
			v.Packages = append(v.Packages, packageView{
				Name:         p.Name,
				Version:      p.Version,
				Path:         p.Path,
				Ecosystem:    string(p.Ecosystem),
				Level:        level,
				Publishable:  p.Publishable,
				Dependencies: g.Dependencies(name),
				Dependents:   g.Dependents(name),
			})
		}
	}
	return v
}

func writeGraph(w io.Writer, views []graphView, format string) error {
	switch format {
	case "text":
		return writeGraphText(w, views)
	case "json":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(views)
	case "yaml":
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(views); err != nil {
			return err
		}
		return enc.Close()
	case "dot":
		return writeGraphDot(w, views)
	default:
		return fmt.Errorf("unknown graph format %q (want text, json, yaml or dot)", format)
	}
}

func writeGraphText(w io.Writer, views []graphView) error {
	var b strings.Builder
	for i, v := range views {
		if i > 0 {
			b.WriteString("\n")
		}
		b.WriteString(styles.Title.Render(v.Workspace))
		b.WriteString("\n")
		for level, names := range v.Levels {
			fmt.Fprintf(&b, "  level %d: %s\n", level, strings.Join(names, ", "))
		}
	}
	_, err := io.WriteString(w, b.String())
	return err
}

// writeGraphDot renders edges from dependent to dependency, one cluster
// per workspace.
func writeGraphDot(w io.Writer, views []graphView) error {
	var b strings.Builder
	b.WriteString("digraph releasekit {\n")
	b.WriteString("  rankdir=LR;\n")
	for i, v := range views {
		fmt.Fprintf(&b, "  subgraph cluster_%d {\n", i)
		fmt.Fprintf(&b, "    label=%q;\n", v.Workspace)
		for _, p := range v.Packages {
			attrs := ""
			if !p.Publishable {
				attrs = " [style=dashed]"
			}
			fmt.Fprintf(&b, "    %q%s;\n", nodeID(v.Workspace, p.Name), attrs)
		}
		b.WriteString("  }\n")
		for _, p := range v.Packages {
			for _, dep := range p.Dependencies {
				fmt.Fprintf(&b, "  %q -> %q;\n", nodeID(v.Workspace, p.Name), nodeID(v.Workspace, dep))
			}
		}
	}
	b.WriteString("}\n")
	_, err := io.WriteString(w, b.String())
	return err
}

func nodeID(workspace, name string) string {
	return workspace + "/" + name
}
