// Package visualization renders network snapshots in various output formats.
package visualization

import (
	"bytes"
	"encoding/json"
	"fmt"
	"html/template"
	"strings"

	"github.com/nvandessel/evonet/internal/network"
)

// Format specifies the output format for graph rendering.
type Format string

const (
	FormatDOT  Format = "dot"
	FormatJSON Format = "json"
	FormatHTML Format = "html"
)

// ParseFormat validates a format name.
func ParseFormat(s string) (Format, error) {
	switch f := Format(strings.ToLower(s)); f {
	case FormatDOT, FormatJSON, FormatHTML:
		return f, nil
	}
	return "", fmt.Errorf("unknown graph format %q (want dot, json or html)", s)
}

// Node roles used for colors and shapes.
const (
	roleInput    = "input"
	roleHidden   = "hidden"
	roleOutput   = "output"
	roleConstant = "constant"
)

// nodeColors maps node roles to DOT colors.
var nodeColors = map[string]string{
	roleInput:    "steelblue",
	roleHidden:   "lightgray",
	roleOutput:   "mediumseagreen",
	roleConstant: "goldenrod",
}

// nodeShapes maps node roles to DOT shapes.
var nodeShapes = map[string]string{
	roleInput:    "box",
	roleHidden:   "circle",
	roleOutput:   "doublecircle",
	roleConstant: "diamond",
}

func role(nr network.NodeRecord) string {
	switch {
	case nr.Kind == network.Input:
		return roleInput
	case nr.Output:
		return roleOutput
	case nr.Constant:
		return roleConstant
	}
	return roleHidden
}

// nodeName is the stable identifier of the node at position i.
func nodeName(i int) string {
	return fmt.Sprintf("n%d", i)
}

// labels gives inputs and outputs their port numbers; hidden nodes show
// their squash.
func labels(s network.Snapshot) []string {
	out := make([]string, len(s.Nodes))
	in, o := 0, 0
	for i, nr := range s.Nodes {
		switch role(nr) {
		case roleInput:
			out[i] = fmt.Sprintf("in%d", in)
			in++
		case roleOutput:
			out[i] = fmt.Sprintf("out%d\n%s", o, nr.Squash)
			o++
		default:
			out[i] = fmt.Sprintf("%s\n%s", nodeName(i), nr.Squash)
		}
	}
	return out
}

func weightOf(s network.Snapshot, cr network.ConnRecord) float64 {
	if cr.Weight < 0 || cr.Weight >= len(s.Weights) {
		return 0
	}
	return s.Weights[cr.Weight]
}

// RenderDOT produces a Graphviz DOT representation of a network. Inputs are
// boxes, outputs double circles; gated connections are dashed and name
// their gater.
func RenderDOT(s network.Snapshot) string {
	names := labels(s)

	var b strings.Builder
	b.WriteString("digraph evonet {\n")
	b.WriteString("  rankdir=LR;\n")
	b.WriteString("  node [style=filled, fontname=\"Helvetica\"];\n")
	b.WriteString("  edge [fontname=\"Helvetica\", fontsize=10];\n\n")

	var inputs []string
	for i, nr := range s.Nodes {
		r := role(nr)
		if r == roleInput {
			inputs = append(inputs, nodeName(i))
		}
		fmt.Fprintf(&b, "  %s [label=%q, shape=%s, fillcolor=%q, tooltip=\"bias=%.4f\"];\n",
			nodeName(i), names[i], nodeShapes[r], nodeColors[r], nr.Bias)
	}
	if len(inputs) > 0 {
		fmt.Fprintf(&b, "  { rank=source; %s; }\n", strings.Join(inputs, "; "))
	}
	b.WriteString("\n")

	for _, cr := range s.Connections {
		label := fmt.Sprintf("%.3f", weightOf(s, cr))
		style := "solid"
		if cr.Gater >= 0 {
			style = "dashed"
			label += " [" + nodeName(cr.Gater) + "]"
		}
		fmt.Fprintf(&b, "  %s -> %s [label=%q, style=%s];\n",
			nodeName(cr.From), nodeName(cr.To), label, style)
	}

	b.WriteString("}\n")
	return b.String()
}

// RenderJSON produces a JSON graph representation with nodes and edges arrays.
func RenderJSON(s network.Snapshot) map[string]interface{} {
	names := labels(s)

	jsonNodes := make([]map[string]interface{}, 0, len(s.Nodes))
	for i, nr := range s.Nodes {
		jsonNodes = append(jsonNodes, map[string]interface{}{
			"id":     nodeName(i),
			"index":  i,
			"label":  strings.ReplaceAll(names[i], "\n", " "),
			"role":   role(nr),
			"squash": nr.Squash.String(),
			"bias":   nr.Bias,
			"mask":   nr.Mask,
		})
	}

	jsonEdges := make([]map[string]interface{}, 0, len(s.Connections))
	gated := 0
	for _, cr := range s.Connections {
		edge := map[string]interface{}{
			"source": nodeName(cr.From),
			"target": nodeName(cr.To),
			"weight": weightOf(s, cr),
			"cell":   cr.Weight,
			"self":   cr.From == cr.To,
			"gater":  "",
		}
		if cr.Gater >= 0 {
			edge["gater"] = nodeName(cr.Gater)
			gated++
		}
		jsonEdges = append(jsonEdges, edge)
	}

	return map[string]interface{}{
		"nodes":        jsonNodes,
		"edges":        jsonEdges,
		"node_count":   len(jsonNodes),
		"edge_count":   len(jsonEdges),
		"gated_count":  gated,
		"weight_count": len(s.Weights),
	}
}

// htmlTemplateData holds data passed to the HTML template.
// GraphJSON is pre-sanitized JSON (via json.HTMLEscape) safe for inline <script>.
type htmlTemplateData struct {
	Title      string
	GraphJSON  template.JS
	APIBaseURL string
	Nodes      []map[string]interface{}
	Edges      []map[string]interface{}
}

// RenderHTML produces a self-contained HTML page describing the network.
func RenderHTML(title string, s network.Snapshot) ([]byte, error) {
	return renderHTML(title, s, "")
}

// RenderHTMLForServer is RenderHTML with the activation form pointed at
// apiBaseURL.
func RenderHTMLForServer(title string, s network.Snapshot, apiBaseURL string) ([]byte, error) {
	return renderHTML(title, s, apiBaseURL)
}

func renderHTML(title string, s network.Snapshot, apiBaseURL string) ([]byte, error) {
	graphData := RenderJSON(s)

	graphJSON, err := json.Marshal(graphData)
	if err != nil {
		return nil, fmt.Errorf("marshal graph data: %w", err)
	}

	tmplBytes, err := templates.ReadFile("templates/network.html.tmpl")
	if err != nil {
		return nil, fmt.Errorf("read HTML template: %w", err)
	}
	tmpl, err := template.New("network").Parse(string(tmplBytes))
	if err != nil {
		return nil, fmt.Errorf("parse HTML template: %w", err)
	}

	// json.HTMLEscape rewrites <, > and & so names cannot close the script tag.
	var escaped bytes.Buffer
	json.HTMLEscape(&escaped, graphJSON)

	var buf bytes.Buffer
	data := htmlTemplateData{
		Title:      title,
		GraphJSON:  template.JS(escaped.String()), // #nosec G203
		APIBaseURL: apiBaseURL,
		Nodes:      graphData["nodes"].([]map[string]interface{}),
		Edges:      graphData["edges"].([]map[string]interface{}),
	}
	if err := tmpl.Execute(&buf, data); err != nil {
		return nil, fmt.Errorf("execute HTML template: %w", err)
	}
	return buf.Bytes(), nil
}
