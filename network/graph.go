package network

import (
	"bytes"
	"fmt"
	"text/template"

	"github.com/awalterschulze/gographviz"
	"github.com/pkg/errors"
)

type layerNode struct {
	ID     int
	Layer  string
	Input  string
	Output string
}

// ToDot returns the layer chain in graphviz's DOT format.
func (n *Network) ToDot() (string, error) {
	g := gographviz.NewGraph()
	if err := g.SetName("G"); err != nil {
		return "", errors.WithStack(err)
	}
	if err := g.SetDir(true); err != nil {
		return "", errors.WithStack(err)
	}

	if err := g.AddNode("G", "input", map[string]string{
		"shape": "box",
		"label": fmt.Sprintf("%q", "input "+n.in.String()),
	}); err != nil {
		return "", errors.WithStack(err)
	}
	prev := "input"

	var buf bytes.Buffer
	for i, l := range n.layers {
		ln := layerNode{
			ID:     i,
			Layer:  l.String(),
			Input:  l.InputShape().String(),
			Output: l.OutputShape().String(),
		}
		if err := tmpl.Execute(&buf, ln); err != nil {
			return "", errors.WithMessagef(err, "layer %d", i)
		}
		attrs := map[string]string{
			"fontname": "Monaco",
			"shape":    "none",
			"label":    buf.String(),
		}
		name := fmt.Sprintf("layer%d", i)
		if err := g.AddNode("G", name, attrs); err != nil {
			return "", errors.WithStack(err)
		}
		buf.Reset()

		if err := g.AddEdge(prev, name, true, nil); err != nil {
			return "", errors.WithStack(err)
		}
		prev = name
	}
	return g.String(), nil
}

const tmplRaw = `<
<TABLE BORDER="0" CELLBORDER="1" CELLSPACING="0">
<TR><TD>Layer</TD><TD>{{.ID}}</TD></TR>
<TR><TD>Type</TD><TD>{{.Layer}}</TD></TR>
<TR><TD>Input</TD><TD>{{.Input}}</TD></TR>
<TR><TD>Output</TD><TD>{{.Output}}</TD></TR>
</TABLE>
>
`

var tmpl *template.Template

func init() {
	tmpl = template.Must(template.New("name").Parse(tmplRaw))
}
