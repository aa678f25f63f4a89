package automaton

import (
	"fmt"
	"io"
	"strings"
)

// ExportDOT writes a Graphviz rendering of g to w.
func ExportDOT(w io.Writer, g *Graph) error {
	var b strings.Builder
	fmt.Fprintln(&b, "digraph G {")
	fmt.Fprintln(&b, "    rankdir=LR;")

	for id, s := range g.States {
		shape := "circle"
		label := fmt.Sprintf("q%d", id)
		if a := s.Action; a != nil {
			switch {
			case a.Kind == KindAntiAccepting:
				shape = "octagon"
			case a.Kind != KindNone:
				shape = "doublecircle"
			}
			label += "\\n" + a.String()
		}
		if id == g.Dead {
			shape = "point"
		}
		fmt.Fprintf(&b, "    q%d [shape=%s, label=\"%s\"];\n", id, shape, label)

		for _, t := range s.Trans {
			if t.Target == g.Dead {
				continue // dead edges only add noise
			}
			style := ""
			switch {
			case t.Range.Low.IsTrigger():
				style = ", style=dashed"
			case t.Range.Low.IsUnsatisfiable():
				style = ", style=dotted"
			}
			fmt.Fprintf(&b, "    q%d -> q%d [label=\"%s\"%s];\n", id, t.Target, t.Range, style)
		}
	}
	if g.Len() > 0 {
		fmt.Fprintf(&b, "    _start [shape=point]; _start -> q%d;\n", g.Start)
	}
	fmt.Fprintln(&b, "}")

	_, err := io.WriteString(w, b.String())
	return err
}
