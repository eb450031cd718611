package cli

import (
	"fmt"
	"io"
	"strconv"

	"github.com/pterm/pterm"

	"github.com/roach88/sysarch/internal/assembly"
)

// renderTable writes rows under header, or a placeholder line when rows is empty.
func renderTable(w io.Writer, header []string, rows [][]string, empty string) error {
	if len(rows) == 0 {
		_, err := fmt.Fprintln(w, empty)
		return err
	}
	data := make(pterm.TableData, 0, len(rows)+1)
	data = append(data, header)
	data = append(data, rows...)
	out, err := pterm.DefaultTable.WithHasHeader().WithData(data).Srender()
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(w, out)
	return err
}

// renderHierarchy writes the assembly tree with one line per item.
func renderHierarchy(w io.Writer, root *assembly.HierarchyNode) error {
	out, err := pterm.DefaultTree.WithRoot(pterm.TreeNode{
		Children: []pterm.TreeNode{hierarchyNode(root)},
	}).Srender()
	if err != nil {
		return err
	}
	_, err = fmt.Fprint(w, out)
	return err
}

func hierarchyNode(n *assembly.HierarchyNode) pterm.TreeNode {
	node := pterm.TreeNode{Text: fmt.Sprintf("%s [assembly %d] %s", n.Name, n.AssemblyID, n.FileLocation)}
	for _, c := range n.Children {
		switch {
		case c.Assembly != nil:
			child := hierarchyNode(c.Assembly)
			child.Text = c.Item.InstanceName + ": " + child.Text
			node.Children = append(node.Children, child)
		case c.Part != nil:
			node.Children = append(node.Children, pterm.TreeNode{
				Text: fmt.Sprintf("%s: %s [part %d] %s", c.Item.InstanceName, c.Part.Name, c.Part.ID, c.Part.FileLocation),
			})
		}
	}
	return node
}

func itoa(id int64) string { return strconv.FormatInt(id, 10) }

func optItoa(id *int64) string {
	if id == nil {
		return "-"
	}
	return itoa(*id)
}
