package plan

import (
	"fmt"
	"strings"
)

// Explain renders a cursor tree as the depth-indented, '*'-per-operator
// text spec.md §6 describes: branching operators (Optional, Merge,
// Cartesian) print their non-primary child under a "|\" prefix at one
// extra indent level.
func Explain(root Cursor) string {
	var b strings.Builder
	explainNode(&b, root, 0)
	return b.String()
}

func explainNode(b *strings.Builder, c Cursor, depth int) {
	if c == nil {
		return
	}
	fmt.Fprintf(b, "%s* %s\n", strings.Repeat(" ", depth*2), operatorName(c))

	switch op := c.(type) {
	case *Optional:
		explainBranch(b, op.Branch, depth+1)
		explainNode(b, op.Input, depth)
	case *Merge:
		explainBranch(b, op.CreateBranch, depth+1)
		explainBranch(b, op.MatchBranch, depth+1)
		explainNode(b, op.Input, depth)
	case *Cartesian:
		explainBranch(b, op.Right, depth+1)
		explainNode(b, op.Left, depth)
	case *ScanAll:
		explainNode(b, op.Input, depth)
	case *ScanAllByLabel:
		explainNode(b, op.Input, depth)
	case *ScanAllByLabelPropertyValue:
		explainNode(b, op.Input, depth)
	case *ScanAllByLabelPropertyRange:
		explainNode(b, op.Input, depth)
	case *Expand:
		explainNode(b, op.Input, depth)
	case *ExpandVariable:
		explainNode(b, op.Input, depth)
	case *Filter:
		explainNode(b, op.Input, depth)
	case *ExpandUniquenessFilter:
		explainNode(b, op.Input, depth)
	case *ConstructNamedPath:
		explainNode(b, op.Input, depth)
	case *Skip:
		explainNode(b, op.Input, depth)
	case *Limit:
		explainNode(b, op.Input, depth)
	case *OrderBy:
		explainNode(b, op.Input, depth)
	case *Distinct:
		explainNode(b, op.Input, depth)
	case *Unwind:
		explainNode(b, op.Input, depth)
	case *Produce:
		explainNode(b, op.Input, depth)
	case *Accumulate:
		explainNode(b, op.Input, depth)
	case *Aggregate:
		explainNode(b, op.Input, depth)
	case *Call:
		explainNode(b, op.Input, depth)
	case *CreateNode:
		explainNode(b, op.Input, depth)
	case *CreateExpand:
		explainNode(b, op.Input, depth)
	case *SetProperty:
		explainNode(b, op.Input, depth)
	case *SetProperties:
		explainNode(b, op.Input, depth)
	case *SetLabels:
		explainNode(b, op.Input, depth)
	case *RemoveProperty:
		explainNode(b, op.Input, depth)
	case *RemoveLabels:
		explainNode(b, op.Input, depth)
	case *Delete:
		explainNode(b, op.Input, depth)
	}
}

func explainBranch(b *strings.Builder, c Cursor, depth int) {
	if c == nil {
		return
	}
	fmt.Fprintf(b, "%s|\\\n", strings.Repeat(" ", (depth-1)*2+1))
	explainNode(b, c, depth)
}

func operatorName(c Cursor) string {
	switch c.(type) {
	case *Once:
		return "Once"
	case *ScanAll:
		return "ScanAll"
	case *ScanAllByLabel:
		return "ScanAllByLabel"
	case *ScanAllByLabelPropertyValue:
		return "ScanAllByLabelPropertyValue"
	case *ScanAllByLabelPropertyRange:
		return "ScanAllByLabelPropertyRange"
	case *Expand:
		return "Expand"
	case *ExpandVariable:
		return "ExpandVariable"
	case *Filter:
		return "Filter"
	case *ExpandUniquenessFilter:
		return "ExpandUniquenessFilter"
	case *ConstructNamedPath:
		return "ConstructNamedPath"
	case *Optional:
		return "Optional"
	case *Merge:
		return "Merge"
	case *Produce:
		return "Produce"
	case *Aggregate:
		return "Aggregate"
	case *Skip:
		return "Skip"
	case *Limit:
		return "Limit"
	case *OrderBy:
		return "OrderBy"
	case *Distinct:
		return "Distinct"
	case *Unwind:
		return "Unwind"
	case *Cartesian:
		return "Cartesian"
	case *Accumulate:
		return "Accumulate"
	case *Call:
		return "Call"
	case *CreateNode:
		return "CreateNode"
	case *CreateExpand:
		return "CreateExpand"
	case *SetProperty:
		return "SetProperty"
	case *SetProperties:
		return "SetProperties"
	case *SetLabels:
		return "SetLabels"
	case *RemoveProperty:
		return "RemoveProperty"
	case *RemoveLabels:
		return "RemoveLabels"
	case *Delete:
		return "Delete"
	case *CreateIndexOp:
		return "CreateIndex"
	case *controlOp:
		return "Control"
	case *gate:
		return "Gate"
	default:
		return fmt.Sprintf("%T", c)
	}
}
