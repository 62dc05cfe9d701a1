package subgraphcall

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/n9te9/graphql-parser/ast"
)

// renderSelections renders a partition's top-level field selections as a
// query/mutation body: "{ field1 { ... } field2 }". Grounded on
// federation/executor/query_builder_v2.go's writeSelection/writeValue, kept
// in the same recursive-writer style but operating directly on
// ast.Selection trees instead of planner.StepV2.
func renderSelections(sb *strings.Builder, selections []ast.Selection, indent string) {
	for _, sel := range selections {
		writeSelection(sb, sel, indent)
	}
}

func writeSelection(sb *strings.Builder, sel ast.Selection, indent string) {
	switch s := sel.(type) {
	case *ast.Field:
		sb.WriteString(indent)
		if s.Alias != nil && s.Alias.String() != "" {
			sb.WriteString(s.Alias.String())
			sb.WriteString(": ")
		}
		sb.WriteString(s.Name.String())
		if len(s.Arguments) > 0 {
			sb.WriteString("(")
			for i, arg := range s.Arguments {
				if i > 0 {
					sb.WriteString(", ")
				}
				sb.WriteString(arg.Name.String())
				sb.WriteString(": ")
				writeValue(sb, arg.Value)
			}
			sb.WriteString(")")
		}
		writeDirectives(sb, s.Directives)
		if len(s.SelectionSet) > 0 {
			sb.WriteString(" {\n")
			renderSelections(sb, s.SelectionSet, indent+"  ")
			sb.WriteString(indent)
			sb.WriteString("}")
		}
		sb.WriteString("\n")

	case *ast.InlineFragment:
		sb.WriteString(indent)
		sb.WriteString("... on ")
		if s.TypeCondition != nil {
			sb.WriteString(s.TypeCondition.Name.String())
		}
		sb.WriteString(" {\n")
		renderSelections(sb, s.SelectionSet, indent+"  ")
		sb.WriteString(indent)
		sb.WriteString("}\n")

	case *ast.FragmentSpread:
		sb.WriteString(indent)
		sb.WriteString("...")
		sb.WriteString(s.Name.String())
		sb.WriteString("\n")
	}
}

// writeDirectives renders any directives still attached to a field.
// federation/partition.pruneSkipInclude removes the fields that @skip/@include
// exclude but leaves the directives on the fields it keeps, so those
// directives are rendered here along with any others.
func writeDirectives(sb *strings.Builder, directives []*ast.Directive) {
	for _, d := range directives {
		sb.WriteString(" @")
		sb.WriteString(d.Name)
		if len(d.Arguments) == 0 {
			continue
		}
		sb.WriteString("(")
		for i, arg := range d.Arguments {
			if i > 0 {
				sb.WriteString(", ")
			}
			sb.WriteString(arg.Name.String())
			sb.WriteString(": ")
			writeValue(sb, arg.Value)
		}
		sb.WriteString(")")
	}
}

func writeValue(sb *strings.Builder, v ast.Value) {
	switch val := v.(type) {
	case *ast.StringValue:
		sb.WriteString(strconv.Quote(val.Value))
	case *ast.IntValue:
		sb.WriteString(fmt.Sprintf("%d", val.Value))
	case *ast.FloatValue:
		sb.WriteString(fmt.Sprintf("%f", val.Value))
	case *ast.BooleanValue:
		sb.WriteString(strconv.FormatBool(val.Value))
	case *ast.Variable:
		sb.WriteString("$")
		sb.WriteString(val.Name)
	case *ast.ListValue:
		sb.WriteString("[")
		for i, e := range val.Values {
			if i > 0 {
				sb.WriteString(", ")
			}
			writeValue(sb, e)
		}
		sb.WriteString("]")
	case *ast.ObjectValue:
		sb.WriteString("{")
		for i, f := range val.Fields {
			if i > 0 {
				sb.WriteString(", ")
			}
			sb.WriteString(f.Name.String())
			sb.WriteString(": ")
			writeValue(sb, f.Value)
		}
		sb.WriteString("}")
	case *ast.EnumValue:
		sb.WriteString(val.Value)
	default:
		sb.WriteString("null")
	}
}
