// In file: internal/tools/calculator_tool.go
package tools

import (
	"encoding/json"
	"fmt"
)

// --- Calculator Tool Implementation ---

// CalculatorTool performs basic arithmetic in-process.
type CalculatorTool struct{}

// Statically verify that CalculatorTool implements the ToolExecutor interface.
var _ ToolExecutor = (*CalculatorTool)(nil)

// NewCalculatorTool creates a new instance of the CalculatorTool.
func NewCalculatorTool() *CalculatorTool {
	return &CalculatorTool{}
}

// Definition describes the tool to the LLM. Structured operands avoid fragile
// expression-string parsing on execution.
func (ct *CalculatorTool) Definition() Tool {
	return NewFunctionTool(
		"calculate",
		"Performs a basic arithmetic calculation (add, subtract, multiply, divide).",
		JSONSchema{
			Type: "object",
			Properties: map[string]*JSONSchema{
				"operand1": {
					Type:        "number",
					Description: "The first number in the calculation.",
				},
				"operator": {
					Type:        "string",
					Description: "The operator to use. Must be one of '+', '-', '*', '/'.",
					Enum:        []string{"+", "-", "*", "/"},
				},
				"operand2": {
					Type:        "number",
					Description: "The second number in the calculation.",
				},
			},
			Required: []string{"operand1", "operator", "operand2"},
		},
	)
}

// Execute unmarshals the structured arguments and performs the calculation.
// User-correctable problems (division by zero, bad operator) come back as
// tool-result text the model can relay, not as errors.
func (ct *CalculatorTool) Execute(arguments string) (string, error) {
	var args struct {
		Operand1 float64 `json:"operand1"`
		Operand2 float64 `json:"operand2"`
		Operator string  `json:"operator"`
	}
	if err := json.Unmarshal([]byte(arguments), &args); err != nil {
		return "", fmt.Errorf("invalid arguments for calculator: %w", err)
	}

	var result float64
	switch args.Operator {
	case "+":
		result = args.Operand1 + args.Operand2
	case "-":
		result = args.Operand1 - args.Operand2
	case "*":
		result = args.Operand1 * args.Operand2
	case "/":
		if args.Operand2 == 0 {
			return "Error: Division by zero is not allowed.", nil
		}
		result = args.Operand1 / args.Operand2
	default:
		return fmt.Sprintf("Error: Unsupported operator '%s'. Please use +, -, *, or /.", args.Operator), nil
	}

	// %g avoids trailing zeros (e.g. "10.000000").
	return fmt.Sprintf("The result is %g.", result), nil
}
