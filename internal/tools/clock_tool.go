// In file: internal/tools/clock_tool.go
package tools

import (
	"encoding/json"
	"fmt"
	"time"
)

// --- Clock Tool Implementation ---

// ClockTool reports the current date and time, optionally in a requested
// IANA time zone.
type ClockTool struct {
	// now is swappable so tests can pin the clock.
	now func() time.Time
}

// Statically verify that ClockTool implements the ToolExecutor interface.
var _ ToolExecutor = (*ClockTool)(nil)

// NewClockTool creates a new instance of the ClockTool.
func NewClockTool() *ClockTool {
	return &ClockTool{now: time.Now}
}

// Definition describes the tool to the LLM.
func (ct *ClockTool) Definition() Tool {
	return NewFunctionTool(
		"current_time",
		"Returns the current date and time. Accepts an optional IANA time zone such as 'Asia/Kolkata' or 'America/New_York'; defaults to UTC.",
		JSONSchema{
			Type: "object",
			Properties: map[string]*JSONSchema{
				"timezone": {
					Type:        "string",
					Description: "IANA time zone name, e.g. 'Europe/London'. Defaults to UTC when omitted.",
				},
			},
		},
	)
}

// Execute resolves the requested zone and formats the current time. An
// unknown zone comes back as tool-result text the model can relay.
func (ct *ClockTool) Execute(arguments string) (string, error) {
	var args struct {
		Timezone string `json:"timezone"`
	}
	if arguments != "" {
		if err := json.Unmarshal([]byte(arguments), &args); err != nil {
			return "", fmt.Errorf("invalid arguments for clock: %w", err)
		}
	}

	loc := time.UTC
	if args.Timezone != "" {
		var err error
		loc, err = time.LoadLocation(args.Timezone)
		if err != nil {
			return fmt.Sprintf("Error: Unknown time zone '%s'. Please use an IANA name like 'Asia/Tokyo'.", args.Timezone), nil
		}
	}

	now := ct.now().In(loc)
	return fmt.Sprintf("The current time in %s is %s.", loc.String(), now.Format("Monday, 2 January 2006, 15:04 MST")), nil
}
