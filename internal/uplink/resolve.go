package uplink

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
	"google.golang.org/genai"

	"sentientgrid/internal/dispatch"
)

// controlFunctions is the closed set of operations the command resolver may
// return. The dispatcher re-validates every call against the same names.
var controlFunctions = []*genai.FunctionDeclaration{
	{
		Name:        dispatch.FnUpdateConfig,
		Description: "Update agent system parameters like risk, depth, core engine type or sync toggle.",
		Parameters: &genai.Schema{
			Type: genai.TypeObject,
			Properties: map[string]*genai.Schema{
				"risk":     {Type: genai.TypeNumber, Description: "Risk tolerance percentage (0-100)"},
				"depth":    {Type: genai.TypeNumber, Description: "Search depth in Light Years (10-100)"},
				"coreType": {Type: genai.TypeString, Enum: []string{"STANDARD", "TURBO"}, Description: "The processing engine type"},
				"autoSync": {Type: genai.TypeBoolean, Description: "Toggle automatic telemetry synchronization"},
			},
		},
	},
	{
		Name:        dispatch.FnTriggerScout,
		Description: "Initiate a new scouting cycle for game assets.",
		Parameters: &genai.Schema{
			Type: genai.TypeObject,
			Properties: map[string]*genai.Schema{
				"focus": {Type: genai.TypeString, Description: "Optional specific focus for the scout (e.g. cybernetic wings, neon textures)"},
			},
		},
	},
	{
		Name:        dispatch.FnHealSector,
		Description: "Initiate repair on a specific grid sector or all critical sectors.",
		Parameters: &genai.Schema{
			Type: genai.TypeObject,
			Properties: map[string]*genai.Schema{
				"sectorName": {Type: genai.TypeString, Description: "Name of the sector to repair. If omitted, repairs all criticals."},
			},
		},
	},
}

// Resolve interprets a free-text operator command into narration or
// structured calls from the control set.
func (c *Client) Resolve(ctx context.Context, command string) (dispatch.Resolution, error) {
	client, err := c.ensureClient(ctx)
	if err != nil {
		return dispatch.Resolution{}, err
	}

	start := time.Now()
	resp, err := client.Models.GenerateContent(ctx, c.flashModel, genai.Text(command), &genai.GenerateContentConfig{
		SystemInstruction: systemContent(dispatch.SystemInstruction),
		Tools:             []*genai.Tool{{FunctionDeclarations: controlFunctions}},
	})
	if err != nil {
		return dispatch.Resolution{}, fmt.Errorf("command resolution failed: %w", err)
	}

	res := dispatch.Resolution{Narration: resp.Text()}
	for _, fc := range resp.FunctionCalls() {
		res.Calls = append(res.Calls, dispatch.Call{Name: fc.Name, Args: fc.Args})
	}

	c.logger.Debug("command resolved",
		zap.Duration("elapsed", time.Since(start)),
		zap.Int("calls", len(res.Calls)),
		zap.Int("narration_len", len(res.Narration)))
	return res, nil
}
