package runtime

import (
	"fmt"
	"strings"
	"time"

	"github.com/quillworks/quill/pkg/types"
)

// buildPersona constructs the agent persona fragment: provider
// header, behavioral guidance, and tool usage rules.
func buildPersona(session *types.Session, providerID, modelID string) string {
	var parts []string

	if header := providerHeader(providerID); header != "" {
		parts = append(parts, header)
	}

	parts = append(parts, basePersona)

	if guidance := modelGuidance(modelID); guidance != "" {
		parts = append(parts, guidance)
	}

	if session.Mode == types.ModePlan {
		parts = append(parts, planModeRules(session.PlanPath))
	}

	parts = append(parts, toolRules)

	return strings.Join(parts, "\n\n")
}

const basePersona = `You are an autonomous workspace agent. You act on the user's
workspace through tools: reading, writing, and searching files. Work
step by step, verify the state of a file before changing it, and
report what you did when you finish.`

func providerHeader(providerID string) string {
	switch providerID {
	case "anthropic":
		return `You are Claude, an AI assistant made by Anthropic. You are helpful, harmless, and honest.

IMPORTANT: You have access to tools that read and write files in the user's workspace. Use them responsibly.`
	case "openai":
		return `You are a helpful AI assistant with access to tools for reading, writing, and searching workspace files.

Use tools responsibly and follow user instructions carefully.`
	default:
		return ""
	}
}

func modelGuidance(modelID string) string {
	switch {
	case strings.Contains(modelID, "claude"):
		return `When using tools, be decisive and take action. Don't ask for confirmation unless absolutely necessary.

For file operations:
- Read files before editing to understand context
- Make minimal, focused changes
- Preserve existing content style and formatting`
	case strings.Contains(modelID, "gpt"), strings.Contains(modelID, "o1"):
		return `When working with files:
- Always read files before making changes
- Make precise, targeted edits
- Follow existing conventions`
	default:
		return ""
	}
}

func planModeRules(planPath string) string {
	target := "/plans"
	if planPath != "" {
		target = planPath
	}
	return fmt.Sprintf(`# Plan Mode

You are in plan mode: propose changes instead of making them. You may
only write to plan files (%s or any *.plan file). Reading and
searching the workspace is unrestricted. Record your proposed steps in
the plan; do not modify other files.`, target)
}

const toolRules = `# Tool Usage

1. File operations
   - Use read before edit; edit for surgical changes, write for new files
   - Always provide absolute workspace paths
2. Search
   - Use search for file discovery by glob, grep for content matches
   - Be specific with patterns to avoid noise
3. Questions
   - Use ask when a decision genuinely needs the user; batch related
     questions into one call`

// environmentInfo renders the low-priority environment fragment.
func environmentInfo(session *types.Session) string {
	var b strings.Builder
	b.WriteString("# Environment\n\n")
	fmt.Fprintf(&b, "Workspace: %s\n", session.WorkspaceID)
	fmt.Fprintf(&b, "Mode: %s\n", session.Mode)
	fmt.Fprintf(&b, "Current Date: %s\n", time.Now().Format("2006-01-02"))
	return b.String()
}
