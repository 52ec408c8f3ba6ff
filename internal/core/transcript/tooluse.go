package transcript

import (
	"encoding/json"
	"fmt"

	"github.com/colonyops/taskdeck/internal/core/todo"
)

// ToolName is the wire name of a tool as emitted by the agent.
type ToolName string

const (
	ToolRead            ToolName = "Read"
	ToolWrite           ToolName = "Write"
	ToolEdit            ToolName = "Edit"
	ToolBash            ToolName = "Bash"
	ToolGrep            ToolName = "Grep"
	ToolGlob            ToolName = "Glob"
	ToolTask            ToolName = "Task"
	ToolWebFetch        ToolName = "WebFetch"
	ToolWebSearch       ToolName = "WebSearch"
	ToolTodoWrite       ToolName = "TodoWrite"
	ToolAskUserQuestion ToolName = "AskUserQuestion"
	ToolSkill           ToolName = "Skill"
	ToolExitPlanMode    ToolName = "ExitPlanMode"
)

// KnownTools lists every tool with a dedicated variant.
var KnownTools = []ToolName{
	ToolRead, ToolWrite, ToolEdit, ToolBash, ToolGrep, ToolGlob, ToolTask,
	ToolWebFetch, ToolWebSearch, ToolTodoWrite, ToolAskUserQuestion,
	ToolSkill, ToolExitPlanMode,
}

// Result is the outcome of a completed tool call.
type Result struct {
	Content string `json:"content"`
	IsError bool   `json:"is_error,omitempty"`
}

// ToolUse is a single tool invocation. The set of implementations is closed:
// the unexported methods keep other packages from adding variants, and the
// concrete type alone decides the tool name and the shape of its input.
type ToolUse interface {
	// Name returns the tool's wire name.
	Name() ToolName
	// Result returns the tool's result, or nil while the call is in flight.
	Result() *Result

	withResult(r *Result) ToolUse
	input() any
}

type (
	ReadInput struct {
		FilePath string `json:"file_path"`
		Offset   int    `json:"offset,omitempty"`
		Limit    int    `json:"limit,omitempty"`
	}

	WriteInput struct {
		FilePath string `json:"file_path"`
		Content  string `json:"content"`
	}

	EditInput struct {
		FilePath   string `json:"file_path"`
		OldString  string `json:"old_string"`
		NewString  string `json:"new_string"`
		ReplaceAll bool   `json:"replace_all,omitempty"`
	}

	BashInput struct {
		Command         string `json:"command"`
		Description     string `json:"description,omitempty"`
		Timeout         int    `json:"timeout,omitempty"`
		RunInBackground bool   `json:"run_in_background,omitempty"`
	}

	GrepInput struct {
		Pattern    string `json:"pattern"`
		Path       string `json:"path,omitempty"`
		Glob       string `json:"glob,omitempty"`
		OutputMode string `json:"output_mode,omitempty"`
	}

	GlobInput struct {
		Pattern string `json:"pattern"`
		Path    string `json:"path,omitempty"`
	}

	TaskInput struct {
		Description  string `json:"description"`
		Prompt       string `json:"prompt"`
		SubagentType string `json:"subagent_type,omitempty"`
	}

	WebFetchInput struct {
		URL    string `json:"url"`
		Prompt string `json:"prompt,omitempty"`
	}

	WebSearchInput struct {
		Query string `json:"query"`
	}

	TodoWriteInput struct {
		Todos []todo.Item `json:"todos"`
	}

	QuestionOption struct {
		Label       string `json:"label"`
		Description string `json:"description,omitempty"`
	}

	Question struct {
		Question    string           `json:"question"`
		Header      string           `json:"header,omitempty"`
		Options     []QuestionOption `json:"options,omitempty"`
		MultiSelect bool             `json:"multiSelect,omitempty"`
	}

	AskUserQuestionInput struct {
		Questions []Question `json:"questions"`
	}

	SkillInput struct {
		Skill string `json:"skill"`
	}

	ExitPlanModeInput struct {
		Plan string `json:"plan"`
	}
)

type (
	ReadTool struct {
		Input  ReadInput
		Output *Result
	}
	WriteTool struct {
		Input  WriteInput
		Output *Result
	}
	EditTool struct {
		Input  EditInput
		Output *Result
	}
	BashTool struct {
		Input  BashInput
		Output *Result
	}
	GrepTool struct {
		Input  GrepInput
		Output *Result
	}
	GlobTool struct {
		Input  GlobInput
		Output *Result
	}
	// TaskTool is a sub-agent invocation.
	TaskTool struct {
		Input  TaskInput
		Output *Result
	}
	WebFetchTool struct {
		Input  WebFetchInput
		Output *Result
	}
	WebSearchTool struct {
		Input  WebSearchInput
		Output *Result
	}
	TodoWriteTool struct {
		Input  TodoWriteInput
		Output *Result
	}
	AskUserQuestionTool struct {
		Input  AskUserQuestionInput
		Output *Result
	}
	SkillTool struct {
		Input  SkillInput
		Output *Result
	}
	ExitPlanModeTool struct {
		Input  ExitPlanModeInput
		Output *Result
	}
	// UnknownTool is the fallback for tools without a dedicated variant
	// (MCP tools, newer agent tools). The input is kept verbatim.
	UnknownTool struct {
		ToolName ToolName
		Input    json.RawMessage
		Output   *Result
	}
)

func (t ReadTool) Name() ToolName            { return ToolRead }
func (t WriteTool) Name() ToolName           { return ToolWrite }
func (t EditTool) Name() ToolName            { return ToolEdit }
func (t BashTool) Name() ToolName            { return ToolBash }
func (t GrepTool) Name() ToolName            { return ToolGrep }
func (t GlobTool) Name() ToolName            { return ToolGlob }
func (t TaskTool) Name() ToolName            { return ToolTask }
func (t WebFetchTool) Name() ToolName        { return ToolWebFetch }
func (t WebSearchTool) Name() ToolName       { return ToolWebSearch }
func (t TodoWriteTool) Name() ToolName       { return ToolTodoWrite }
func (t AskUserQuestionTool) Name() ToolName { return ToolAskUserQuestion }
func (t SkillTool) Name() ToolName           { return ToolSkill }
func (t ExitPlanModeTool) Name() ToolName    { return ToolExitPlanMode }
func (t UnknownTool) Name() ToolName         { return t.ToolName }

func (t ReadTool) Result() *Result            { return t.Output }
func (t WriteTool) Result() *Result           { return t.Output }
func (t EditTool) Result() *Result            { return t.Output }
func (t BashTool) Result() *Result            { return t.Output }
func (t GrepTool) Result() *Result            { return t.Output }
func (t GlobTool) Result() *Result            { return t.Output }
func (t TaskTool) Result() *Result            { return t.Output }
func (t WebFetchTool) Result() *Result        { return t.Output }
func (t WebSearchTool) Result() *Result       { return t.Output }
func (t TodoWriteTool) Result() *Result       { return t.Output }
func (t AskUserQuestionTool) Result() *Result { return t.Output }
func (t SkillTool) Result() *Result           { return t.Output }
func (t ExitPlanModeTool) Result() *Result    { return t.Output }
func (t UnknownTool) Result() *Result         { return t.Output }

func (t ReadTool) withResult(r *Result) ToolUse            { t.Output = r; return t }
func (t WriteTool) withResult(r *Result) ToolUse           { t.Output = r; return t }
func (t EditTool) withResult(r *Result) ToolUse            { t.Output = r; return t }
func (t BashTool) withResult(r *Result) ToolUse            { t.Output = r; return t }
func (t GrepTool) withResult(r *Result) ToolUse            { t.Output = r; return t }
func (t GlobTool) withResult(r *Result) ToolUse            { t.Output = r; return t }
func (t TaskTool) withResult(r *Result) ToolUse            { t.Output = r; return t }
func (t WebFetchTool) withResult(r *Result) ToolUse        { t.Output = r; return t }
func (t WebSearchTool) withResult(r *Result) ToolUse       { t.Output = r; return t }
func (t TodoWriteTool) withResult(r *Result) ToolUse       { t.Output = r; return t }
func (t AskUserQuestionTool) withResult(r *Result) ToolUse { t.Output = r; return t }
func (t SkillTool) withResult(r *Result) ToolUse           { t.Output = r; return t }
func (t ExitPlanModeTool) withResult(r *Result) ToolUse    { t.Output = r; return t }
func (t UnknownTool) withResult(r *Result) ToolUse         { t.Output = r; return t }

func (t ReadTool) input() any            { return t.Input }
func (t WriteTool) input() any           { return t.Input }
func (t EditTool) input() any            { return t.Input }
func (t BashTool) input() any            { return t.Input }
func (t GrepTool) input() any            { return t.Input }
func (t GlobTool) input() any            { return t.Input }
func (t TaskTool) input() any            { return t.Input }
func (t WebFetchTool) input() any        { return t.Input }
func (t WebSearchTool) input() any       { return t.Input }
func (t TodoWriteTool) input() any       { return t.Input }
func (t AskUserQuestionTool) input() any { return t.Input }
func (t SkillTool) input() any           { return t.Input }
func (t ExitPlanModeTool) input() any    { return t.Input }
func (t UnknownTool) input() any         { return t.Input }

// DecodeToolUse builds the variant for name from its raw JSON input. Unknown
// names yield an UnknownTool. A known name whose input does not decode
// returns an error so the caller can decide how to degrade.
func DecodeToolUse(name string, raw json.RawMessage) (ToolUse, error) {
	switch ToolName(name) {
	case ToolRead:
		return decodeInto(raw, func(in ReadInput) ToolUse { return ReadTool{Input: in} })
	case ToolWrite:
		return decodeInto(raw, func(in WriteInput) ToolUse { return WriteTool{Input: in} })
	case ToolEdit:
		return decodeInto(raw, func(in EditInput) ToolUse { return EditTool{Input: in} })
	case ToolBash:
		return decodeInto(raw, func(in BashInput) ToolUse { return BashTool{Input: in} })
	case ToolGrep:
		return decodeInto(raw, func(in GrepInput) ToolUse { return GrepTool{Input: in} })
	case ToolGlob:
		return decodeInto(raw, func(in GlobInput) ToolUse { return GlobTool{Input: in} })
	case ToolTask:
		return decodeInto(raw, func(in TaskInput) ToolUse { return TaskTool{Input: in} })
	case ToolWebFetch:
		return decodeInto(raw, func(in WebFetchInput) ToolUse { return WebFetchTool{Input: in} })
	case ToolWebSearch:
		return decodeInto(raw, func(in WebSearchInput) ToolUse { return WebSearchTool{Input: in} })
	case ToolTodoWrite:
		return decodeInto(raw, func(in TodoWriteInput) ToolUse { return TodoWriteTool{Input: in} })
	case ToolAskUserQuestion:
		return decodeInto(raw, func(in AskUserQuestionInput) ToolUse { return AskUserQuestionTool{Input: in} })
	case ToolSkill:
		return decodeInto(raw, func(in SkillInput) ToolUse { return SkillTool{Input: in} })
	case ToolExitPlanMode:
		return decodeInto(raw, func(in ExitPlanModeInput) ToolUse { return ExitPlanModeTool{Input: in} })
	default:
		return UnknownTool{ToolName: ToolName(name), Input: raw}, nil
	}
}

func decodeInto[T any](raw json.RawMessage, build func(T) ToolUse) (ToolUse, error) {
	var in T
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &in); err != nil {
			return nil, fmt.Errorf("decode tool input: %w", err)
		}
	}
	return build(in), nil
}

// EncodeInput returns the tool's input as JSON.
func EncodeInput(t ToolUse) (json.RawMessage, error) {
	if u, ok := t.(UnknownTool); ok {
		return u.Input, nil
	}
	data, err := json.Marshal(t.input())
	if err != nil {
		return nil, fmt.Errorf("encode %s input: %w", t.Name(), err)
	}
	return data, nil
}
