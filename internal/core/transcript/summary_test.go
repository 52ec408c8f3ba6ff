package transcript

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/colonyops/taskdeck/internal/core/todo"
)

func ok(content string) *Result {
	return &Result{Content: content}
}

func TestSummarize(t *testing.T) {
	tests := []struct {
		name string
		tool ToolUse
		want string
	}{
		{"read in flight", ReadTool{Input: ReadInput{FilePath: "/src/app.ts"}}, "Reading `app.ts`..."},
		{"read done", ReadTool{Input: ReadInput{FilePath: "/src/app.ts"}, Output: ok("line1\nline2\nline3")}, "Read `app.ts` (3 lines)"},
		{"read single line", ReadTool{Input: ReadInput{FilePath: "go.mod"}, Output: ok("module x\n")}, "Read `go.mod` (1 line)"},
		{"read empty file", ReadTool{Input: ReadInput{FilePath: "empty.txt"}, Output: ok("")}, "Read `empty.txt`"},
		{"read error", ReadTool{Input: ReadInput{FilePath: "/nope"}, Output: &Result{Content: "ENOENT", IsError: true}}, "Read `nope` (error)"},

		{"write in flight", WriteTool{Input: WriteInput{FilePath: "a/b.go", Content: "x\ny"}}, "Writing `b.go`..."},
		{"write done", WriteTool{Input: WriteInput{FilePath: "a/b.go", Content: "x\ny"}, Output: ok("ok")}, "Wrote `b.go` (2 lines)"},

		{"edit in flight", EditTool{Input: EditInput{FilePath: "main.go"}}, "Editing `main.go`..."},
		{
			"edit done",
			EditTool{Input: EditInput{FilePath: "main.go", OldString: "a\nb", NewString: "a\nb\nc\nd"}, Output: ok("")},
			"Edited `main.go` (+4 -2)",
		},

		{"bash in flight", BashTool{Input: BashInput{Command: "go test ./..."}}, "Running `go test ./...`..."},
		{"bash done", BashTool{Input: BashInput{Command: "ls"}, Output: ok("a\nb")}, "Ran `ls`"},
		{"bash error", BashTool{Input: BashInput{Command: "false"}, Output: &Result{IsError: true}}, "Ran `false` (error)"},
		{
			"bash multi-line",
			BashTool{Input: BashInput{Command: "for f in *; do\n  echo $f\ndone"}},
			"Running `for f in *; do ...`...",
		},

		{"grep in flight", GrepTool{Input: GrepInput{Pattern: "TODO"}}, "Searching for `TODO`..."},
		{"grep done", GrepTool{Input: GrepInput{Pattern: "TODO"}, Output: ok("a.go\n\nb.go\n  \nc.go\n")}, "Searched for `TODO` (3 matches)"},
		{"grep no matches", GrepTool{Input: GrepInput{Pattern: "zzz"}, Output: ok("")}, "Searched for `zzz`"},

		{"glob in flight", GlobTool{Input: GlobInput{Pattern: "**/*.go"}}, "Finding files matching `**/*.go`..."},
		{"glob done", GlobTool{Input: GlobInput{Pattern: "*.md"}, Output: ok("README.md")}, "Found 1 file matching `*.md`"},
		{"glob none", GlobTool{Input: GlobInput{Pattern: "*.rs"}, Output: ok("")}, "Found 0 files matching `*.rs`"},

		{"task in flight", TaskTool{Input: TaskInput{Description: "Explore repo"}}, "Running agent: Explore repo..."},
		{"task done", TaskTool{Input: TaskInput{Description: "Explore repo"}, Output: ok("")}, "Agent finished: Explore repo"},
		{"task no description", TaskTool{}, "Running agent..."},

		{"fetch in flight", WebFetchTool{Input: WebFetchInput{URL: "https://pkg.go.dev/net/url"}}, "Fetching pkg.go.dev..."},
		{"fetch done", WebFetchTool{Input: WebFetchInput{URL: "https://pkg.go.dev/net/url"}, Output: ok("")}, "Fetched pkg.go.dev"},
		{"fetch bad url", WebFetchTool{Input: WebFetchInput{URL: "::not a url"}}, "Fetching web page..."},
		{"fetch no host", WebFetchTool{Input: WebFetchInput{URL: "relative/path"}, Output: ok("")}, "Fetched web page"},

		{"search in flight", WebSearchTool{Input: WebSearchInput{Query: "go generics"}}, "Searching the web for `go generics`..."},
		{"search done", WebSearchTool{Input: WebSearchInput{Query: "go generics"}, Output: ok("")}, "Searched the web for `go generics`"},

		{"todos in flight", TodoWriteTool{}, "Updating todos..."},
		{
			"todos done",
			TodoWriteTool{Input: TodoWriteInput{Todos: []todo.Item{
				{Content: "a", Status: todo.StatusCompleted},
				{Content: "b", Status: todo.StatusPending},
			}}, Output: ok("")},
			"Updated todos (1/2 completed)",
		},

		{"question in flight", AskUserQuestionTool{}, "Asking a question..."},
		{
			"question done",
			AskUserQuestionTool{Input: AskUserQuestionInput{Questions: []Question{{Question: "Which DB?"}}}, Output: ok("sqlite")},
			"Asked: Which DB?",
		},

		{"skill in flight", SkillTool{Input: SkillInput{Skill: "pdf"}}, "Loading skill `pdf`..."},
		{"skill done", SkillTool{Input: SkillInput{Skill: "pdf"}, Output: ok("")}, "Loaded skill `pdf`"},

		{"plan in flight", ExitPlanModeTool{}, "Presenting plan..."},
		{"plan done", ExitPlanModeTool{Output: ok("")}, "Presented plan"},

		{"unknown in flight", UnknownTool{ToolName: "mcp__github__search"}, "Using `mcp__github__search`"},
		{"unknown done", UnknownTool{ToolName: "mcp__github__search", Output: ok("")}, "Used `mcp__github__search`"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Summarize(tt.tool))
		})
	}
}

func TestSummarize_Deterministic(t *testing.T) {
	tool := GrepTool{Input: GrepInput{Pattern: "x"}, Output: ok("a\nb")}
	first := Summarize(tool)
	for range 10 {
		assert.Equal(t, first, Summarize(tool))
	}
}

func TestSummarize_LongCommandTruncated(t *testing.T) {
	cmd := strings.Repeat("a", maxCommandWidth+20)
	got := Summarize(BashTool{Input: BashInput{Command: cmd}})
	assert.Equal(t, "Running `"+strings.Repeat("a", maxCommandWidth)+" ...`...", got)
}

// Every known tool must have dedicated phrasing rather than the generic
// fallback, both in flight and completed.
func TestSummarize_KnownToolsHaveDedicatedPhrasing(t *testing.T) {
	for _, name := range KnownTools {
		t.Run(string(name), func(t *testing.T) {
			tool, err := DecodeToolUse(string(name), nil)
			assert.NoError(t, err)

			assert.NotContains(t, Summarize(tool), "Using `")
			assert.NotContains(t, Summarize(tool.withResult(ok(""))), "Used `")
		})
	}
}

func TestSummarize_Nil(t *testing.T) {
	assert.Empty(t, Summarize(nil))
}
