// Package dap defines the Go types for the editor-facing Debug Adapter
// Protocol surface this bridge speaks (spec.md §6): the event bodies the
// core emits and the request/response shapes it consumes. It never reads
// or writes a byte itself — framing and transport for the editor side are
// an external collaborator (spec.md §1) — it only defines the contract
// the orchestrator, thread adapter, and breakpoint manager exchange
// across.
package dap

// EventSink is the seam the core calls to emit a DAP event. An external
// transport layer (out of scope here) implements it to serialize events
// over whatever framing the editor side uses.
type EventSink interface {
	Send(event string, body any)
}

// StoppedEvent is the body of a "stopped" DAP event.
type StoppedEvent struct {
	Reason           string `json:"reason"`
	ThreadID         int    `json:"threadId"`
	Text             string `json:"text,omitempty"`
	AllThreadsStopped bool  `json:"allThreadsStopped"`
}

// ContinuedEvent is the body of a "continued" DAP event.
type ContinuedEvent struct {
	ThreadID            int  `json:"threadId"`
	AllThreadsContinued bool `json:"allThreadsContinued"`
}

// ThreadEventReason enumerates the "thread" DAP event's reason field.
type ThreadEventReason string

const (
	ThreadStarted ThreadEventReason = "started"
	ThreadExited  ThreadEventReason = "exited"
)

// ThreadEvent is the body of a "thread" DAP event.
type ThreadEvent struct {
	Reason   ThreadEventReason `json:"reason"`
	ThreadID int               `json:"threadId"`
}

// OutputCategory enumerates the "output" DAP event's category field.
type OutputCategory string

const (
	OutputStdout  OutputCategory = "stdout"
	OutputStderr  OutputCategory = "stderr"
	OutputConsole OutputCategory = "console"
)

// OutputEvent is the body of an "output" DAP event.
type OutputEvent struct {
	Output              string         `json:"output"`
	Category            OutputCategory `json:"category,omitempty"`
	Source              *Source        `json:"source,omitempty"`
	Line                int            `json:"line,omitempty"`
	Column              int            `json:"column,omitempty"`
	VariablesReference  int            `json:"variablesReference,omitempty"`
}

// Source identifies a local file, mirroring the standard DAP Source type
// closely enough for this bridge's needs.
type Source struct {
	Name string `json:"name,omitempty"`
	Path string `json:"path,omitempty"`
}

// BreakpointEvent is the body of a "breakpoint" DAP event. No code in the
// bridge sends this event; the setBreakpoints response is the only
// acknowledgement of a breakpoint's realized location.
type BreakpointEvent struct {
	Reason     string      `json:"reason"`
	Breakpoint Breakpoint  `json:"breakpoint"`
}

// Breakpoint is the DAP-shaped breakpoint acknowledgement returned from
// setBreakpoints and carried in BreakpointEvent.
type Breakpoint struct {
	ID       int    `json:"id,omitempty"`
	Verified bool   `json:"verified"`
	Line     int    `json:"line,omitempty"`
	Column   int    `json:"column,omitempty"`
	Message  string `json:"message,omitempty"`
	Source   *Source `json:"source,omitempty"`
}

// NewSourceEvent is the body of the bridge's custom "newSource" event.
type NewSourceEvent struct {
	ThreadID int    `json:"threadId"`
	SourceID int    `json:"sourceId"`
	URL      string `json:"url"`
	Path     string `json:"path"` // "" when no local path is known; serialized as "", never as null
}

// ThreadStartedEvent is the body of the bridge's custom "threadStarted"
// event.
type ThreadStartedEvent struct {
	Name string `json:"name"`
	ID   int    `json:"id"`
}

// ThreadExitedEvent is the body of the bridge's custom "threadExited"
// event.
type ThreadExitedEvent struct {
	ID int `json:"id"`
}

// --- Request parameter / result shapes ---

// SourceBreakpoint is one desired breakpoint as the editor describes it
// in a setBreakpoints request.
type SourceBreakpoint struct {
	Line       int    `json:"line"`
	Column     int    `json:"column,omitempty"`
	Condition  string `json:"condition,omitempty"`
	LogMessage string `json:"logMessage,omitempty"`
	HitCondition string `json:"hitCondition,omitempty"`
}

// SetBreakpointsArguments is the request body for "setBreakpoints".
type SetBreakpointsArguments struct {
	Source      Source             `json:"source"`
	Breakpoints []SourceBreakpoint `json:"breakpoints"`
}

// SetBreakpointsResponse is the result body for "setBreakpoints".
type SetBreakpointsResponse struct {
	Breakpoints []Breakpoint `json:"breakpoints"`
}

// SetExceptionBreakpointsArguments is the request body for
// "setExceptionBreakpoints".
type SetExceptionBreakpointsArguments struct {
	Filters []string `json:"filters"`
}

// DataBreakpoint and SetDataBreakpointsArguments are the body shapes of
// the "setDataBreakpoints" request. No session handler services this
// request; nothing installs a watchpoint on the engine side.
type DataBreakpoint struct {
	DataID       string `json:"dataId"`
	AccessType   string `json:"accessType,omitempty"`
	Condition    string `json:"condition,omitempty"`
}

type SetDataBreakpointsArguments struct {
	Breakpoints []DataBreakpoint `json:"breakpoints"`
}

// InstructionBreakpoint and SetInstructionBreakpointsArguments are the
// body shapes of the "setInstructionBreakpoints" request, which has no
// engine-side realization for a JS target (there is no fixed instruction
// stream). No session handler services this request, so nothing answers
// it, not even with unverified breakpoints.
type InstructionBreakpoint struct {
	InstructionReference string `json:"instructionReference"`
	Offset               int    `json:"offset,omitempty"`
}

type SetInstructionBreakpointsArguments struct {
	Breakpoints []InstructionBreakpoint `json:"breakpoints"`
}

// ContinueArguments, NextArguments, StepInArguments, StepOutArguments,
// and PauseArguments all share the same shape: the target thread.
type ContinueArguments struct{ ThreadID int `json:"threadId"` }
type NextArguments struct{ ThreadID int `json:"threadId"` }
type StepInArguments struct{ ThreadID int `json:"threadId"` }
type StepOutArguments struct{ ThreadID int `json:"threadId"` }
type PauseArguments struct{ ThreadID int `json:"threadId"` }

// StackTraceArguments/Response cover "stackTrace".
type StackTraceArguments struct {
	ThreadID   int `json:"threadId"`
	StartFrame int `json:"startFrame,omitempty"`
	Levels     int `json:"levels,omitempty"`
}

type StackFrame struct {
	ID     int    `json:"id"`
	Name   string `json:"name"`
	Source *Source `json:"source,omitempty"`
	Line   int    `json:"line"`
	Column int    `json:"column"`
}

type StackTraceResponse struct {
	StackFrames []StackFrame `json:"stackFrames"`
	TotalFrames int          `json:"totalFrames"`
}

// ScopesArguments/Response cover "scopes".
type ScopesArguments struct{ FrameID int `json:"frameId"` }

type Scope struct {
	Name               string `json:"name"`
	VariablesReference int    `json:"variablesReference"`
	Expensive          bool   `json:"expensive"`
}

type ScopesResponse struct {
	Scopes []Scope `json:"scopes"`
}

// VariablesArguments/Response cover "variables".
type VariablesArguments struct {
	VariablesReference int `json:"variablesReference"`
}

type Variable struct {
	Name               string `json:"name"`
	Value              string `json:"value"`
	VariablesReference int    `json:"variablesReference"`
}

type VariablesResponse struct {
	Variables []Variable `json:"variables"`
}

// EvaluateArguments/Response cover "evaluate".
type EvaluateArguments struct {
	Expression string `json:"expression"`
	FrameID    int    `json:"frameId,omitempty"`
	Context    string `json:"context,omitempty"` // "repl", "watch", "hover"
}

type EvaluateResponse struct {
	Result             string `json:"result"`
	VariablesReference int    `json:"variablesReference,omitempty"`
}

// SourceArguments/Response cover "source" (fetching source text by
// reference when no local path is available).
type SourceArguments struct {
	Source             *Source `json:"source,omitempty"`
	SourceReference    int     `json:"sourceReference,omitempty"`
}

type SourceResponse struct {
	Content string `json:"content"`
}

// ThreadsResponse covers "threads".
type Thread struct {
	ID   int    `json:"id"`
	Name string `json:"name"`
}

type ThreadsResponse struct {
	Threads []Thread `json:"threads"`
}

// LaunchArguments and AttachArguments carry the §6 configuration surface
// as a DAP launch/attach request body. internal/config does not use them:
// it decodes its on-disk YAML into its own config.Config.
type LaunchArguments struct {
	Request                 string            `json:"request"`
	PathMappings            []PathMappingArg  `json:"pathMappings,omitempty"`
	FilesToSkip             []string          `json:"filesToSkip,omitempty"`
	ReloadOnChange          bool              `json:"reloadOnChange,omitempty"`
	Addon                   string            `json:"addon,omitempty"`
	TabFilter               TabFilterArg      `json:"tabFilter,omitempty"`
	Terminate               bool              `json:"terminate,omitempty"`
	ClearConsoleOnReload    bool              `json:"clearConsoleOnReload,omitempty"`
	ShowConsoleCallLocation bool              `json:"showConsoleCallLocation,omitempty"`
	ReAttach                bool              `json:"reAttach,omitempty"`
	Host                    string            `json:"host,omitempty"`
	Port                    int               `json:"port,omitempty"`
}

type AttachArguments = LaunchArguments

// PathMappingArg is one entry of the editor-supplied path-mappings list.
type PathMappingArg struct {
	URL  string `json:"url"`
	Path string `json:"path"`
}

// TabFilterArg restricts which tabs the session attaches to.
type TabFilterArg struct {
	Include []string `json:"include,omitempty"`
	Exclude []string `json:"exclude,omitempty"`
}

// DisconnectArguments/TerminateArguments cover session teardown.
type DisconnectArguments struct {
	TerminateDebuggee bool `json:"terminateDebuggee,omitempty"`
}

type TerminateArguments struct {
	Restart bool `json:"restart,omitempty"`
}
