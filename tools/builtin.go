package tools

// RegisterBuiltins registers the standard tool set against a workspace.
func RegisterBuiltins(reg *Registry, ws *Workspace) {
	reg.MustRegister(NewReadFileTool(ws))
	reg.MustRegister(NewWriteFileTool(ws))
	reg.MustRegister(NewEditFileTool(ws))
	reg.MustRegister(NewGlobTool(ws))
	reg.MustRegister(NewGrepTool(ws))
	reg.MustRegister(NewShellTool(ws))
	reg.MustRegister(NewThinkTool())
	reg.MustRegister(NewTodoTool(ws))
	reg.MustRegister(NewWebFetchTool())
	reg.MustRegister(NewWebSearchTool())
}
