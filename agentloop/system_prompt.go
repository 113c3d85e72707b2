package agentloop

import (
	"fmt"
	"runtime"
	"strings"
	"time"
)

// EnvironmentInfo describes where generated commands will run.
type EnvironmentInfo struct {
	Platform string // runtime.GOOS value
	WorkDir  string
	Date     time.Time
}

// HostEnvironment describes the current process for a work directory.
func HostEnvironment(workDir string) EnvironmentInfo {
	return EnvironmentInfo{Platform: runtime.GOOS, WorkDir: workDir, Date: time.Now()}
}

// BuildSystemInstruction returns the fixed instruction that tells the model
// how to turn a request into ExecuteCommand calls and when to stop.
func BuildSystemInstruction(env EnvironmentInfo) string {
	var sb strings.Builder
	sb.WriteString(`You are a website generator. You must:
1. Understand the user's request.
2. Produce terminal commands one at a time using the ExecuteCommand tool.
`)
	if env.Platform == "windows" {
		sb.WriteString(`3. Use Windows cmd syntax. Escape markup with carets, for example: echo ^<h1^>Title^</h1^> >> index.html
`)
	} else {
		sb.WriteString(`3. Use POSIX shell syntax. Write whole files with heredocs, for example: cat > index.html <<'EOF' ... EOF
`)
	}
	sb.WriteString(`4. Work in the current directory and create:
   - index.html
   - style.css
   - script.js
5. Add real content to those files (header, sections, a button with JavaScript click logic, styling).
6. Link style.css and script.js from index.html with relative paths.

Call ExecuteCommand once per step and read its result before the next step.
When the site is complete, stop calling tools and reply with a short plain-text summary.

`)
	sb.WriteString(BuildEnvironmentContext(env))
	return sb.String()
}

// BuildEnvironmentContext generates the structured environment context block.
func BuildEnvironmentContext(env EnvironmentInfo) string {
	var sb strings.Builder
	sb.WriteString("<environment>\n")
	fmt.Fprintf(&sb, "Working directory: %s\n", env.WorkDir)
	fmt.Fprintf(&sb, "Platform: %s\n", env.Platform)
	if !env.Date.IsZero() {
		fmt.Fprintf(&sb, "Today's date: %s\n", env.Date.Format("2006-01-02"))
	}
	sb.WriteString("</environment>")
	return sb.String()
}
