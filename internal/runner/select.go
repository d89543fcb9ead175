package runner

import (
	"go.uber.org/zap"

	"repocheck/internal/toolexec"
)

// ForLanguage returns the runner for a detected language, or nil when no
// toolchain integration exists. TypeScript and JavaScript share the Node
// runner; an unknown language still gets documentation and meta analysis,
// which live outside the runner.
func ForLanguage(language string, exec *toolexec.Executor, log *zap.Logger) Runner {
	switch language {
	case "python":
		return NewPythonRunner(exec, log)
	case "javascript", "typescript":
		return NewNodeRunner(exec, log, language)
	case "java":
		return NewJavaRunner(exec, log)
	case "go":
		return NewGoRunner(exec, log)
	default:
		return nil
	}
}
