package logger

import (
	"testing"

	"log/slog"
)

// Library packages log through the component loggers without running the
// bootstrap pipeline first, so every one of them must work from init.
func TestComponentLoggersUsableWithoutInit(t *testing.T) {
	components := map[string]*slog.Logger{
		"L":          L,
		"DB":         DB,
		"MIG":        MIG,
		"TG":         TG,
		"TWire":      TWire,
		"WEB":        WEB,
		"GRAPH":      GRAPH,
		"SVCLinking": SVCLinking,
		"SVCSubs":    SVCSubs,
		"SVCAI":      SVCAI,
	}
	for name, lg := range components {
		if lg == nil {
			t.Fatalf("component logger %s is nil before InitLogger", name)
		}
	}

	// Must not panic.
	GRAPH.LogAttrs(Background(), slog.LevelInfo, "noop", slog.String("status", "ok"))
	Warn(Background(), "web", "noop")
}
