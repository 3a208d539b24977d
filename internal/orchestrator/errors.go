package orchestrator

import "errors"

// ErrUnknownPreset is returned at wiring time when an AgentInstanceConfig
// names a preset agent.Presets does not define.
var ErrUnknownPreset = errors.New("orchestrator: unknown agent preset")
