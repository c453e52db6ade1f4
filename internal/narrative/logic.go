package narrative

import (
	"encoding/json"
	"fmt"
)

// LogicMode is how trigger outcomes combine.
type LogicMode string

// LogicMode values.
const (
	LogicAll     LogicMode = "ALL"
	LogicAny     LogicMode = "ANY"
	LogicAtLeast LogicMode = "AT_LEAST"
)

// TriggerLogic combines per-trigger outcomes. Count is only used by AT_LEAST.
type TriggerLogic struct {
	Mode  LogicMode `json:"type" yaml:"type"`
	Count int       `json:"count,omitempty" yaml:"count,omitempty"`
}

// All requires every trigger.
func All() TriggerLogic { return TriggerLogic{Mode: LogicAll} }

// Any requires one trigger.
func Any() TriggerLogic { return TriggerLogic{Mode: LogicAny} }

// AtLeast requires n triggers.
func AtLeast(n int) TriggerLogic { return TriggerLogic{Mode: LogicAtLeast, Count: n} }

// UnmarshalJSON defaults an empty mode to ALL and validates AT_LEAST.
func (l *TriggerLogic) UnmarshalJSON(data []byte) error {
	type plain TriggerLogic
	var p plain
	if err := json.Unmarshal(data, &p); err != nil {
		return err
	}
	*l = TriggerLogic(p)
	return l.normalize()
}

func (l *TriggerLogic) normalize() error {
	switch l.Mode {
	case "":
		l.Mode = LogicAll
	case LogicAll, LogicAny:
	case LogicAtLeast:
		if l.Count < 1 {
			return fmt.Errorf("AT_LEAST logic needs a count >= 1, got %d", l.Count)
		}
	default:
		return fmt.Errorf("unknown trigger logic %q", l.Mode)
	}
	return nil
}

func (l TriggerLogic) satisfied(matched, total int) bool {
	switch l.Mode {
	case LogicAny:
		return matched > 0
	case LogicAtLeast:
		return matched >= l.Count
	default:
		return matched == total
	}
}

// String renders the logic for prompts and logs.
func (l TriggerLogic) String() string {
	if l.Mode == LogicAtLeast {
		return fmt.Sprintf("AT_LEAST(%d)", l.Count)
	}
	if l.Mode == "" {
		return string(LogicAll)
	}
	return string(l.Mode)
}
