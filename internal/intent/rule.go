package intent

import (
	"context"
	"regexp"
	"strconv"
	"strings"
)

// ruleModel is a deterministic keyword classifier. It needs no runtime
// dependencies, so it doubles as the fallback when no model binary is
// configured. Same text always yields the same intent.
type ruleModel struct{}

func NewRuleModel() Model { return ruleModel{} }

var (
	lightTargetRe = regexp.MustCompile(`(?:the\s+)?([a-z ]+?)\s+(?:lights?|lamps?)`)
	brightnessRe  = regexp.MustCompile(`(\d{1,3})\s*(?:%|percent)`)
	durationRe    = regexp.MustCompile(`(\d+)\s*(second|minute|hour)s?`)
	locationRe    = regexp.MustCompile(`\b(?:in|for)\s+([a-z][a-z ]*?)(?:\s+(?:today|tomorrow|tonight|now)|[?.!,]|$)`)
	searchRe      = regexp.MustCompile(`(?:search(?: the web)?(?: for)?|look up|google)\s+(.+?)[?.!]?$`)
	taskItemRe    = regexp.MustCompile(`(?:add|put)\s+(.+?)\s+(?:to|on)\s+(?:my\s+)?(?:the\s+)?(.+?)\s+list`)
)

func (ruleModel) Classify(_ context.Context, text string) (Intent, error) {
	lowered := strings.ToLower(strings.TrimSpace(text))
	if lowered == "" {
		return Intent{Tag: TagUnknown, Confidence: 1}, nil
	}

	switch {
	case strings.Contains(lowered, "light") || strings.Contains(lowered, "lamp"):
		return classifyLights(lowered), nil
	case strings.Contains(lowered, "weather") || strings.Contains(lowered, "forecast") || strings.Contains(lowered, "temperature"):
		return classifyWeather(lowered), nil
	case strings.Contains(lowered, "timer") || strings.Contains(lowered, "remind me in"):
		return classifyTimer(lowered), nil
	case strings.Contains(lowered, "calendar") || strings.Contains(lowered, "meeting") ||
		strings.Contains(lowered, "appointment") || strings.Contains(lowered, "schedule"):
		return classifyCalendar(lowered), nil
	case strings.Contains(lowered, "news") || strings.Contains(lowered, "headlines"):
		return Intent{Tag: TagNews, Args: map[string]string{}, Confidence: 0.9}, nil
	case taskItemRe.MatchString(lowered) || strings.Contains(lowered, "task") ||
		strings.Contains(lowered, "todo") || strings.Contains(lowered, "to-do"):
		return classifyTask(lowered), nil
	case searchRe.MatchString(lowered):
		m := searchRe.FindStringSubmatch(lowered)
		return Intent{Tag: TagSearch, Args: map[string]string{"query": strings.TrimSpace(m[1])}, Confidence: 0.85}, nil
	case isConversational(lowered):
		return Intent{Tag: TagChat, Confidence: 0.9}, nil
	}
	return Intent{Tag: TagUnknown, Confidence: 1}, nil
}

func classifyLights(text string) Intent {
	args := map[string]string{"target": "all"}
	if m := lightTargetRe.FindStringSubmatch(text); m != nil {
		target := strings.TrimSpace(m[1])
		for _, prefix := range []string{"turn on ", "turn off ", "switch on ", "switch off ", "dim ", "the "} {
			target = strings.TrimPrefix(target, prefix)
		}
		target = strings.TrimSpace(target)
		if target != "" && target != "on" && target != "off" {
			args["target"] = target
		}
	}
	switch {
	case strings.Contains(text, "off"):
		args["state"] = "off"
	case strings.Contains(text, "dim"):
		args["state"] = "dim"
	default:
		args["state"] = "on"
	}
	if m := brightnessRe.FindStringSubmatch(text); m != nil {
		if level, err := strconv.Atoi(m[1]); err == nil && level >= 0 && level <= 100 {
			args["brightness"] = m[1]
		}
	}
	return Intent{Tag: TagLights, Args: args, Confidence: 0.92}
}

func classifyWeather(text string) Intent {
	args := map[string]string{}
	if m := locationRe.FindStringSubmatch(text); m != nil {
		loc := strings.TrimSpace(m[1])
		if loc != "" && loc != "the" {
			args["location"] = loc
		}
	}
	return Intent{Tag: TagWeather, Args: args, Confidence: 0.9}
}

func classifyTimer(text string) Intent {
	args := map[string]string{}
	if m := durationRe.FindStringSubmatch(text); m != nil {
		amount, err := strconv.Atoi(m[1])
		if err == nil {
			seconds := amount
			switch m[2] {
			case "minute":
				seconds = amount * 60
			case "hour":
				seconds = amount * 3600
			}
			args["duration_s"] = strconv.Itoa(seconds)
		}
	}
	if idx := strings.Index(text, "remind me in"); idx >= 0 {
		if to := strings.Index(text, " to "); to > idx {
			args["label"] = strings.TrimRight(strings.TrimSpace(text[to+4:]), "?.!")
		}
	}
	confidence := 0.9
	if _, ok := args["duration_s"]; !ok {
		// keyword matched but no parseable duration
		confidence = 0.4
	}
	return Intent{Tag: TagTimer, Args: args, Confidence: confidence}
}

func classifyCalendar(text string) Intent {
	args := map[string]string{"action": "list"}
	if strings.Contains(text, "add") || strings.Contains(text, "create") || strings.Contains(text, "new") {
		args["action"] = "add"
	}
	switch {
	case strings.Contains(text, "tomorrow"):
		args["when"] = "tomorrow"
	case strings.Contains(text, "today"):
		args["when"] = "today"
	}
	return Intent{Tag: TagCalendar, Args: args, Confidence: 0.85}
}

func classifyTask(text string) Intent {
	args := map[string]string{"action": "list"}
	if m := taskItemRe.FindStringSubmatch(text); m != nil {
		args["action"] = "add"
		args["item"] = strings.TrimSpace(m[1])
		args["list"] = strings.TrimSpace(m[2])
	} else if strings.Contains(text, "add") {
		args["action"] = "add"
	} else if strings.Contains(text, "done") || strings.Contains(text, "complete") {
		args["action"] = "complete"
	}
	return Intent{Tag: TagTask, Args: args, Confidence: 0.85}
}

func isConversational(text string) bool {
	for _, cue := range []string{"hello", "hi ", "hey", "how are you", "thank", "tell me", "joke", "good morning", "good night", "what do you think"} {
		if strings.HasPrefix(text, cue) || strings.Contains(text, cue) {
			return true
		}
	}
	return false
}
