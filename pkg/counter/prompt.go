package counter

import (
	"fmt"

	"github.com/thehanda/countcam-app/pkg/models"
)

const countingPolicy = `You are counting visitors at a museum entrance from a fixed security camera clip.

Count every distinct person who %s during the clip.

Rules:
- A person counts once, no matter how long they stay in view or how often they reappear.
- Only count people who fully cross the entrance threshold. People who approach and turn back do not count.
- Count adults and children alike. Count a person carrying a child as two people only when both are clearly visible.
- Ignore staff in uniform, security guards, and people who only walk past the entrance outside the doorway.
- Ignore people too far away or too blurred to tell which way they are moving.
- Ignore reflections, posters, screens, and mannequins.
- If nobody qualifies, the count is 0.

Answer with a JSON object only:
{"visitorCount": <non-negative integer>, "countedDirection": "%s"}

countedDirection must be "%s" unless the footage makes it impossible to count that direction, in which case report the direction you actually counted.`

func directionPhrase(d models.Direction) string {
	switch d {
	case models.DirectionEntering:
		return "enters the museum (moves from outside to inside)"
	case models.DirectionExiting:
		return "exits the museum (moves from inside to outside)"
	default:
		return "passes through the entrance in either direction"
	}
}

// Prompt renders the counting policy for the requested direction.
func Prompt(d models.Direction) string {
	return fmt.Sprintf(countingPolicy, directionPhrase(d), d, d)
}

func userInstruction(fileName string, d models.Direction) string {
	if fileName == "" {
		return fmt.Sprintf("Count the people %s in the attached clip.", d)
	}
	return fmt.Sprintf("Count the people %s in the attached clip %q.", d, fileName)
}

// responseSchema constrains the structured output of the model.
func responseSchema() map[string]any {
	enum := make([]string, 0, len(models.Directions))
	for _, d := range models.Directions {
		enum = append(enum, string(d))
	}
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"visitorCount": map[string]any{
				"type":        "integer",
				"minimum":     0,
				"description": "Number of distinct people moving in the counted direction.",
			},
			"countedDirection": map[string]any{
				"type": "string",
				"enum": enum,
			},
		},
		"required":             []string{"visitorCount", "countedDirection"},
		"additionalProperties": false,
	}
}
