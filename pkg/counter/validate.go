package counter

import (
	"math"
	"strings"

	"github.com/valyala/fastjson"

	"github.com/thehanda/countcam-app/pkg/models"
)

var parserPool fastjson.ParserPool

// parseOutput validates the model's JSON text and extracts the count.
// Markdown code fences around the object are tolerated.
func parseOutput(content string) (int, models.Direction, error) {
	body := stripFences(content)
	if body == "" {
		return 0, "", &ModelOutputError{Message: "empty response"}
	}

	p := parserPool.Get()
	defer parserPool.Put(p)

	v, err := p.Parse(body)
	if err != nil {
		return 0, "", &ModelOutputError{Message: "malformed JSON: " + err.Error(), Raw: truncate(content)}
	}
	if v.Type() != fastjson.TypeObject {
		return 0, "", &ModelOutputError{Message: "expected a JSON object, got " + v.Type().String(), Raw: truncate(content)}
	}

	countVal := v.Get("visitorCount")
	if countVal == nil || countVal.Type() != fastjson.TypeNumber {
		return 0, "", &ModelOutputError{Message: "visitorCount must be a number", Raw: truncate(content)}
	}
	f, err := countVal.Float64()
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) || f != math.Trunc(f) {
		return 0, "", &ModelOutputError{Message: "visitorCount must be an integer", Raw: truncate(content)}
	}
	if f < 0 || f > math.MaxInt32 {
		return 0, "", &ModelOutputError{Message: "visitorCount out of range", Raw: truncate(content)}
	}

	dirVal := v.Get("countedDirection")
	if dirVal == nil {
		return 0, "", &ModelOutputError{Message: "countedDirection is missing", Raw: truncate(content)}
	}
	dirBytes, err := dirVal.StringBytes()
	if err != nil {
		return 0, "", &ModelOutputError{Message: "countedDirection must be a string", Raw: truncate(content)}
	}
	dir, ok := models.ParseDirection(string(dirBytes))
	if !ok {
		return 0, "", &ModelOutputError{Message: "countedDirection is not a known direction", Raw: truncate(content)}
	}

	return int(f), dir, nil
}

func stripFences(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```")
	// Drop the info string, e.g. ```json
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		s = s[i+1:]
	} else {
		s = strings.TrimPrefix(s, "json")
	}
	s = strings.TrimSpace(s)
	s = strings.TrimSuffix(s, "```")
	return strings.TrimSpace(s)
}
