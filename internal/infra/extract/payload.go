package extract

import (
	"bytes"
	"encoding/json"
	"errors"
	"regexp"
)

var ansiEscape = regexp.MustCompile(`\x1b\[[0-9;]*[a-zA-Z]`)

// StripANSI removes terminal color sequences that external tools emit when
// they do not detect a non-tty stdout.
func StripANSI(b []byte) []byte {
	return ansiEscape.ReplaceAll(b, nil)
}

// ExtractJSONPayload decodes the JSON document embedded in possibly-mixed
// tool output. Clean output is parsed directly; otherwise the output is
// scanned for the first position where a complete JSON object or array
// decodes.
func ExtractJSONPayload(output []byte, v any) error {
	cleaned := bytes.TrimSpace(StripANSI(output))
	if len(cleaned) == 0 {
		return errors.New("empty tool output")
	}

	if err := json.Unmarshal(cleaned, v); err == nil {
		return nil
	}

	for i := 0; i < len(cleaned); i++ {
		if cleaned[i] != '{' && cleaned[i] != '[' {
			continue
		}
		dec := json.NewDecoder(bytes.NewReader(cleaned[i:]))
		if err := dec.Decode(v); err == nil {
			return nil
		}
	}
	return errors.New("no JSON payload found in tool output")
}
