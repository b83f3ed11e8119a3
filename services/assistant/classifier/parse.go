// Copyright (C) 2026 Desa Digital Nusantara (dev@desadigital.id)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package classifier

import (
	"fmt"
	"strings"

	"github.com/desadigital/wargabot/services/assistant/datatypes"
)

// =============================================================================
// Model Output Parsing
// =============================================================================

// ParseModelOutput extracts and decodes the JSON classification from raw
// model text.
//
// # Description
//
// Models wrap JSON in code fences or prepend chatter despite the response
// format hint. The extractor strips markdown fences and cuts the substring
// from the first "{" to the last "}" before decoding. A response with no
// JSON object, or one missing the mandatory intent or confidence fields,
// is a parse failure.
func ParseModelOutput(raw string) (*datatypes.ClassificationResult, error) {
	extracted, err := extractJSON(raw)
	if err != nil {
		return nil, err
	}
	return datatypes.DecodeClassification([]byte(extracted))
}

func extractJSON(raw string) (string, error) {
	cleaned := strings.TrimSpace(raw)

	// Strip markdown code fences, with or without a language tag.
	if strings.HasPrefix(cleaned, "```") {
		cleaned = strings.TrimPrefix(cleaned, "```json")
		cleaned = strings.TrimPrefix(cleaned, "```")
		if idx := strings.LastIndex(cleaned, "```"); idx >= 0 {
			cleaned = cleaned[:idx]
		}
		cleaned = strings.TrimSpace(cleaned)
	}

	start := strings.Index(cleaned, "{")
	end := strings.LastIndex(cleaned, "}")
	if start == -1 || end == -1 || end < start {
		return "", fmt.Errorf("no JSON object found in model output")
	}
	return cleaned[start : end+1], nil
}
