package provider

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/sells-group/catalog-verify/internal/model"
)

// analysisPayload is the validated wire shape of a provider's extraction
// answer. Responses are parsed into this tagged structure and rejected
// on malformed content before they can reach the consensus builder.
type analysisPayload struct {
	Category           string              `json:"category"`
	CategoryConfidence float64             `json:"category_confidence"`
	CategoryReasoning  string              `json:"category_reasoning"`
	Primary            map[string]any      `json:"primary_attributes"`
	Filter             map[string]any      `json:"filter_attributes"`
	Additional         map[string]any      `json:"additional_attributes"`
	NeedsResearch      []string            `json:"needs_research"`
	Corrections        []correctionPayload `json:"corrections"`
	Confidence         float64             `json:"confidence"`
	ResearchPerformed  bool                `json:"research_performed"`
	ResearchSources    []string            `json:"research_sources"`
}

type correctionPayload struct {
	Field    string `json:"field"`
	Original string `json:"original"`
	Fixed    string `json:"fixed"`
	Reason   string `json:"reason"`
}

// ParseAnalysis decodes and validates a provider's raw text answer.
func ParseAnalysis(providerName, text string) (*model.AnalysisResult, error) {
	raw, err := extractJSON(text)
	if err != nil {
		return nil, err
	}

	var payload analysisPayload
	dec := json.NewDecoder(strings.NewReader(raw))
	if err := dec.Decode(&payload); err != nil {
		return nil, eris.Wrapf(err, "provider %s: decode analysis", providerName)
	}

	if payload.CategoryConfidence < 0 || payload.CategoryConfidence > 1 {
		return nil, eris.Errorf("provider %s: category_confidence %v out of range", providerName, payload.CategoryConfidence)
	}
	if payload.Confidence < 0 || payload.Confidence > 1 {
		return nil, eris.Errorf("provider %s: confidence %v out of range", providerName, payload.Confidence)
	}

	primary, err := coerceAttributes(payload.Primary)
	if err != nil {
		return nil, eris.Wrapf(err, "provider %s: primary_attributes", providerName)
	}
	filter, err := coerceAttributes(payload.Filter)
	if err != nil {
		return nil, eris.Wrapf(err, "provider %s: filter_attributes", providerName)
	}
	additional, err := coerceAttributes(payload.Additional)
	if err != nil {
		return nil, eris.Wrapf(err, "provider %s: additional_attributes", providerName)
	}

	result := &model.AnalysisResult{
		Provider:           providerName,
		Success:            true,
		Category:           strings.TrimSpace(payload.Category),
		CategoryConfidence: payload.CategoryConfidence,
		CategoryReasoning:  strings.TrimSpace(payload.CategoryReasoning),
		Primary:            primary,
		Filter:             filter,
		Additional:         additional,
		NeedsResearch:      payload.NeedsResearch,
		Confidence:         payload.Confidence,
		ResearchPerformed:  payload.ResearchPerformed,
		ResearchSources:    payload.ResearchSources,
	}
	for _, c := range payload.Corrections {
		result.Corrections = append(result.Corrections, model.Correction{
			Field:    c.Field,
			Original: c.Original,
			Fixed:    c.Fixed,
			Reason:   c.Reason,
		})
	}
	return result, nil
}

// ParseResearch decodes a research answer: a flat JSON object mapping
// each requested field to a value or the "unknown" sentinel. Fields the
// provider omitted are filled in as unknown.
func ParseResearch(providerName, text string, fields []string) (map[string]string, error) {
	raw, err := extractJSON(text)
	if err != nil {
		return nil, err
	}

	var payload map[string]any
	if err := json.Unmarshal([]byte(raw), &payload); err != nil {
		return nil, eris.Wrapf(err, "provider %s: decode research", providerName)
	}

	answers, err := coerceAttributes(payload)
	if err != nil {
		return nil, eris.Wrapf(err, "provider %s: research values", providerName)
	}

	out := make(map[string]string, len(fields))
	for _, f := range fields {
		key := strings.ToLower(strings.TrimSpace(f))
		if v, ok := answers[key]; ok && strings.TrimSpace(v) != "" {
			out[key] = v
		} else {
			out[key] = ResearchUnknown
		}
	}
	return out, nil
}

// extractJSON locates the JSON object in an LLM answer, tolerating
// markdown code fences and prose around it.
func extractJSON(text string) (string, error) {
	text = strings.TrimSpace(text)
	if i := strings.Index(text, "```"); i >= 0 {
		text = text[i+3:]
		text = strings.TrimPrefix(text, "json")
		if j := strings.Index(text, "```"); j >= 0 {
			text = text[:j]
		}
	}
	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start < 0 || end <= start {
		return "", eris.New("provider: no JSON object in response")
	}
	return text[start : end+1], nil
}

// coerceAttributes flattens a loosely-typed attribute object into
// string values, keyed by lowercased field name. Scalar values coerce;
// nested objects or arrays are rejected as malformed.
func coerceAttributes(in map[string]any) (map[string]string, error) {
	if len(in) == 0 {
		return nil, nil
	}
	out := make(map[string]string, len(in))
	for k, v := range in {
		s, err := coerceScalar(v)
		if err != nil {
			return nil, eris.Wrapf(err, "field %s", k)
		}
		if s == "" {
			continue
		}
		out[strings.ToLower(strings.TrimSpace(k))] = s
	}
	return out, nil
}

func coerceScalar(v any) (string, error) {
	switch t := v.(type) {
	case nil:
		return "", nil
	case string:
		return strings.TrimSpace(t), nil
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64), nil
	case bool:
		return strconv.FormatBool(t), nil
	default:
		return "", eris.New(fmt.Sprintf("unsupported value type %T", v))
	}
}
