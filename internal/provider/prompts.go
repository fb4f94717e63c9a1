package provider

import (
	"fmt"
	"sort"
	"strings"
	"unicode/utf8"
)

const analysisSystemPrompt = `You are a product data analyst verifying raw catalog records for home-improvement products. Analyze the record and respond with ONLY a valid JSON object of this exact shape:
{
  "category": "<product category>",
  "category_confidence": <0.0-1.0>,
  "category_reasoning": "<one or two sentences>",
  "primary_attributes": {"brand": "...", "model_number": "...", "depth": "...", "width": "...", "height": "...", "finish": "...", "weight": "..."},
  "filter_attributes": {"<category-specific filter>": "..."},
  "additional_attributes": {"<long-tail field>": "..."},
  "needs_research": ["<fields you could not determine>"],
  "corrections": [{"field": "...", "original": "...", "fixed": "...", "reason": "..."}],
  "confidence": <0.0-1.0>
}
Report dimensions in inches as bare numbers. Omit attributes you cannot support from the record; list them under needs_research instead. Never invent values.`

const researchSystemPrompt = `You are a product data researcher. Given a product's brand, model number and category, supply best-effort values for the requested fields. Respond with ONLY a valid JSON object mapping each requested field to its value, or to the literal string "unknown" if you cannot determine it. Never invent values.`

// maxRawTextChars bounds the unstructured source material in the prompt.
const maxRawTextChars = 6000

// buildAnalysisPrompt renders the user message for an extraction call.
func buildAnalysisPrompt(req AnalysisRequest) string {
	var b strings.Builder

	in := req.Input
	b.WriteString("Product record:\n")
	writeField(&b, "catalog_id", in.CatalogID)
	writeField(&b, "catalog_name", in.CatalogName)
	writeField(&b, "brand", in.Brand)
	writeField(&b, "model_number", in.ModelNumber)
	writeField(&b, "category_hint", in.Category)

	if len(in.RawAttributes) > 0 {
		b.WriteString("\nRaw attributes:\n")
		keys := make([]string, 0, len(in.RawAttributes))
		for k := range in.RawAttributes {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			writeField(&b, k, in.RawAttributes[k])
		}
	}

	if in.RawText != "" {
		text := truncateRunes(in.RawText, maxRawTextChars)
		b.WriteString("\nSource material:\n")
		b.WriteString(text)
		b.WriteString("\n")
	}

	if note := req.CrossValidation; note != nil {
		fmt.Fprintf(&b,
			"\nAnother analyst reviewed this record and proposed category %q with confidence %.2f and this reasoning: %s\nReconsider your category determination in light of their conclusion, then answer with the same JSON shape as before.\n",
			note.Category, note.Confidence, note.Reasoning,
		)
	}

	return b.String()
}

// buildResearchPrompt renders the user message for a research call. Only
// brand/model/category context is shared, never the full raw payload.
func buildResearchPrompt(req ResearchRequest) string {
	var b strings.Builder
	b.WriteString("Product:\n")
	writeField(&b, "brand", req.Brand)
	writeField(&b, "model_number", req.ModelNumber)
	writeField(&b, "category", req.Category)
	b.WriteString("\nRequested fields:\n")
	for _, f := range req.Fields {
		b.WriteString("- " + f + "\n")
	}
	return b.String()
}

// truncateRunes cuts s to at most max bytes without splitting a
// multi-byte rune.
func truncateRunes(s string, max int) string {
	if len(s) <= max {
		return s
	}
	cut := max
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut]
}

func writeField(b *strings.Builder, key, value string) {
	if strings.TrimSpace(value) == "" {
		return
	}
	b.WriteString(key + ": " + value + "\n")
}
