package main

import (
	"strings"

	"github.com/buger/jsonparser"
)

// SerpObservation is what the engine extracts from one raw SerpAPI
// payload before classification.
type SerpObservation struct {
	HasAIOverview bool
	AnswerText    string
	CitedURLs     []string // citation order preserved
}

// ParseAIOverview extracts the AI Overview block of a regular Google
// SERP payload: presence, concatenated answer text and cited links.
func ParseAIOverview(raw []byte) SerpObservation {
	observation := SerpObservation{}

	aiOverview, _, _, err := jsonparser.Get(raw, "ai_overview")
	if err != nil {
		return observation
	}
	// An ai_overview object holding only a page_token means the block
	// exists but must be fetched separately; treat it as present with
	// no content.
	observation.HasAIOverview = true

	observation.AnswerText = collectTextBlocks(aiOverview)
	observation.CitedURLs = collectReferenceLinks(aiOverview)
	return observation
}

// ParseAIMode extracts the answer of a google_ai_mode payload, where
// text blocks and references live at the top level.
func ParseAIMode(raw []byte) SerpObservation {
	observation := SerpObservation{
		AnswerText: collectTextBlocks(raw),
		CitedURLs:  collectReferenceLinks(raw),
	}
	observation.HasAIOverview = observation.AnswerText != "" || len(observation.CitedURLs) > 0
	return observation
}

func collectTextBlocks(raw []byte) string {
	var parts []string
	jsonparser.ArrayEach(raw, func(block []byte, _ jsonparser.ValueType, _ int, _ error) {
		if snippet, err := jsonparser.GetString(block, "snippet"); err == nil && snippet != "" {
			parts = append(parts, snippet)
		}
		jsonparser.ArrayEach(block, func(item []byte, _ jsonparser.ValueType, _ int, _ error) {
			if title, err := jsonparser.GetString(item, "title"); err == nil && title != "" {
				parts = append(parts, title)
			}
			if snippet, err := jsonparser.GetString(item, "snippet"); err == nil && snippet != "" {
				parts = append(parts, snippet)
			}
		}, "list")
	}, "text_blocks")
	return strings.Join(parts, " ")
}

func collectReferenceLinks(raw []byte) []string {
	var links []string
	jsonparser.ArrayEach(raw, func(ref []byte, _ jsonparser.ValueType, _ int, _ error) {
		if link, err := jsonparser.GetString(ref, "link"); err == nil && link != "" {
			links = append(links, link)
		}
	}, "references")
	return links
}

// SourceDomains reduces cited URLs to unique registrable domains,
// citation order preserved.
func SourceDomains(urls []string) []string {
	var domains []string
	seen := map[string]bool{}
	for _, raw := range urls {
		domain := NormalizeDomain(raw)
		if domain == "" || seen[domain] {
			continue
		}
		seen[domain] = true
		domains = append(domains, domain)
	}
	return domains
}
