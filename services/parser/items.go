package parser

import "strings"

// DefaultSynonyms maps raw inventory tokens from the upstream bot to their
// display names. Tokens not present fall back to the generic snake_case
// transform in NormalizeItem.
func DefaultSynonyms() map[string]string {
	return map[string]string{
		"wheat":          "Wheat",
		"trigo":          "Wheat",
		"corn":           "Corn",
		"milho":          "Corn",
		"seed":           "Seed",
		"semente":        "Seed",
		"milk":           "Milk",
		"leite":          "Milk",
		"egg":            "Egg",
		"ovo":            "Egg",
		"wool":           "Wool",
		"la":             "Wool",
		"leather":        "Leather",
		"couro":          "Leather",
		"meat":           "Meat",
		"carne":          "Meat",
		"chicken_meat":   "Chicken Meat",
		"cow_milk":       "Cow Milk",
		"pig_meat":       "Pig Meat",
		"sheep_wool":     "Sheep Wool",
		"fertilizer":     "Fertilizer",
		"adubo":          "Fertilizer",
		"water_bucket":   "Water Bucket",
		"balde_de_agua":  "Water Bucket",
		"animal_feed":    "Animal Feed",
		"racao":          "Animal Feed",
		"packaged_milk":  "Packaged Milk",
		"packaged_eggs":  "Packaged Eggs",
		"packaged_wheat": "Packaged Wheat",
	}
}

// NormalizeItem resolves a raw item token to its display name: curated
// synonym first, otherwise snake_case becomes Title Case With Spaces.
func (p *Parser) NormalizeItem(raw string) string {
	token := strings.ToLower(strings.TrimSpace(raw))
	if token == "" {
		return ""
	}

	if name, ok := p.cfg.Synonyms[token]; ok {
		return name
	}

	words := strings.Split(token, "_")
	for i, word := range words {
		if word == "" {
			continue
		}
		words[i] = strings.ToUpper(word[:1]) + word[1:]
	}
	return strings.Join(words, " ")
}
