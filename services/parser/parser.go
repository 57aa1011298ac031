package parser

import (
	"go.uber.org/fx"

	"farmledger/pkg/config"
)

type Confidence string

const (
	ConfidenceNone   Confidence = "none"
	ConfidenceLow    Confidence = "low"
	ConfidenceMedium Confidence = "medium"
	ConfidenceHigh   Confidence = "high"
)

type Category string

const (
	CategoryInventory Category = "inventory"
	CategoryFinancial Category = "financial"
	CategorySale      Category = "sale"
	CategorySystem    Category = "system"
)

const (
	TypeItemAdd    = "item_add"
	TypeItemRemove = "item_remove"
	TypeDeposit    = "deposit"
	TypeWithdrawal = "withdrawal"
	TypeAnimalSale = "animal_sale"
	TypeUnknown    = "unknown"
)

type Field struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

type EmbedAuthor struct {
	Name string `json:"name"`
}

type Embed struct {
	Title       string      `json:"title"`
	Description string      `json:"description"`
	Author      EmbedAuthor `json:"author"`
	Fields      []Field     `json:"fields"`
}

// Message is the discriminated input shape: plain content, embeds, or both.
type Message struct {
	Author  string  `json:"author"`
	Content string  `json:"content"`
	Embeds  []Embed `json:"embeds"`
}

// Result is a classified activity before persistence.
type Result struct {
	Success      bool
	Category     Category
	Type         string
	Item         string
	Quantity     int64
	Amount       float64
	BalanceAfter float64
	Confidence   Confidence
	DisplayText  string
}

// Config makes the parser a pure function of its inputs: the synonym table,
// bot account names and display truncation are injected rather than global.
type Config struct {
	Synonyms         map[string]string
	BotNames         []string
	MaxDisplayLength int
}

type Parser struct {
	cfg Config
}

func New(cfg Config) *Parser {
	if cfg.Synonyms == nil {
		cfg.Synonyms = DefaultSynonyms()
	}
	if cfg.MaxDisplayLength == 0 {
		cfg.MaxDisplayLength = 150
	}
	return &Parser{cfg: cfg}
}

type parserParams struct {
	fx.In
	Cfg *config.Config
}

func provide(p parserParams) *Parser {
	return New(Config{
		BotNames: p.Cfg.Ingest.BotNames,
	})
}

var Module = fx.Module("parser",
	fx.Provide(provide),
)

type strategy func(text string, embeds []Embed) (Result, bool)

// Classify runs the ordered strategies over the canonical text; the first
// match wins. It never fails: the fallback strategy always yields a
// low-confidence result.
func (p *Parser) Classify(text string, embeds []Embed) Result {
	strategies := []strategy{
		p.classifyInventory,
		p.classifyFinancial,
		p.classifySale,
	}

	for _, s := range strategies {
		if result, ok := s(text, embeds); ok {
			return result
		}
	}

	return p.fallback(text)
}
