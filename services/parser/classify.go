package parser

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

var (
	itemAddRe      = regexp.MustCompile(`(?i)item\s+adicionado:\s*([\w/\-]+)\s*x\s*(\d+)`)
	itemRemoveRe   = regexp.MustCompile(`(?i)item\s+removido:\s*([\w/\-]+)\s*x\s*(\d+)`)
	itemTokenRe    = regexp.MustCompile(`([\w/\-]+)\s*x\s*(\d+)`)
	insertTitleRe  = regexp.MustCompile(`(?i)inserir|insert|guardar`)
	removeTitleRe  = regexp.MustCompile(`(?i)remover|remove|retirar`)
	depositRe      = regexp.MustCompile(`(?i)valor\s+depositado:\s*\$?\s*([\d.,]+)`)
	withdrawRe     = regexp.MustCompile(`(?i)valor\s+sacado:\s*\$?\s*([\d.,]+)`)
	balanceAfterRe = regexp.MustCompile(`(?i)saldo\s+ap[oó]s\s+(?:dep[oó]sito|saque):\s*\$?\s*([\d.,]+)`)
	actionLineRe   = regexp.MustCompile(`(?im)^(?:ação|acao|action):\s*(.+)$`)
	depositWordRe  = regexp.MustCompile(`(?i)dep[oó]sito|deposit`)
	withdrawWordRe = regexp.MustCompile(`(?i)saque|sacar|withdraw`)
	anyAmountRe    = regexp.MustCompile(`\$\s*([\d.,]+)`)
	saleRe         = regexp.MustCompile(`(?i)(?:sold|vendeu)\s+(\d+)\s+animals?(?:\D*\$\s*([\d.,]+))?`)
)

func (p *Parser) classifyInventory(text string, embeds []Embed) (Result, bool) {
	kind := TypeItemAdd
	m := itemAddRe.FindStringSubmatch(text)
	if m == nil {
		if m = itemRemoveRe.FindStringSubmatch(text); m != nil {
			kind = TypeItemRemove
		}
	}

	// embed variant: organization-style title plus a bare "<item> x<n>" token
	if m == nil {
		for _, embed := range embeds {
			if insertTitleRe.MatchString(embed.Title) {
				kind = TypeItemAdd
			} else if removeTitleRe.MatchString(embed.Title) {
				kind = TypeItemRemove
			} else {
				continue
			}
			m = itemTokenRe.FindStringSubmatch(text)
			break
		}
	}

	if m == nil {
		return Result{}, false
	}

	quantity, err := strconv.ParseInt(m[2], 10, 64)
	if err != nil {
		return Result{}, false
	}

	item := p.NormalizeItem(m[1])
	verb := "Added"
	if kind == TypeItemRemove {
		verb = "Removed"
	}

	return Result{
		Success:     true,
		Category:    CategoryInventory,
		Type:        kind,
		Item:        item,
		Quantity:    quantity,
		Confidence:  ConfidenceHigh,
		DisplayText: fmt.Sprintf("%s %dx %s", verb, quantity, item),
	}, true
}

func (p *Parser) classifyFinancial(text string, embeds []Embed) (Result, bool) {
	kind := ""
	confidence := ConfidenceHigh
	var amount float64

	switch {
	case depositRe.MatchString(text):
		kind = TypeDeposit
		amount = ParseAmount(depositRe.FindStringSubmatch(text)[1])
	case withdrawRe.MatchString(text):
		kind = TypeWithdrawal
		amount = ParseAmount(withdrawRe.FindStringSubmatch(text)[1])
	default:
		// embed title keywords with a loose amount anywhere in the text
		for _, embed := range embeds {
			if depositWordRe.MatchString(embed.Title) {
				kind = TypeDeposit
			} else if withdrawWordRe.MatchString(embed.Title) {
				kind = TypeWithdrawal
			} else {
				continue
			}
			confidence = ConfidenceMedium
			if m := anyAmountRe.FindStringSubmatch(text); m != nil {
				amount = ParseAmount(m[1])
			}
			break
		}
	}

	if kind == "" {
		return Result{}, false
	}

	var balanceAfter float64
	if m := balanceAfterRe.FindStringSubmatch(text); m != nil {
		balanceAfter = ParseAmount(m[1])
	}

	display := fmt.Sprintf("Deposited $%.2f", amount)
	if kind == TypeWithdrawal {
		display = fmt.Sprintf("Withdrew $%.2f", amount)
	}
	if m := actionLineRe.FindStringSubmatch(text); m != nil {
		display = strings.TrimSpace(m[1])
	}

	return Result{
		Success:      true,
		Category:     CategoryFinancial,
		Type:         kind,
		Amount:       amount,
		BalanceAfter: balanceAfter,
		Confidence:   confidence,
		DisplayText:  display,
	}, true
}

func (p *Parser) classifySale(text string, _ []Embed) (Result, bool) {
	m := saleRe.FindStringSubmatch(text)
	if m == nil {
		return Result{}, false
	}

	quantity, err := strconv.ParseInt(m[1], 10, 64)
	if err != nil {
		return Result{}, false
	}

	var amount float64
	if m[2] != "" {
		amount = ParseAmount(m[2])
	}

	display := fmt.Sprintf("Sold %d animals", quantity)
	if amount > 0 {
		display = fmt.Sprintf("Sold %d animals for $%.2f", quantity, amount)
	}

	return Result{
		Success:     true,
		Category:    CategorySale,
		Type:        TypeAnimalSale,
		Quantity:    quantity,
		Amount:      amount,
		Confidence:  ConfidenceHigh,
		DisplayText: display,
	}, true
}

var (
	inventoryWordsRe = regexp.MustCompile(`(?i)item|inventory|estoque|add|remove`)
	financialWordsRe = regexp.MustCompile(`(?i)\$|money|deposit|value|valor|saldo|sold`)
)

// fallback guarantees a result for unrecognized formats. Success stays false
// so ingestion can tell real parses from best-effort guesses.
func (p *Parser) fallback(text string) Result {
	cleaned := stripFormatting(text)

	category := CategorySystem
	switch {
	case inventoryWordsRe.MatchString(cleaned):
		category = CategoryInventory
	case financialWordsRe.MatchString(cleaned):
		category = CategoryFinancial
	}

	return Result{
		Success:     false,
		Category:    category,
		Type:        TypeUnknown,
		Confidence:  ConfidenceLow,
		DisplayText: truncateDisplay(cleaned, p.cfg.MaxDisplayLength),
	}
}
