package parser

import (
	"strings"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func init() {
	zap.ReplaceGlobals(zap.NewNop())
}

func newTestParser() *Parser {
	return New(Config{BotNames: []string{"Captain Hook"}})
}

func TestParseAmount(t *testing.T) {
	cases := []struct {
		raw  string
		want float64
	}{
		{"0,45", 0.45},
		{"160,00", 160},
		{"1.500,45", 1500.45},
		{"45.50", 45.50},
		{"$ 112,5", 112.5},
		{"1000", 1000},
		{"", 0},
		{"abc", 0},
	}

	for _, tc := range cases {
		require.Equal(t, tc.want, ParseAmount(tc.raw), "raw=%q", tc.raw)
	}
}

func TestNormalizeItem(t *testing.T) {
	p := newTestParser()

	require.Equal(t, "Wheat", p.NormalizeItem("trigo"))
	require.Equal(t, "Corn", p.NormalizeItem("MILHO"))
	require.Equal(t, "Golden Apple", p.NormalizeItem("golden_apple"))
	require.Equal(t, "", p.NormalizeItem("  "))
}

func TestClassifyItemAdd(t *testing.T) {
	p := newTestParser()

	result := p.Classify("Item adicionado: trigo x50", nil)
	require.True(t, result.Success)
	require.Equal(t, CategoryInventory, result.Category)
	require.Equal(t, TypeItemAdd, result.Type)
	require.Equal(t, "Wheat", result.Item)
	require.Equal(t, int64(50), result.Quantity)
	require.Equal(t, ConfidenceHigh, result.Confidence)
	require.Equal(t, "Added 50x Wheat", result.DisplayText)
}

func TestClassifyItemRemove(t *testing.T) {
	p := newTestParser()

	result := p.Classify("Item removido: milho x12", nil)
	require.True(t, result.Success)
	require.Equal(t, TypeItemRemove, result.Type)
	require.Equal(t, "Corn", result.Item)
	require.Equal(t, int64(12), result.Quantity)
	require.Equal(t, "Removed 12x Corn", result.DisplayText)
}

func TestClassifyInventoryFromEmbedTitle(t *testing.T) {
	p := newTestParser()

	embeds := []Embed{{Title: "Inserir item no estoque"}}
	result := p.Classify("trigo x30", embeds)
	require.True(t, result.Success)
	require.Equal(t, TypeItemAdd, result.Type)
	require.Equal(t, "Wheat", result.Item)
	require.Equal(t, int64(30), result.Quantity)
}

func TestClassifyDepositWithBalance(t *testing.T) {
	p := newTestParser()

	text := "Valor depositado: $160,00\nSaldo após depósito: $1.500,45"
	result := p.Classify(text, nil)
	require.True(t, result.Success)
	require.Equal(t, CategoryFinancial, result.Category)
	require.Equal(t, TypeDeposit, result.Type)
	require.Equal(t, 160.0, result.Amount)
	require.Equal(t, 1500.45, result.BalanceAfter)
	require.Equal(t, ConfidenceHigh, result.Confidence)
}

func TestClassifyWithdrawal(t *testing.T) {
	p := newTestParser()

	result := p.Classify("Valor sacado: $75,50", nil)
	require.True(t, result.Success)
	require.Equal(t, TypeWithdrawal, result.Type)
	require.Equal(t, 75.50, result.Amount)
	require.Equal(t, "Withdrew $75.50", result.DisplayText)
}

func TestClassifyDepositFromEmbedTitle(t *testing.T) {
	p := newTestParser()

	embeds := []Embed{{Title: "Depósito realizado"}}
	result := p.Classify("Total: $ 300,00", embeds)
	require.True(t, result.Success)
	require.Equal(t, TypeDeposit, result.Type)
	require.Equal(t, 300.0, result.Amount)
	require.Equal(t, ConfidenceMedium, result.Confidence)
}

func TestClassifyAnimalSale(t *testing.T) {
	p := newTestParser()

	result := p.Classify("John sold 5 animals for $250.00", nil)
	require.True(t, result.Success)
	require.Equal(t, CategorySale, result.Category)
	require.Equal(t, TypeAnimalSale, result.Type)
	require.Equal(t, int64(5), result.Quantity)
	require.Equal(t, 250.0, result.Amount)
	require.Equal(t, "Sold 5 animals for $250.00", result.DisplayText)
}

func TestClassifyFallback(t *testing.T) {
	p := newTestParser()

	result := p.Classify("hello there", nil)
	require.False(t, result.Success)
	require.Equal(t, CategorySystem, result.Category)
	require.Equal(t, TypeUnknown, result.Type)
	require.Equal(t, ConfidenceLow, result.Confidence)
	require.Equal(t, "hello there", result.DisplayText)
}

func TestClassifyFallbackTruncatesOnRuneBoundary(t *testing.T) {
	p := newTestParser()

	result := p.Classify("x"+strings.Repeat("ã", 400), nil)
	require.True(t, utf8.ValidString(result.DisplayText))
	require.True(t, strings.HasSuffix(result.DisplayText, "..."))
	require.LessOrEqual(t, utf8.RuneCountInString(result.DisplayText), 153)
}

func TestClassifyFallbackCategoryGuess(t *testing.T) {
	p := newTestParser()

	require.Equal(t, CategoryInventory, p.Classify("estoque atualizado", nil).Category)
	require.Equal(t, CategoryFinancial, p.Classify("saldo insuficiente", nil).Category)
}

func TestNormalizeSynthesizesEmbedText(t *testing.T) {
	p := newTestParser()

	msg := Message{Embeds: []Embed{{
		Title:       "Inserir Item",
		Description: "Registro do estoque",
		Author:      EmbedAuthor{Name: "Farm Org"},
		Fields: []Field{
			{Name: "`Item:`", Value: "```\ntrigo x50\n```"},
			{Name: "", Value: ""},
		},
	}}}

	text := p.Normalize(msg)
	require.Equal(t, "Farm Org\nInserir Item\nRegistro do estoque\nItem: trigo x50", text)
}

func TestNormalizePrefersContent(t *testing.T) {
	p := newTestParser()

	msg := Message{Content: "plain text", Embeds: []Embed{{Title: "ignored"}}}
	require.Equal(t, "plain text", p.Normalize(msg))
}

func TestExtractAuthorFromFixoField(t *testing.T) {
	p := newTestParser()

	msg := Message{Embeds: []Embed{{Fields: []Field{
		{Name: "Autor", Value: "John Doe | FIXO: 12345"},
	}}}}
	require.Equal(t, "John Doe", p.ExtractAuthor(msg))
}

func TestExtractAuthorFromActionField(t *testing.T) {
	p := newTestParser()

	msg := Message{Embeds: []Embed{{Fields: []Field{
		{Name: "Ação", Value: "Maria vendeu 3 animais"},
	}}}}
	require.Equal(t, "Maria", p.ExtractAuthor(msg))
}

func TestExtractAuthorFromAuthorLine(t *testing.T) {
	p := newTestParser()

	msg := Message{Content: "Author: Pedro\nValor depositado: $10,00"}
	require.Equal(t, "Pedro", p.ExtractAuthor(msg))
}

func TestExtractAuthorSkipsBots(t *testing.T) {
	p := newTestParser()

	msg := Message{Author: "Captain Hook", Content: "Maria deposited $100"}
	require.Equal(t, "Maria", p.ExtractAuthor(msg))
}

func TestExtractAuthorFallsBackToSystem(t *testing.T) {
	p := newTestParser()

	msg := Message{Author: "captain hook", Content: "unattributed noise"}
	require.Equal(t, "System", p.ExtractAuthor(msg))
}

func TestExtractFixoID(t *testing.T) {
	require.Equal(t, "12345", ExtractFixoID("John Doe | FIXO: 12345"))
	require.Equal(t, "", ExtractFixoID("John Doe"))
}

func TestExtractTimestamp(t *testing.T) {
	ts, ok := ExtractTimestamp("Data: 25/12/2023 - 14:30:00")
	require.True(t, ok)
	require.Equal(t, time.Date(2023, 12, 25, 14, 30, 0, 0, time.UTC), ts)

	_, ok = ExtractTimestamp("no marker here")
	require.False(t, ok)
}

func TestSplitMessages(t *testing.T) {
	content := "[3:42 PM] CAPITÃO CALDEIRA\nItem adicionado: trigo x50\n[3:45 PM] CAPITÃO CALDEIRA\nValor depositado: $160,00"

	messages := SplitMessages(content, "CAPITÃO CALDEIRA")
	require.Len(t, messages, 2)
	require.Equal(t, "Item adicionado: trigo x50", messages[0])
	require.Equal(t, "Valor depositado: $160,00", messages[1])
}

func TestSplitMessagesWithoutMarkers(t *testing.T) {
	require.Equal(t, []string{"single message"}, SplitMessages("single message", "TAG"))
	require.Nil(t, SplitMessages("   ", "TAG"))
}
