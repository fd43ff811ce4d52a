// Package parser extracts structured transactions from bank notification
// emails. Notifications arrive as semi-structured HTML tables or loose text;
// extraction is two-tiered: a label map built from table rows is consulted
// first, then ordered regex cascades over the full text. Within each cascade
// the first non-empty match wins, so pattern order is load-bearing.
package parser

import (
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/net/html"

	"github.com/jpvargas/gastotrack/internal/common"
	"github.com/jpvargas/gastotrack/internal/model"
	"github.com/jpvargas/gastotrack/internal/review"
)

// ParsedTransaction holds the fields extracted from one notification email.
// Card last4 and reference id are mandatory; everything else degrades to a
// default.
type ParsedTransaction struct {
	Date         time.Time
	Amount       decimal.Decimal
	Currency     string
	CardLast4    string
	MerchantName string
	ReferenceID  string
	Confidence   float64
	DateFound    bool
	CardDetected bool
}

var cardLast4Regexes = []*regexp.Regexp{
	regexp.MustCompile(`\*{2,}\s*(\d{4})`),
	regexp.MustCompile(`(?i)terminaci[oó]n\s+(\d{4})`),
	regexp.MustCompile(`(?i)tarjeta\s+(?:terminada\s+en\s+)?(\d{4})`),
}

var referenceRegexes = []*regexp.Regexp{
	regexp.MustCompile(`(?i)referencia:?\s*([\w-]+)`),
	regexp.MustCompile(`(?i)autorizaci[oó]n:?\s*([\w-]+)`),
	regexp.MustCompile(`(?i)n[úu]mero\s+de\s+referencia:?\s*([\w-]+)`),
}

var merchantRegexes = []*regexp.Regexp{
	regexp.MustCompile(`(?i)comercio:?\s*([A-ZÁÉÍÓÚÑ0-9 /'.-]+)`),
	regexp.MustCompile(`(?i)\ben\s+([A-ZÁÉÍÓÚÑ0-9 /'.-]+?)(?:\.|,|\n|$)`),
	regexp.MustCompile(`(?i)\bhacia\s+([A-ZÁÉÍÓÚÑ0-9 /'.-]+?)(?:\.|,|\n|$)`),
}

var fourDigits = regexp.MustCompile(`(\d{4})`)

// Parser extracts transactions from bank notification emails.
type Parser struct{}

// New creates a notification parser.
func New() *Parser {
	return &Parser{}
}

// Parse extracts a transaction from the email. It returns an error wrapping
// common.ErrUnparseable when the card last4 or the reference id cannot be
// found; all other fields fall back to defaults.
func (p *Parser) Parse(email *model.RawEmail) (*ParsedTransaction, error) {
	root := parseHTML(email.Body)
	labels := buildLabelMap(root)
	body := joinNonEmpty("\n", email.Subject, email.Snippet, visibleText(root))

	cardLast4 := extractCardLast4(labels, body)

	reference := firstLabel(labels, "referencia", "autorización", "autorizacion")
	if reference == "" {
		reference = firstMatch(body, referenceRegexes)
	}

	amount, currency := extractAmount(labels, body)

	merchant := firstLabel(labels, "comercio", "comercio favorito")
	if merchant == "" {
		merchant = firstMatch(body, merchantRegexes)
	}
	merchant = strings.Trim(merchant, " .")

	date, dateFound := extractDate(labels, body, email)

	if cardLast4 == "" || reference == "" {
		return nil, fmt.Errorf("%w: card last4 or reference id missing", common.ErrUnparseable)
	}

	parsed := &ParsedTransaction{
		Date:         date,
		Amount:       amount,
		Currency:     currency,
		CardLast4:    cardLast4,
		MerchantName: merchant,
		ReferenceID:  reference,
		DateFound:    dateFound,
		CardDetected: true,
	}
	parsed.Confidence = review.Score(review.ParseSignals{
		Amount:       parsed.Amount,
		MerchantName: parsed.MerchantName,
		ReferenceID:  parsed.ReferenceID,
		RawBody:      email.Body,
		HasDate:      parsed.DateFound,
		CardDetected: parsed.CardDetected,
	})

	return parsed, nil
}

func extractCardLast4(labels map[string]string, body string) string {
	for _, key := range []string{"terminación", "terminacion", "tarjeta"} {
		if value, ok := labels[key]; ok {
			if m := fourDigits.FindStringSubmatch(value); m != nil {
				return m[1]
			}
		}
	}
	return firstMatch(body, cardLast4Regexes)
}

// firstLabel returns the value of the first present label.
func firstLabel(labels map[string]string, keys ...string) string {
	for _, key := range keys {
		if value, ok := labels[key]; ok && value != "" {
			return value
		}
	}
	return ""
}

// firstMatch runs the ordered cascade and returns the first non-empty capture.
func firstMatch(body string, patterns []*regexp.Regexp) string {
	for _, re := range patterns {
		if m := re.FindStringSubmatch(body); m != nil && m[1] != "" {
			return m[1]
		}
	}
	return ""
}

func joinNonEmpty(sep string, parts ...string) string {
	kept := parts[:0:0]
	for _, part := range parts {
		if strings.TrimSpace(part) != "" {
			kept = append(kept, part)
		}
	}
	return strings.TrimSpace(strings.Join(kept, sep))
}

// parseHTML never fails on real-world input: the tokenizer treats malformed
// markup and plain text alike as a document.
func parseHTML(body string) *html.Node {
	root, err := html.Parse(strings.NewReader(body))
	if err != nil {
		return nil
	}
	return root
}

// buildLabelMap scans table rows, taking the first cell as a lowercased label
// and the second as its value. Only the first occurrence of each label is
// kept, guarding against duplicate label rows.
func buildLabelMap(root *html.Node) map[string]string {
	labels := make(map[string]string)
	if root == nil {
		return labels
	}
	walk(root, func(n *html.Node) {
		if n.Type != html.ElementNode || n.Data != "tr" {
			return
		}
		texts := strippedStrings(n)
		if len(texts) < 2 {
			return
		}
		label := strings.ToLower(strings.TrimRight(texts[0], ":"))
		if _, seen := labels[label]; !seen {
			labels[label] = texts[1]
		}
	})
	return labels
}

// strippedStrings collects the trimmed non-empty text segments under a node
// in document order.
func strippedStrings(n *html.Node) []string {
	var texts []string
	walk(n, func(c *html.Node) {
		if c.Type != html.TextNode {
			return
		}
		if text := strings.TrimSpace(c.Data); text != "" {
			texts = append(texts, text)
		}
	})
	return texts
}

// visibleText returns the text content of the document joined with spaces,
// skipping script and style elements.
func visibleText(root *html.Node) string {
	if root == nil {
		return ""
	}
	var parts []string
	walk(root, func(n *html.Node) {
		if n.Type != html.TextNode {
			return
		}
		if p := n.Parent; p != nil && p.Type == html.ElementNode && (p.Data == "script" || p.Data == "style") {
			return
		}
		if text := strings.TrimSpace(n.Data); text != "" {
			parts = append(parts, text)
		}
	})
	return strings.Join(parts, " ")
}

func walk(n *html.Node, fn func(*html.Node)) {
	fn(n)
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		walk(c, fn)
	}
}
