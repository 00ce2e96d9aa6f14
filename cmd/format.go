package cmd

import (
	"encoding/json"
	"fmt"
	"io"
	"net/url"
	"strconv"
	"strings"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
	"github.com/shopspring/decimal"
	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"github.com/lukman83/kidkazz-catalog/internal/imagery"
	"github.com/lukman83/kidkazz-catalog/internal/models"
	"github.com/lukman83/kidkazz-catalog/internal/pipeline"
)

// Both marketplaces price in roubles.
var printer = message.NewPrinter(language.Russian)

type columnAlignment int

const (
	alignLeft columnAlignment = iota
	alignRight
)

func renderTable(headers []string, rows [][]string, aligns []columnAlignment) string {
	columns := len(headers)
	if columns == 0 {
		return ""
	}

	tw := table.NewWriter()
	tw.SetStyle(table.StyleRounded)

	header := make(table.Row, columns)
	for i := range columns {
		header[i] = headers[i]
	}
	tw.AppendHeader(header)

	for _, row := range rows {
		r := make(table.Row, columns)
		for i := range columns {
			if i < len(row) {
				r[i] = row[i]
			} else {
				r[i] = ""
			}
		}
		tw.AppendRow(r)
	}

	configs := make([]table.ColumnConfig, 0, columns)
	for i := range columns {
		align := text.AlignLeft
		if i < len(aligns) && aligns[i] == alignRight {
			align = text.AlignRight
		}
		configs = append(configs, table.ColumnConfig{Number: i + 1, Align: align, AlignHeader: text.AlignLeft})
	}
	tw.SetColumnConfigs(configs)
	return tw.Render()
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	enc.SetEscapeHTML(false)
	return enc.Encode(v)
}

// formatPrice formats a decimal price as "1 234,50 ₽".
func formatPrice(d decimal.Decimal) string {
	return printer.Sprintf("%.2f ₽", d.InexactFloat64())
}

func formatOptionalPrice(d *decimal.Decimal) string {
	if d == nil {
		return "-"
	}
	return formatPrice(*d)
}

func printRecordsTable(w io.Writer, records []models.ProductRecord) {
	headers := []string{"#", "ID", "Name", "Price", "Discount", "Card", "Rating", "Reviews", "Stock", "Image"}
	aligns := []columnAlignment{alignRight, alignLeft, alignLeft, alignRight, alignRight, alignRight, alignRight, alignRight, alignRight, alignLeft}
	rows := make([][]string, 0, len(records))
	for i, r := range records {
		discount := formatOptionalPrice(r.DiscountPrice)
		if pct := r.DiscountPercent(); pct > 0 {
			discount += fmt.Sprintf(" (-%.1f%%)", pct)
		}
		stock := strconv.Itoa(r.Quantity)
		if !r.IsAvailable {
			stock = "out"
		}
		rows = append(rows, []string{
			strconv.Itoa(i + 1),
			r.ProductID,
			truncate(r.Name, 40),
			formatPrice(r.Price),
			discount,
			formatOptionalPrice(r.CardPrice),
			strconv.FormatFloat(r.Rating, 'f', 1, 64),
			strconv.Itoa(r.ReviewsCount),
			stock,
			string(r.ImageSource),
		})
	}
	fmt.Fprintln(w, renderTable(headers, rows, aligns))
}

func printRecordDetail(w io.Writer, r models.ProductRecord) {
	rows := [][]string{
		{"Product", r.Key().String()},
		{"Name", r.Name},
		{"Price", formatPrice(r.Price)},
		{"Discount price", formatOptionalPrice(r.DiscountPrice)},
		{"Card price", formatOptionalPrice(r.CardPrice)},
		{"Rating", fmt.Sprintf("%.1f (%d reviews)", r.Rating, r.ReviewsCount)},
		{"Stock", fmt.Sprintf("%d (available: %t)", r.Quantity, r.IsAvailable)},
		{"Image", fmt.Sprintf("%s [%s]", r.ImageURL, r.ImageSource)},
		{"URL", cleanURL(r.ProductURL)},
	}
	if !r.UpdatedAt.IsZero() {
		rows = append(rows, []string{"Updated", r.UpdatedAt.Format("2006-01-02 15:04:05")})
	}
	fmt.Fprintln(w, renderTable([]string{"Field", "Value"}, rows, nil))
}

func printOutcome(w io.Writer, productID string, o imagery.Outcome) {
	trace := make([]string, len(o.Trace))
	for i, s := range o.Trace {
		trace[i] = string(s)
	}
	rows := [][]string{
		{"Product", productID},
		{"Image", o.URL},
		{"Source", string(o.Source)},
		{"Attempts", strconv.Itoa(o.Attempts)},
		{"Trace", strings.Join(trace, " → ")},
		{"Resolution", o.ResolutionID},
	}
	fmt.Fprintln(w, renderTable([]string{"Field", "Value"}, rows, nil))
}

func printStats(w io.Writer, s pipeline.Stats) {
	p := s.Prices
	rows := [][]string{
		{"Products", strconv.Itoa(p.Count)},
		{"Average price", formatPrice(p.Average)},
		{"Min price", formatPrice(p.Min)},
		{"Max price", formatPrice(p.Max)},
		{"Discounted", strconv.Itoa(p.DiscountedCount)},
		{"Average discount", fmt.Sprintf("%.1f%%", p.AverageDiscountPct)},
	}
	fmt.Fprintln(w, renderTable([]string{"Metric", "Value"}, rows, []columnAlignment{alignLeft, alignRight}))

	rating := make([][]string, 0, len(s.Ratings))
	for _, b := range s.Ratings {
		rating = append(rating, []string{b.Label, strconv.Itoa(b.Count)})
	}
	fmt.Fprintln(w, renderTable([]string{"Rating", "Products"}, rating, []columnAlignment{alignLeft, alignRight}))
}

// cleanURL strips tracking query params and returns just the product page URL.
func cleanURL(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return rawURL
	}
	u.RawQuery = ""
	return u.String()
}

func truncate(s string, max int) string {
	r := []rune(s)
	if len(r) <= max {
		return s
	}
	if max <= 3 {
		return string(r[:max])
	}
	return string(r[:max-3]) + "..."
}
