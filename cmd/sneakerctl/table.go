package main

import (
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"

	"sneaker-hunter/pkg/currency"
	"sneaker-hunter/pkg/models"
	"sneaker-hunter/pkg/orchestrator"
	"sneaker-hunter/pkg/registry"
)

func newTable(w io.Writer) table.Writer {
	t := table.NewWriter()
	t.SetStyle(table.StyleRounded)
	t.Style().Format.Footer = text.FormatDefault
	t.SetOutputMirror(w)
	return t
}

func renderSearch(w io.Writer, res orchestrator.LookupResult, display string) {
	t := newTable(w)
	t.AppendHeader(table.Row{"#", "Sneaker", "SKU", "Best price", "Range", "Sources", "Best deal"})
	for i, a := range res.Aggregated {
		t.AppendRow(table.Row{
			i + 1,
			text.Trim(a.Name, 48),
			a.SKU,
			currency.Format(a.LowestPrice, display),
			a.PriceRange,
			len(a.Listings),
			a.BestDeal.Source,
		})
	}
	t.SetColumnConfigs([]table.ColumnConfig{
		{Number: 4, Align: text.AlignRight},
		{Number: 6, Align: text.AlignRight},
	})

	footer := fmt.Sprintf("%d products from %d/%d sources in %dms",
		len(res.Aggregated), res.Meta.SourcesSucceeded, res.Meta.SourcesQueried, res.Meta.DurationMS)
	if res.Meta.Cached {
		footer = fmt.Sprintf("%d products (cached %s)", len(res.Aggregated), res.Meta.FetchedAt.Format("15:04:05"))
	}
	t.AppendFooter(table.Row{"", footer})
	t.Render()

	renderErrors(w, res.Meta.Errors)
}

func renderSources(w io.Writer, sources []registry.Source) {
	t := newTable(w)
	t.AppendHeader(table.Row{"ID", "Name", "Kind", "Trust", "Enabled", "Budget", "Timeout", "Fallback"})
	for _, s := range sources {
		budget := "unlimited"
		if s.RateLimit.Requests > 0 {
			budget = fmt.Sprintf("%d / %s", s.RateLimit.Requests, s.RateLimit.Window)
		}
		t.AppendRow(table.Row{s.ID, s.Name, s.Kind, s.Trust, s.Enabled, budget, s.Deadline(), s.Fallback})
	}
	t.Render()
}

// renderPrices pivots the price sheets: one row per size, one column per
// source.
func renderPrices(w io.Writer, res orchestrator.PricingResult, display string) {
	t := newTable(w)

	header := table.Row{"Size"}
	for _, sp := range res.Pricing {
		header = append(header, sp.Source)
	}
	t.AppendHeader(header)

	cells := make(map[string]map[string]models.SizePrice)
	var sizes []string
	for _, sp := range res.Pricing {
		for _, s := range sp.Sizes {
			if _, ok := cells[s.Size]; !ok {
				cells[s.Size] = make(map[string]models.SizePrice)
				sizes = append(sizes, s.Size)
			}
			cells[s.Size][sp.Source] = s
		}
	}
	sortSizes(sizes)

	for _, size := range sizes {
		row := table.Row{size}
		for _, sp := range res.Pricing {
			s, ok := cells[size][sp.Source]
			switch {
			case !ok:
				row = append(row, "")
			case !s.Available:
				row = append(row, "sold out")
			default:
				row = append(row, currency.Format(s.PriceInDisplayCurrency, display))
			}
		}
		t.AppendRow(row)
	}

	footer := table.Row{"Lowest"}
	for _, sp := range res.Pricing {
		footer = append(footer, currency.Format(sp.LowestPrice, display))
	}
	t.AppendFooter(footer)
	t.Render()

	renderErrors(w, res.Errors)
}

func sortSizes(sizes []string) {
	sort.SliceStable(sizes, func(i, j int) bool {
		vi, okI := models.SizeValue(sizes[i])
		vj, okJ := models.SizeValue(sizes[j])
		if okI && okJ && vi != vj {
			return vi < vj
		}
		if okI != okJ {
			return okI
		}
		return sizes[i] < sizes[j]
	})
}

func renderErrors(w io.Writer, errs []string) {
	if len(errs) == 0 {
		return
	}
	fmt.Fprintln(w, strconv.Itoa(len(errs))+" source(s) failed:")
	for _, e := range errs {
		fmt.Fprintln(w, "  - "+strings.TrimSpace(e))
	}
}
