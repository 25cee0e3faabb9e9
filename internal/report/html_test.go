package report

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/PuerkitoBio/goquery"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func generateTestReport(t *testing.T) *Report {
	t.Helper()
	s := setupStores(t)
	g := newTestGenerator(s, Options{})
	r, err := g.Generate(context.Background())
	require.NoError(t, err)
	return r
}

func TestRenderHTML(t *testing.T) {
	r := generateTestReport(t)

	html, err := RenderHTML(r)
	require.NoError(t, err)

	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(html))
	require.NoError(t, err)

	assert.Equal(t, "Index Ratio Analysis | 2024-01-05", doc.Find("title").Text())
	assert.Equal(t, "Index Ratio Analysis", doc.Find("h1").Text())
	assert.Contains(t, doc.Find(".hero-meta").Text(), "Data through 2024-01-05")
	assert.Contains(t, doc.Find(".hero-meta").Text(), "2 sessions since 2024-01-04")

	// Benchmark card first, then one card per target.
	cards := doc.Find(".metric-card")
	require.Equal(t, 2, cards.Length())
	assert.Equal(t, "3,520.50", cards.Eq(0).Find(".metric-value").Text())
	assert.Equal(t, "benchmark", cards.Eq(0).Find(".metric-badge").Text())

	target := cards.Eq(1)
	assert.Equal(t, "CSI 500", target.Find(".metric-name").Text())
	assert.Equal(t, "1.6094", target.Find(".metric-value").Text())
	badge := target.Find(".metric-badge")
	assert.Equal(t, "extreme high", badge.Text())
	assert.True(t, badge.HasClass("badge-negative"))

	// Analysis card renders the persisted descriptions verbatim.
	descs := doc.Find(".analysis-item-desc")
	require.Equal(t, 3, descs.Length())
	assert.Equal(t, "the ratio sits at the very top of its history", descs.Eq(0).Text())
	assert.Equal(t, "too little history to judge the direction of the ratio", descs.Eq(1).Text())
	assert.Equal(t, "the ratio is oscillating around its rolling mean", descs.Eq(2).Text())
	assert.Contains(t, doc.Find(".analysis-changes").Text(), "5D: n/a")

	rec := doc.Find(".recommendation-box")
	assert.True(t, rec.HasClass("underweight"))
	assert.Equal(t, "[--] strong underweight: cut the allocation well below its benchmark weight",
		rec.Find(".recommendation-action").Text())
	assert.Equal(t, "composite score -1.20", rec.Find(".recommendation-score").Text())

	assert.Contains(t, doc.Find(".summary-block").Text(), "extreme high")

	// One chart container per target plus the price chart.
	assert.Equal(t, 1, doc.Find("#price-chart").Length())
	assert.Equal(t, 1, doc.Find("#ratio-chart-0").Length())

	// The chart payload and the Plotly bootstrap ride inside the document.
	raw := string(html)
	assert.Contains(t, raw, "https://cdn.plot.ly/plotly-2.32.0.min.js")
	assert.Contains(t, raw, `"rangeLow":1.6,"rangeHigh":1.6094`)
	assert.Contains(t, raw, `"percentileColor":"#f43f5e"`)
	assert.Contains(t, raw, `"dates":["2024-01-04","2024-01-05"]`)
}

func TestWriteFiles(t *testing.T) {
	r := generateTestReport(t)
	dir := t.TempDir()

	path, err := WriteFiles(r, dir)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "index_compare_20240105_183000.html"), path)

	stamped, err := os.ReadFile(path)
	require.NoError(t, err)
	latest, err := os.ReadFile(filepath.Join(dir, "latest.html"))
	require.NoError(t, err)
	assert.Equal(t, stamped, latest)
	assert.True(t, strings.HasPrefix(string(stamped), "<!DOCTYPE html>"))
}

func TestPrune(t *testing.T) {
	dir := t.TempDir()
	names := []string{
		"index_compare_20240101_120000.html",
		"index_compare_20240102_120000.html",
		"index_compare_20240103_120000.html",
		"index_compare_20240104_120000.html",
		"latest.html",
	}
	for _, name := range names {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte("report"), 0o644))
	}

	removed, err := Prune(dir, 2)
	require.NoError(t, err)
	assert.Equal(t, 2, removed)

	remaining, err := filepath.Glob(filepath.Join(dir, "*.html"))
	require.NoError(t, err)
	var left []string
	for _, p := range remaining {
		left = append(left, filepath.Base(p))
	}
	assert.ElementsMatch(t, []string{
		"index_compare_20240103_120000.html",
		"index_compare_20240104_120000.html",
		"latest.html",
	}, left)

	// Already within the limit.
	removed, err = Prune(dir, 2)
	require.NoError(t, err)
	assert.Equal(t, 0, removed)

	// keep below one is clamped to one.
	removed, err = Prune(dir, 0)
	require.NoError(t, err)
	assert.Equal(t, 1, removed)
	_, err = os.Stat(filepath.Join(dir, "index_compare_20240104_120000.html"))
	assert.NoError(t, err)
	_, err = os.Stat(filepath.Join(dir, "latest.html"))
	assert.NoError(t, err)
}

func TestFormatChange(t *testing.T) {
	assert.Equal(t, "n/a", formatChange(nil))
	assert.Equal(t, "+1.23%", formatChange(ptr(1.234)))
	assert.Equal(t, "-0.50%", formatChange(ptr(-0.5)))
	assert.Equal(t, "+0.00%", formatChange(ptr(0)))
}

func TestCommaFloat(t *testing.T) {
	cases := []struct {
		in   float64
		want string
	}{
		{0, "0.00"},
		{123.4, "123.40"},
		{3520.5, "3,520.50"},
		{1234567.891, "1,234,567.89"},
		{-9876.5, "-9,876.50"},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, commaFloat(tc.in))
	}
}
