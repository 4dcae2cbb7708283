package models

import "encoding/json"

// NewsItem is one scraped headline object (title, url and whatever else the
// scraper wrote), passed through untouched.
type NewsItem = json.RawMessage

// NewsCategory is one category of the news document, in file order.
type NewsCategory struct {
	Name  string
	Items []NewsItem
}

// MarketSummary is the scraped market summary table.
type MarketSummary struct {
	Heading string            `json:"heading"`
	Summary map[string]string `json:"summary"`
}

// Document is a raw JSON document served as-is.
type Document = json.RawMessage
