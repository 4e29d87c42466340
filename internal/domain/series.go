package domain

import (
	"sort"
	"time"
)

// Bar is one OHLCV row of a price series
type Bar struct {
	Timestamp time.Time `json:"timestamp"`
	Open      float64   `json:"open"`
	High      float64   `json:"high"`
	Low       float64   `json:"low"`
	Close     float64   `json:"close"`
	Volume    float64   `json:"volume"`
}

// PriceSeries is a time-indexed series of bars for one symbol. The engine
// treats it as read-only: bars are sorted once at construction and lookups
// go through the timestamp index.
type PriceSeries struct {
	Symbol string
	bars   []Bar
	index  map[int64]int // unix nanos -> bar position
}

// NewPriceSeries builds a series from bars, sorting them by timestamp
func NewPriceSeries(symbol string, bars []Bar) *PriceSeries {
	sorted := make([]Bar, len(bars))
	copy(sorted, bars)
	sort.Slice(sorted, func(i, j int) bool {
		return sorted[i].Timestamp.Before(sorted[j].Timestamp)
	})

	index := make(map[int64]int, len(sorted))
	for i, b := range sorted {
		index[b.Timestamp.UnixNano()] = i
	}

	return &PriceSeries{
		Symbol: symbol,
		bars:   sorted,
		index:  index,
	}
}

// Len returns the number of bars in the series
func (s *PriceSeries) Len() int {
	return len(s.bars)
}

// At returns the bar at position i
func (s *PriceSeries) At(i int) Bar {
	return s.bars[i]
}

// IndexOf returns the position of the bar at timestamp t
func (s *PriceSeries) IndexOf(t time.Time) (int, bool) {
	i, ok := s.index[t.UnixNano()]
	return i, ok
}

// CloseAt returns the closing price at timestamp t
func (s *PriceSeries) CloseAt(t time.Time) (float64, bool) {
	i, ok := s.index[t.UnixNano()]
	if !ok {
		return 0, false
	}
	return s.bars[i].Close, true
}

// CloseAtOrBefore returns the most recent closing price at or before t.
// Used for benchmark lookups where calendars may not align.
func (s *PriceSeries) CloseAtOrBefore(t time.Time) (float64, bool) {
	if c, ok := s.CloseAt(t); ok {
		return c, true
	}
	// Walk back through the sorted bars
	i := sort.Search(len(s.bars), func(i int) bool {
		return s.bars[i].Timestamp.After(t)
	})
	if i == 0 {
		return 0, false
	}
	return s.bars[i-1].Close, true
}

// Timestamps returns the ordered timestamps of the series
func (s *PriceSeries) Timestamps() []time.Time {
	ts := make([]time.Time, len(s.bars))
	for i, b := range s.bars {
		ts[i] = b.Timestamp
	}
	return ts
}

// Closes returns the ordered closing prices of the series
func (s *PriceSeries) Closes() []float64 {
	closes := make([]float64, len(s.bars))
	for i, b := range s.bars {
		closes[i] = b.Close
	}
	return closes
}

// Window returns up to n bars ending at timestamp end (inclusive).
// Returns nil if end is not in the series.
func (s *PriceSeries) Window(end time.Time, n int) []Bar {
	i, ok := s.index[end.UnixNano()]
	if !ok {
		return nil
	}

	start := i - n + 1
	if start < 0 {
		start = 0
	}

	return s.bars[start : i+1]
}

// WindowCloses returns the closing prices of Window(end, n)
func (s *PriceSeries) WindowCloses(end time.Time, n int) []float64 {
	bars := s.Window(end, n)
	if bars == nil {
		return nil
	}

	closes := make([]float64, len(bars))
	for i, b := range bars {
		closes[i] = b.Close
	}
	return closes
}
