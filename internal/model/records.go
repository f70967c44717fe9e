package model

import "time"

// DateLayout is the calendar-day key format of DailyStat rows.
const DateLayout = "2006-01-02"

type PPPFactor struct {
	Country     string    `json:"country"`
	Factor      float64   `json:"pppFactor"`
	LastUpdated time.Time `json:"lastUpdated"`
}

// DailyStat holds the usage counters of one UTC calendar day.
type DailyStat struct {
	Date         string `json:"date"`
	Views        int64  `json:"views"`
	Calculations int64  `json:"calculations"`
}

type AdminSession struct {
	Token      string    `json:"token"`
	ExpiresAt  time.Time `json:"expiresAt"`
	LastAccess time.Time `json:"lastAccess"`
}

// ValidAt reports whether the session has not yet reached its absolute expiry.
func (s AdminSession) ValidAt(now time.Time) bool {
	return now.Before(s.ExpiresAt)
}

// DayKey formats t as the UTC calendar day it falls on.
func DayKey(t time.Time) string {
	return t.UTC().Format(DateLayout)
}
