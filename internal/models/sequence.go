package models

import "strconv"

// ParseSequenceNumber accepts only non-negative base-10 integers in canonical
// form, so "+3" and "007" are rejected rather than aliasing 3 and 7.
func ParseSequenceNumber(s string) (int, bool) {
	n, err := strconv.Atoi(s)
	if err != nil || n < 0 || strconv.Itoa(n) != s {
		return 0, false
	}
	return n, true
}

// NextSequenceNumber derives the next per-payment sequence number from the
// highest number seen in NOTIFICATION entries and integer interaction ids.
// The counter is never stored; a payment with neither starts at 0.
func NextSequenceNumber(p *Payment) int {
	highest := -1
	for _, e := range p.Interactions {
		if e.Kind != InteractionNotification {
			continue
		}
		if n, ok := ParseSequenceNumber(e.SequenceNumber); ok && n > highest {
			highest = n
		}
	}
	for _, tx := range p.Transactions {
		if n, ok := ParseSequenceNumber(tx.InteractionID); ok && n > highest {
			highest = n
		}
	}
	return highest + 1
}
