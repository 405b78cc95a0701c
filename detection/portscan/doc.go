// Package portscan detects port scans from the distinct destination ports a
// source IP contacts.
//
// Each source gets a window that starts with its first packet. Every distinct
// destination port within the window is counted. Reaching the threshold
// raises one alert and forgets the source. A source that stays silent for
// longer than the window is forgotten as well.
//
// Windows are anchored at the first packet and do not slide: a scanner that
// stays below threshold ports per window is not detected.
package portscan
