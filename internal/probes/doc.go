// Package probes contains the built-in measurement probes and the
// shared building blocks for writing new ones. Every probe implements
// runner.Probe; the closed registry maps config names to constructors.
package probes
