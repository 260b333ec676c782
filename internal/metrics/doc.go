// Package metrics exposes the Prometheus instruments of the EngliChat
// server. A nil *Metrics is valid and records nothing.
package metrics
