// Package internaldefs holds the shared counter naming table used by
// the exporter bindings under metrics/export. It exists so every
// exporter emits identical metric names and help strings.
package internaldefs
