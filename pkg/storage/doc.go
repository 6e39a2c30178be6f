// Package storage defines the completion log abstraction: a persistent
// record of finished completion calls for auditing and inspection.
// Implementations live in the memory and postgres subpackages.
package storage
