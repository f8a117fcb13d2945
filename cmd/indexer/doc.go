// Package main wires together the notebook indexer service binary.
package main
