//go:build mage

// Package main provides build targets for task-master using Mage.
//
// Usage:
//
//	mage build          Compile the task-master binary to bin/
//	mage test:all       Run every test
//	mage test:race      Run every test with the race detector
//	mage test:cover     Write a coverage profile to bin/coverage.out
//	mage lint           Run golangci-lint
//	mage vet            Run go vet
//	mage clean          Remove build artifacts
//	mage install        Install task-master to GOPATH/bin
package main

// Default target when mage runs without arguments.
var Default = Build
