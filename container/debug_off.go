//go:build !flatfilter_debug

package container

const debugChecks = false
