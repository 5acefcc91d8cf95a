//go:build relaydebug

package inclusion

const debugAssertions = true
