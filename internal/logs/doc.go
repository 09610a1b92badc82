// Package logs reads the daemon log file for `proxima logs`: the last N
// lines, then optionally every line appended afterwards. A file that shrinks
// is treated as rotated and read again from the start.
package logs
