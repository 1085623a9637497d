// Package expiry provides a time-based index of retired conversation ids
// so late out-of-band replies can be distinguished from unknown ones.
package expiry
