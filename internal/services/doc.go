// Package services provides shared error classification and context
// annotation helpers used by the job engine stages and the mastering
// backends.
package services
