// Package services holds the sentinel error taxonomy shared by operation
// runners, external clients, and the HTTP layer.
package services
