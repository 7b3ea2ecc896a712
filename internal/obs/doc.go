// Package obs holds the service's logging plumbing: the zap logger constructor and
// the request logging middleware.
package obs
