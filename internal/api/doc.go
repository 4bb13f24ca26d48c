// Package api handles incoming HTTP requests for authentication and
// principal management. It translates HTTP concerns to calls on the auth
// service and maps the service's error taxonomy to status codes so that
// internal details never reach clients.
package api
