// Package server is the renewd HTTP surface: signup, login, explicit refresh and
// logout, plus sample protected routes, health, metrics and API docs. Every request
// passes through the renewal interceptor before routing.
package server
