// Package application provides application initialization and dependency wiring.
// It encapsulates the creation of the catalog store, optimizer, handlers,
// routers, and HTTP server instances, making the main packages cleaner and
// more focused on CLI parsing and orchestration.
package application
