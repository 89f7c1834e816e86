package main

// General API documentation for swaggo. The document served at
// /swagger/doc.json is registered by internal/httpapi.
//
// @title           phasebus API
// @version         1.0
// @description     HTTP API for injecting events into a phase-ordered event bus and inspecting its state.
//
// @license.name   MIT
// @license.url    https://opensource.org/licenses/MIT
//
// @BasePath  /
//
// @schemes http
