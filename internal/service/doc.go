// Package service contains the application service layer: the use-case
// orchestration between the HTTP API, the stores, the file storage
// collaborator and the background processing engine.
package service
