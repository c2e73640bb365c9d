// Package events provides types and interfaces for an event-driven
// architecture.
//
// Services emit a BatchRequestEvent when a task is ready for background
// processing without knowing which handlers will pick it up, which keeps the
// service layer decoupled from the dispatch machinery and avoids circular
// dependencies between the two.
package events
