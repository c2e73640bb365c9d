// Package recognition defines the contract with the external AI vision
// service that performs the actual image analysis. It abstracts the details
// of the provider integration (Gemini), allowing the batch engine to process
// images without coupling to a specific external service.
package recognition
