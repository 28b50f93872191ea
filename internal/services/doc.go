// Package services holds cross-cutting helpers shared by the external service
// clients and the pipeline components that call them, primarily context
// annotation for correlation across log output.
package services
