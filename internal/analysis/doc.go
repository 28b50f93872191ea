// Package analysis decouples slow species classification from the detection
// loop. Completed visits are enqueued as tasks on a monitored FIFO queue;
// workers pull tasks, pick the best capture, call the classifier, and write
// the outcome back to the store.
package analysis
