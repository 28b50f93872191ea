// Package visit models bird visits and drives their lifecycle. A visit is
// one continuous presence episode from first detection to confirmed
// departure; the Machine type is the timer-driven state machine deciding
// when visits start, capture evidence, and complete.
package visit
