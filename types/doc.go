/*
Package types holds the small set of definitions shared by every other
package: the structured Error with its ErrorCode values, and the context
helpers that carry request, run and actor identity across layers.

It imports nothing from the rest of the module.
*/
package types
