// Package research runs the web research sub-workflow used by the business
// intelligence agent and the research endpoint.
//
// The graph writes search queries for a topic, searches the web for all of
// them concurrently, writes a summary from the deduplicated sources and
// reviews it. A review that finds knowledge gaps produces follow-up queries
// and loops back to the search; the loop is bounded by max_iterations.
//
//	query_writer -> web_search -> summary_writer -> summary_reviewer
//	                    ^                                  |
//	                    +------------- revise -------------+-- done --> End
package research
